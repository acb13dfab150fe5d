package bedrock

// Option is a functional option for the Bedrock LLM.
type Option func(*options)

type options struct {
	modelID   string
	region    string
	accessKey string
	secretKey string
	client    InvokeModelAPI
}

// WithModel sets the model ID, or the inference profile ID.
func WithModel(modelID string) Option {
	return func(o *options) {
		o.modelID = modelID
	}
}

// WithRegion sets the AWS region, by default the region is loaded
// from the shared config.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithStaticCredentials sets the access key pair,
// by default the credentials are loaded from the default chain.
func WithStaticCredentials(accessKey, secretKey string) Option {
	return func(o *options) {
		o.accessKey = accessKey
		o.secretKey = secretKey
	}
}

// WithClient sets the Bedrock runtime client.
func WithClient(client InvokeModelAPI) Option {
	return func(o *options) {
		o.client = client
	}
}
