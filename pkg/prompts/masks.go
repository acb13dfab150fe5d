package prompts

import (
	"bytes"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
)

const userMask = `{{ .Now | date "Today's date is January 02, 2006, and the current time is 15:04:05." }}
User current message is:
{{ .Message }}
{{- with .Language }}
Interact with him in {{ . }}.
{{- end }}`

var userTemplate = template.Must(template.New("user").Funcs(sprig.TxtFuncMap()).Parse(userMask))

// UserMessage renders the user message with the current date and time,
// and the optional language instruction.
func UserMessage(now time.Time, message, language string) (string, error) {
	var b bytes.Buffer
	err := userTemplate.Execute(&b, map[string]any{
		"Now":      now,
		"Message":  message,
		"Language": language,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to render user message")
	}
	return b.String(), nil
}

// ToolMessage renders the result of the action
func ToolMessage(actionName, message string) string {
	return "Action executed: **" + actionName + "**\nResponse:\n" + message
}
