package main

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/agentloop/agent"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
)

// Config of the agentctl
type Config struct {
	// TenantID is the tenant of the chats created by the CLI
	TenantID string `json:"tenant_id" yaml:"tenant_id"`
	// LLM is the location of the LLM providers config,
	// relative to the location of this config.
	LLM   string      `json:"llm" yaml:"llm"`
	Agent AgentConfig `json:"agent" yaml:"agent"`
	Store StoreConfig `json:"store" yaml:"store"`
	Tools ToolsConfig `json:"tools" yaml:"tools"`
}

// AgentConfig configures the control loop
type AgentConfig struct {
	Name string `json:"name" yaml:"name"`
	// Models are the preferred models, if empty the agent_models of the LLM config are used.
	Models        []string `json:"models,omitempty" yaml:"models,omitempty"`
	MaxIterations int      `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	MaxTokens     int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature   float64  `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	// SystemPrompt is the location of the system prompt template
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Language     string `json:"language,omitempty" yaml:"language,omitempty"`
}

// StoreConfig configures the conversation store
type StoreConfig struct {
	// Type is memory or redis
	Type  string      `json:"type" yaml:"type"`
	Redis RedisConfig `json:"redis" yaml:"redis"`
}

// RedisConfig configures the Redis client
type RedisConfig struct {
	Addr         string `json:"addr" yaml:"addr"`
	Password     string `json:"password,omitempty" yaml:"password,omitempty"`
	DB           int    `json:"db,omitempty" yaml:"db,omitempty"`
	Prefix       string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	MessageLimit int    `json:"message_limit,omitempty" yaml:"message_limit,omitempty"`
}

// ToolsConfig enables the tools
type ToolsConfig struct {
	Calendar  bool            `json:"calendar" yaml:"calendar"`
	Email     bool            `json:"email" yaml:"email"`
	WebSearch WebSearchConfig `json:"web_search" yaml:"web_search"`
}

// WebSearchConfig configures the web_search tool
type WebSearchConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	APIKey      string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL     string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	SearchDepth string `json:"search_depth,omitempty" yaml:"search_depth,omitempty"`
}

const (
	storeMemory = "memory"
	storeRedis  = "redis"
)

// LoadConfig loads the config and expands the environment variables
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file != "" {
		if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
			return nil, errors.WithMessagef(err, "failed to load config %s", file)
		}
		dir := filepath.Dir(file)
		cfg.LLM = resolve(dir, cfg.LLM)
		cfg.Agent.SystemPrompt = resolve(dir, cfg.Agent.SystemPrompt)
	}

	cfg.TenantID = values.StringsCoalesce(cfg.TenantID, os.Getenv("USER"), "local")
	cfg.Agent.Name = values.StringsCoalesce(cfg.Agent.Name, agent.DefaultName)
	cfg.Store.Type = values.StringsCoalesce(cfg.Store.Type, storeMemory)
	if cfg.Store.Type != storeMemory && cfg.Store.Type != storeRedis {
		return nil, errors.Errorf("unsupported store type: %q", cfg.Store.Type)
	}
	if cfg.Store.Type == storeRedis && cfg.Store.Redis.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	return cfg, nil
}

func resolve(dir, location string) string {
	if location == "" || filepath.IsAbs(location) {
		return location
	}
	return filepath.Join(dir, location)
}
