// Package conf holds process-level configuration read from the environment.
// The hot-reloadable response configuration lives in internal/config; nothing
// here changes while the bot is running.
package conf

import (
	"os"
	"path/filepath"
)

// Config represents application configuration
type Config struct {
	// Feishu configuration
	Feishu FeishuConfig

	// ResponsesPath is the TOML file holding the response rules. It is
	// watched for changes and hot-reloaded.
	ResponsesPath string

	// TriggerDBPath is the SQLite database recording fired responses.
	TriggerDBPath string

	// LLM configuration (optional)
	LLM LLMConfig

	// Debug mode
	Debug bool
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string
	AppSecret string
}

// LLMConfig contains the optional LLM collaborator configuration. The
// collaborator is disabled when APIKey is empty.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	responsesPath := os.Getenv("KINGFISHER_CONFIG")
	if responsesPath == "" {
		responsesPath = "./kingfisher.toml"
	}

	triggerDBPath := os.Getenv("TRIGGER_DB_PATH")
	if triggerDBPath == "" {
		homeDir, _ := os.UserHomeDir()
		triggerDBPath = filepath.Join(homeDir, ".kingfisher", "triggers.db")
	}

	return &Config{
		Feishu: FeishuConfig{
			AppID:     os.Getenv("FEISHU_APP_ID"),
			AppSecret: os.Getenv("FEISHU_APP_SECRET"),
		},
		ResponsesPath: responsesPath,
		TriggerDBPath: triggerDBPath,
		LLM: LLMConfig{
			APIKey:  os.Getenv("LLM_API_KEY"),
			BaseURL: os.Getenv("LLM_BASE_URL"),
			Model:   os.Getenv("LLM_MODEL"),
		},
		Debug: os.Getenv("DEBUG") == "true",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
