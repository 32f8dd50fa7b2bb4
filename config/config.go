package config

import (
	"os"
	"path/filepath"

	"github.com/robch/cycod-sub003/errors"
	"gopkg.in/yaml.v3"
)

// FilesystemAccess restricts what the filesystem tools may touch.
type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

// MCPServer describes one MCP server subprocess to start.
type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Toolset names a subset of tools the agent may offer to the model.
type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

// Approval seeds the session approval sets. Entries are tool names, the
// wildcard "*", or the category tokens "read", "write", "run".
type Approval struct {
	AutoApprove []string `yaml:"auto_approve"`
	AutoDeny    []string `yaml:"auto_deny"`
}

// TokenBudget holds the three transcript trimming ceilings. Zero means
// unbounded.
type TokenBudget struct {
	MaxPromptTokens int `yaml:"max_prompt_tokens"`
	MaxToolTokens   int `yaml:"max_tool_tokens"`
	MaxChatTokens   int `yaml:"max_chat_tokens"`
}

type Config struct {
	LLMClient        string           `yaml:"llm"`
	Model            string           `yaml:"model"`
	SystemPrompt     string           `yaml:"system_prompt"`
	TokenBudget      TokenBudget      `yaml:"token_budget"`
	Approval         Approval         `yaml:"approval"`
	Toolsets         []Toolset        `yaml:"toolsets"`
	MCPServers       []MCPServer      `yaml:"mcp_servers"`
	AllowedCommands  []string         `yaml:"allowed_commands"`
	FilesystemAccess FilesystemAccess `yaml:"filesystem_access"`
}

// DefaultSystemPrompt is used when neither config nor flags provide one.
const DefaultSystemPrompt = "You are a helpful AI assistant running in a command-line shell. " +
	"Use the available tools when they help answer the user's request."

// Load reads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func Load() (*Config, error) {
	cfg := &Config{}

	// The agent's own state directory is never exposed to tools.
	cfg.FilesystemAccess.Hidden = append(cfg.FilesystemAccess.Hidden, ".cycod", ".cycod/**")

	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".cycod", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".cycod", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, which gives a simple
	// merge where project-level config replaces user-level.
	return yaml.Unmarshal(data, cfg)
}

// GetToolset finds a toolset by name, falling back to "default" when the
// named one is missing. When no toolsets are configured at all, a nil
// toolset is returned and the registry offers every tool.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if len(c.Toolsets) == 0 {
		return nil, nil
	}
	if name == "" {
		name = "default"
	}
	for i := range c.Toolsets {
		if c.Toolsets[i].Name == name {
			return &c.Toolsets[i], nil
		}
	}
	if name == "default" {
		return nil, errors.New("mandatory 'default' toolset not found in configuration")
	}
	return c.GetToolset("default")
}
