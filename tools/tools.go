package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/kaptinlin/jsonrepair"
	"github.com/robch/cycod-sub003/config"
	"github.com/robch/cycod-sub003/errors"
	"github.com/robch/cycod-sub003/tools/mcp"
)

// Category classifies how risky a tool is to run. The approval policy keys
// its category-level grants off this.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryRead
	CategoryWrite
	CategoryRun
)

func (c Category) String() string {
	switch c {
	case CategoryRead:
		return "read"
	case CategoryWrite:
		return "write"
	case CategoryRun:
		return "run"
	default:
		return "unknown"
	}
}

// Tool defines the interface for any action the agent can take.
type Tool interface {
	Name() string
	Description() string
	Category() Category
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Registry holds all available tools, including tools discovered from MCP
// server subprocesses.
type Registry struct {
	tools      map[string]Tool
	mcpClients map[string]*mcp.Client
}

// NewRegistry registers the built-in tools and starts the MCP servers named
// in the configuration. MCP servers that fail to start are reported through
// warn and skipped; a broken server never blocks the session.
func NewRegistry(cfg *config.Config, warn func(string)) *Registry {
	if warn == nil {
		warn = func(string) {}
	}
	r := &Registry{
		tools:      make(map[string]Tool),
		mcpClients: make(map[string]*mcp.Client),
	}

	r.Register(&ReadFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&WriteFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&ExecuteCommandTool{allowedCommands: cfg.AllowedCommands})

	for _, server := range cfg.MCPServers {
		client, err := mcp.NewClient(server.Name, server.Command, server.Args)
		if err != nil {
			warn(fmt.Sprintf("MCP server '%s' failed to start: %v", server.Name, err))
			continue
		}
		r.mcpClients[server.Name] = client
		for _, t := range client.Tools() {
			r.Register(&mcpTool{t})
		}
	}

	return r
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Classify returns the category of the named tool, or CategoryUnknown for a
// tool the registry has never heard of.
func (r *Registry) Classify(name string) Category {
	if t, ok := r.tools[name]; ok {
		return t.Category()
	}
	return CategoryUnknown
}

// Invoke parses argumentsJSON and executes the named tool. Models sometimes
// stream arguments that are not quite valid JSON; a failed parse is run
// through jsonrepair before giving up. All failures come back as errors for
// the caller to fold into a failed tool result.
func (r *Registry) Invoke(ctx context.Context, name, argumentsJSON string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", errors.New("tool '%s' is not registered", name)
	}

	args, err := parseArguments(argumentsJSON)
	if err != nil {
		return "", err
	}
	return t.Execute(ctx, args)
}

// Active returns the tool instances for a toolset, resolving MCP entries of
// the form "<server>:<tool>" (and "<server>:*" wildcards) against the running
// MCP clients. An empty toolset means every registered tool.
func (r *Registry) Active(ts *config.Toolset) ([]Tool, error) {
	if ts == nil || len(ts.Tools) == 0 {
		active := make([]Tool, 0, len(r.tools))
		for _, t := range r.tools {
			active = append(active, t)
		}
		return active, nil
	}

	var active []Tool
	for _, entry := range ts.Tools {
		if server, tool, ok := strings.Cut(entry, ":"); ok {
			client, found := r.mcpClients[server]
			if !found {
				return nil, errors.New("toolset '%s' references unknown MCP server '%s'", ts.Name, server)
			}
			if tool == "*" {
				for _, t := range client.Tools() {
					active = append(active, &mcpTool{t})
				}
				continue
			}
			t, found := client.Tool(tool)
			if !found {
				return nil, errors.New("MCP server '%s' has no tool '%s'", server, tool)
			}
			active = append(active, &mcpTool{t})
			continue
		}

		t, ok := r.Get(entry)
		if !ok {
			return nil, errors.New("tool '%s' from toolset '%s' is not registered", entry, ts.Name)
		}
		active = append(active, t)
	}
	return active, nil
}

// mcpTool adapts an MCP server tool to the Tool interface. External tools
// can't be classified locally, so they land in CategoryUnknown and the
// approval policy will only auto-approve them by exact name or wildcard.
type mcpTool struct {
	*mcp.ServerTool
}

func (t *mcpTool) Category() Category { return CategoryUnknown }

// Close stops all MCP server subprocesses.
func (r *Registry) Close() {
	for _, client := range r.mcpClients {
		_ = client.Stop()
	}
}

func parseArguments(argumentsJSON string) (map[string]interface{}, error) {
	if strings.TrimSpace(argumentsJSON) == "" {
		return map[string]interface{}{}, nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(argumentsJSON), &args); err == nil {
		return args, nil
	}

	repaired, err := jsonrepair.JSONRepair(argumentsJSON)
	if err != nil {
		return nil, errors.New("tool arguments are not valid JSON: %s", argumentsJSON)
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, errors.Wrapf(err, "tool arguments unusable even after repair")
	}
	return args, nil
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, errors.Wrapf(err, "invalid glob pattern '%s'", pattern)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// isCommandAllowed checks if a command matches the allowlist, with regex
// support and a literal-comparison fallback for invalid patterns.
func isCommandAllowed(command string, allowed []string) (bool, error) {
	if len(strings.Fields(command)) == 0 {
		return false, nil
	}
	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			if command == pattern {
				return true, nil
			}
			continue
		}
		if re.MatchString(command) {
			return true, nil
		}
	}
	return false, nil
}
