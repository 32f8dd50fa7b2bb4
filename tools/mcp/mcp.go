// Package mcp manages Model Context Protocol server subprocesses and exposes
// the tools they advertise.
package mcp

import (
	"context"
	"os"
	"os/exec"

	"github.com/robch/cycod-sub003/errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client manages the connection to a single MCP server subprocess.
type Client struct {
	Name  string
	cmd   *exec.Cmd
	conn  *mcpsdk.ClientSession
	tools map[string]*ServerTool
	order []string
}

// NewClient starts the MCP server subprocess, connects over stdio, and
// discovers the tools it provides.
func NewClient(name, command string, args []string) (*Client, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr

	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "cycod", Version: "v1.0.0"}, nil)
	ctx := context.Background()
	conn, err := mcpClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		cmd.Process.Kill()
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}

	client := &Client{
		Name:  name,
		cmd:   cmd,
		conn:  conn,
		tools: make(map[string]*ServerTool),
	}

	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			conn.Close()
			cmd.Process.Kill()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range list.Tools {
			client.tools[t.Name] = &ServerTool{
				server:      name,
				name:        t.Name,
				description: t.Description,
				client:      client,
			}
			client.order = append(client.order, t.Name)
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}

	return client, nil
}

// Tool returns a tool by its short name.
func (c *Client) Tool(name string) (*ServerTool, bool) {
	t, ok := c.tools[name]
	return t, ok
}

// Tools returns every tool the server advertised, in discovery order.
func (c *Client) Tools() []*ServerTool {
	out := make([]*ServerTool, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.tools[name])
	}
	return out
}

// Stop terminates the MCP server subprocess.
func (c *Client) Stop() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Kill()
	}
	return nil
}

// ServerTool is one tool advertised by an MCP server.
type ServerTool struct {
	server      string
	name        string
	description string
	client      *Client
}

// Name returns the tool's short name as advertised by the server.
func (t *ServerTool) Name() string { return t.name }

// Description returns the server-provided description.
func (t *ServerTool) Description() string { return t.description }

// Server returns the name of the MCP server that provides this tool.
func (t *ServerTool) Server() string { return t.server }

// Execute sends the arguments to the MCP server and concatenates the text
// content of the result.
func (t *ServerTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.name,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call MCP tool '%s'", t.name)
	}
	out := ""
	for _, c := range result.Content {
		if text, ok := c.(*mcpsdk.TextContent); ok {
			out += text.Text
		}
	}
	return out, nil
}
