package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/solenelabs/aria/pkg/tool"
)

// protocolVersion is the MCP revision this client negotiates.
const protocolVersion = "2024-11-05"

// callTimeout bounds a single JSON-RPC round trip.
const callTimeout = 10 * time.Second

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      interface{} `json:"id,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      interface{}     `json:"id"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Client manages one MCP server subprocess and its JSON-RPC session.
type Client struct {
	serverID string
	command  string
	args     []string

	mu      sync.Mutex
	process *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Scanner
	nextID  int
	pending map[int]chan *rpcResponse
}

// NewClient creates a client for an MCP server started as a subprocess. The
// process is launched lazily on first use.
func NewClient(serverID, command string, args []string) *Client {
	return &Client{
		serverID: serverID,
		command:  command,
		args:     args,
		pending:  make(map[int]chan *rpcResponse),
	}
}

// ServerID returns the configured server identifier.
func (c *Client) ServerID() string { return c.serverID }

// Start launches the server process and performs the initialize handshake.
// Calling Start on a running client is a no-op.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.process != nil {
		c.mu.Unlock()
		return nil
	}

	cmd := exec.CommandContext(ctx, c.command, c.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if err := cmd.Start(); err != nil {
		c.mu.Unlock()
		return err
	}

	c.process = cmd
	c.stdin = stdin
	c.stdout = bufio.NewScanner(stdout)
	c.mu.Unlock()

	go c.listen()

	params := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "aria",
			"version": "0.1.0",
		},
	}
	if _, err := c.call(ctx, "initialize", params); err != nil {
		return fmt.Errorf("initialize handshake failed: %w", err)
	}

	log.Info().Str("server", c.serverID).Msg("MCP server started")
	return nil
}

func (c *Client) listen() {
	for c.stdout.Scan() {
		var resp rpcResponse
		if err := json.Unmarshal(c.stdout.Bytes(), &resp); err != nil {
			log.Error().Err(err).Str("server", c.serverID).Msg("Failed to unmarshal MCP response")
			continue
		}

		id, ok := resp.ID.(float64)
		if !ok {
			continue
		}
		c.mu.Lock()
		ch, exists := c.pending[int(id)]
		if exists {
			delete(c.pending, int(id))
			ch <- &resp
		}
		c.mu.Unlock()
	}
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan *rpcResponse, 1)
	c.pending[id] = ch
	stdin := c.stdin
	c.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(stdin, string(data)+"\n"); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("mcp error (%d): %s", resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(callTimeout):
		return nil, fmt.Errorf("mcp request timed out after %s", callTimeout)
	}
}

// ListTools fetches the server's tool definitions.
func (c *Client) ListTools(ctx context.Context) ([]tool.Definition, error) {
	if err := c.Start(ctx); err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var listResult struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &listResult); err != nil {
		return nil, err
	}

	defs := make([]tool.Definition, 0, len(listResult.Tools))
	for _, t := range listResult.Tools {
		defs = append(defs, tool.Definition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  parseToolParameters(t.InputSchema),
		})
	}
	return defs, nil
}

// CallTool executes a server tool with raw JSON arguments and returns its
// text output.
func (c *Client) CallTool(ctx context.Context, name, argsJSON string) (string, error) {
	if err := c.Start(ctx); err != nil {
		return "", fmt.Errorf("failed to start MCP server: %w", err)
	}

	var args map[string]interface{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("invalid tool arguments: %w", err)
		}
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	resp, err := c.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}
	return extractContent(resp.Result)
}

// Stop kills the server process.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.process != nil && c.process.Process != nil {
		return c.process.Process.Kill()
	}
	return nil
}

// extractContent flattens a tools/call result into text. MCP returns a
// content array of typed blocks; non-text results fall back to raw JSON.
func extractContent(result json.RawMessage) (string, error) {
	var payload struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(result, &payload); err != nil || len(payload.Content) == 0 {
		return string(result), nil
	}

	var parts []string
	for _, block := range payload.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return string(result), nil
	}
	text := strings.Join(parts, "\n")
	if payload.IsError {
		return "", fmt.Errorf("tool reported error: %s", text)
	}
	return text, nil
}

// parseToolParameters converts an MCP inputSchema into tool parameters.
func parseToolParameters(schema json.RawMessage) []tool.Parameter {
	if len(schema) == 0 {
		return nil
	}

	var schemaMap map[string]interface{}
	if err := json.Unmarshal(schema, &schemaMap); err != nil {
		return nil
	}
	properties, ok := schemaMap["properties"].(map[string]interface{})
	if !ok {
		return nil
	}

	required := make(map[string]bool)
	if reqList, ok := schemaMap["required"].([]interface{}); ok {
		for _, r := range reqList {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	params := make([]tool.Parameter, 0, len(properties))
	for name, propData := range properties {
		prop, ok := propData.(map[string]interface{})
		if !ok {
			continue
		}
		param := tool.Parameter{Name: name, Required: required[name]}
		if typeVal, ok := prop["type"].(string); ok {
			param.Type = typeVal
		}
		if desc, ok := prop["description"].(string); ok {
			param.Description = desc
		}
		if defVal, ok := prop["default"]; ok {
			param.Default = defVal
		}
		params = append(params, param)
	}
	return params
}
