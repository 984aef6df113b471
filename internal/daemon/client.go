package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Client connects to the daemon for content-store operations.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a new daemon client.
func NewClient(cfg Config) *Client {
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    cfg.Timeout,
	}
}

// Connect establishes a connection to the daemon.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return conn, nil
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks if the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	// Set deadline from context or timeout
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		Method:  MethodPing,
		ID:      c.nextID(),
	}

	if err := c.send(conn, req); err != nil {
		return err
	}

	resp, err := c.receive(conn)
	if err != nil {
		return err
	}

	if resp.Error != nil {
		return fmt.Errorf("ping failed: %s", resp.Error.Message)
	}

	return nil
}

// ReadContent fetches content by id from the daemon's content store.
func (c *Client) ReadContent(ctx context.Context, params ReadContentParams) (*ReadContentResult, error) {
	var result ReadContentResult
	if err := c.call(ctx, MethodReadContent, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WriteContent stores content in the daemon's content store.
func (c *Client) WriteContent(ctx context.Context, params WriteContentParams) (*WriteContentResult, error) {
	var result WriteContentResult
	if err := c.call(ctx, MethodWriteContent, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetContentWriter asks the daemon how the caller should write id (inline,
// already present, or via a presigned URL).
func (c *Client) GetContentWriter(ctx context.Context, params GetContentWriterParams) (*GetContentWriterResult, error) {
	var result GetContentWriterResult
	if err := c.call(ctx, MethodGetContentWriter, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RegisterAlias maps a (key_space, key) pair to id on the daemon.
func (c *Client) RegisterAlias(ctx context.Context, params RegisterAliasParams) error {
	var result RegisterAliasResult
	return c.call(ctx, MethodRegisterAlias, params, &result)
}

// ResolveAlias resolves a (key_space, key) pair through the daemon.
func (c *Client) ResolveAlias(ctx context.Context, params ResolveAliasParams) (*ResolveAliasResult, error) {
	var result ResolveAliasResult
	if err := c.call(ctx, MethodResolveAlias, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// call sends a request for method with params and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID(),
	}

	if err := c.send(conn, req); err != nil {
		return err
	}

	resp, err := c.receive(conn)
	if err != nil {
		return err
	}

	if resp.Error != nil {
		return fmt.Errorf("%s failed: %s (code: %d)", method, resp.Error.Message, resp.Error.Code)
	}

	resultData, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(resultData, out); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// Status retrieves daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	conn, err := c.Connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// Set deadline from context or timeout
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		Method:  MethodStatus,
		ID:      c.nextID(),
	}

	if err := c.send(conn, req); err != nil {
		return nil, err
	}

	resp, err := c.receive(conn)
	if err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("status failed: %s", resp.Error.Message)
	}

	// Decode status
	resultData, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	var status StatusResult
	if err := json.Unmarshal(resultData, &status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}

	return &status, nil
}

// send encodes and writes a request to the connection.
func (c *Client) send(conn net.Conn, req Request) error {
	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

// receive reads and decodes a response from the connection.
func (c *Client) receive(conn net.Conn) (*Response, error) {
	decoder := json.NewDecoder(conn)
	var resp Response
	if err := decoder.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to receive response: %w", err)
	}
	return &resp, nil
}

// nextID generates a unique request ID.
func (c *Client) nextID() string {
	id := c.requestID.Add(1)
	return fmt.Sprintf("req-%d", id)
}
