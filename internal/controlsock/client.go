package controlsock

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Client dials a running daemon's control socket to issue one request per
// connection — the shape cmd/overlayd's CLI subcommands use.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient constructs a Client targeting DefaultSocketPath().
func NewClient() *Client {
	return NewClientWithPath(DefaultSocketPath())
}

// NewClientWithPath constructs a Client targeting a caller-chosen socket
// path.
func NewClientWithPath(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 5 * time.Second}
}

// SetTimeout overrides the default 5-second connect+round-trip timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

func (c *Client) sendRequest(ctx context.Context, req *Request) (*Response, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to control socket at %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	data, err := req.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode control request: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("send control request: %w", err)
	}

	respData, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read control response: %w", err)
	}
	resp, err := DecodeResponse(respData)
	if err != nil {
		return nil, fmt.Errorf("decode control response: %w", err)
	}
	return resp, nil
}

// ListShares retrieves the share catalog.
func (c *Client) ListShares(ctx context.Context) ([]ShareDirectory, error) {
	resp, err := c.sendRequest(ctx, NewRequest(MsgListShares))
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	data, err := resp.ShareListData()
	if err != nil {
		return nil, err
	}
	return data.Directories, nil
}

// RescanShares triggers an immediate share index refill.
func (c *Client) RescanShares(ctx context.Context) error {
	resp, err := c.sendRequest(ctx, NewRequest(MsgRescanShares))
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("daemon error: %s", resp.Error)
	}
	return nil
}

// ListTransfers retrieves transfers, optionally filtered by direction
// ("upload", "download", or "" for both).
func (c *Client) ListTransfers(ctx context.Context, direction string) ([]TransferEntry, error) {
	resp, err := c.sendRequest(ctx, &Request{Type: MsgListTransfers, Direction: direction})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	data, err := resp.TransferListData()
	if err != nil {
		return nil, err
	}
	return data.Transfers, nil
}

// CancelTransfer cancels a single transfer by direction, username, and ID.
func (c *Client) CancelTransfer(ctx context.Context, direction, username, id string) error {
	resp, err := c.sendRequest(ctx, &Request{Type: MsgCancelTransfer, Direction: direction, Username: username, ID: id})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("daemon error: %s", resp.Error)
	}
	return nil
}

// ListAgents retrieves the registered agent fabric's connection status.
func (c *Client) ListAgents(ctx context.Context) ([]AgentEntry, error) {
	resp, err := c.sendRequest(ctx, NewRequest(MsgListAgents))
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	data, err := resp.AgentListData()
	if err != nil {
		return nil, err
	}
	return data.Agents, nil
}

// ListLogs retrieves the n most recent buffered log lines.
func (c *Client) ListLogs(ctx context.Context, n int) ([]LogLine, error) {
	resp, err := c.sendRequest(ctx, &Request{Type: MsgListLogs, ID: strconv.Itoa(n)})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	data, err := resp.LogListData()
	if err != nil {
		return nil, err
	}
	return data.Lines, nil
}

// Ping checks whether a daemon is listening on the control socket.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListAgents(ctx)
	return err
}
