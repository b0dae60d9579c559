package agentfabric

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/overlayd/overlayd/internal/errs"
	"github.com/overlayd/overlayd/internal/events"
	"github.com/overlayd/overlayd/internal/waitregistry"
)

// FileInfo is the agent's answer to a GetFileInfo RPC.
type FileInfo struct {
	Exists bool
	Length int64
}

// Push is the subset of AgentTransport a Fabric needs to deliver
// controller-initiated messages to a specific agent connection.
type Push interface {
	Challenge(connID string, token []byte) error
	RequestFileInfo(connID, filename, requestID string) error
	RequestFileUpload(connID, filename string, token []byte) error
}

// Config wires a Fabric to the rest of the daemon.
type Config struct {
	// Secret is the pre-shared symmetric key this controller shares with
	// every agent (§4.4). A production deployment would key this per
	// agent; the spec models one shared secret, so this does too.
	Secret []byte
	Push   Push
	Bus    *events.Bus

	// DefaultRPCTimeout bounds GetFileInfo/GetFile calls that don't specify
	// their own; defaults to 30s.
	DefaultRPCTimeout time.Duration
}

// Fabric is the controller-side agent fabric: authentication, one-shot
// upload tickets, and the file-info/file-fetch RPCs (§4.4).
type Fabric struct {
	cfg        Config
	challenges *ticketCache
	tickets    *ticketCache
	registry   *agentRegistry
	waits      *waitregistry.Registry

	pending *pendingFetches
}

// New constructs a Fabric.
func New(cfg Config) *Fabric {
	if cfg.DefaultRPCTimeout <= 0 {
		cfg.DefaultRPCTimeout = 30 * time.Second
	}
	return &Fabric{
		cfg:        cfg,
		challenges: newTicketCache(),
		tickets:    newTicketCache(),
		registry:   newAgentRegistry(),
		waits:      waitregistry.New(),
		pending:    newPendingFetches(),
	}
}

// SetPush binds the transport Fabric pushes Challenge/RequestFileInfo/
// RequestFileUpload calls through. It exists because Server and Fabric
// reference each other (NewServer takes a *Fabric), so construction order
// is Fabric first, Server second, then SetPush closes the cycle.
func (f *Fabric) SetPush(p Push) {
	f.cfg.Push = p
}

// SetSecret rotates the pre-shared key new agent logins are checked
// against. Agents already authenticated keep their registration; only
// future Login handshakes see the new secret.
func (f *Fabric) SetSecret(secret []byte) {
	f.cfg.Secret = secret
}

// ConnectedAgents returns the names of every currently registered agent,
// for the control plane's ListAgents query (§6.1).
func (f *Fabric) ConnectedAgents() []string {
	return f.registry.names()
}

// OnAgentDisconnected deregisters the agent bound to connID and fails every
// RPC outstanding against it (§4.4 "Agent disconnect during a pending fetch
// → all of that agent's outstanding waiters fail with AgentDisconnected").
func (f *Fabric) OnAgentDisconnected(connID string) {
	name, ok := f.registry.deregisterConn(connID)
	if !ok {
		return
	}
	f.waits.CancelPeer(name)
	f.pending.cancelAgent(name)
	f.publishAgentEvent(name, "disconnected")
}

func (f *Fabric) publishAgentEvent(agentID, reason string) {
	if f.cfg.Bus == nil {
		return
	}
	f.cfg.Bus.Publish(&events.AgentEvent{
		BaseEvent: events.NewBaseEvent(eventForReason(reason)),
		AgentID:   agentID,
		Reason:    reason,
	})
}

func eventForReason(reason string) events.EventType {
	if reason == "connected" {
		return events.EventAgentConnected
	}
	return events.EventAgentDisconnected
}

// GetFileInfo asks agentName whether filename exists and its length
// (§4.4 "File inquiry RPC").
func (f *Fabric) GetFileInfo(ctx context.Context, agentName, filename string, timeout time.Duration) (FileInfo, error) {
	if timeout <= 0 {
		timeout = f.cfg.DefaultRPCTimeout
	}
	connID, ok := f.registry.connFor(agentName)
	if !ok {
		return FileInfo{}, errs.New(errs.AgentDisconnected, "agent not connected: "+agentName)
	}

	requestID := uuid.NewString()
	key := waitregistry.Key{Op: "file_info", Peer: agentName, Request: requestID}
	ch := f.waits.Register(key, timeout)

	if err := f.cfg.Push.RequestFileInfo(connID, filename, requestID); err != nil {
		f.waits.Cancel(key)
		return FileInfo{}, errs.Wrap(errs.AgentDisconnected, err, "push RequestFileInfo")
	}

	select {
	case <-ctx.Done():
		f.waits.Cancel(key)
		return FileInfo{}, errs.Wrap(errs.Cancelled, ctx.Err(), "GetFileInfo cancelled")
	case v, ok := <-ch:
		if !ok {
			return FileInfo{}, errs.New(errs.Timeout, "GetFileInfo timed out or agent disconnected")
		}
		switch value := v.(type) {
		case FileInfo:
			return value, nil
		case error:
			return FileInfo{}, errs.Wrap(errs.RemoteProtocol, value, "agent reported file-info error")
		default:
			return FileInfo{}, errs.New(errs.Internal, fmt.Sprintf("unexpected waiter payload %T", v))
		}
	}
}

// ReturnFileInfo fulfills the waiter for a prior GetFileInfo request,
// called by the inbound RPC handler when the agent replies.
func (f *Fabric) ReturnFileInfo(agentName, requestID string, info FileInfo) {
	f.waits.Fulfill(waitregistry.Key{Op: "file_info", Peer: agentName, Request: requestID}, info)
}

// GetFile fetches filename from agentName (§4.4 "File fetch RPC"). It
// returns a stream once the agent's data channel arrives, plus a complete
// function the transfer engine must call exactly once after it finishes
// relaying the stream's bytes onward — the HTTP handler that received the
// agent's upload holds the connection open until complete is called.
func (f *Fabric) GetFile(ctx context.Context, agentName, filename string, timeout time.Duration) (io.ReadCloser, func(error), error) {
	if timeout <= 0 {
		timeout = f.cfg.DefaultRPCTimeout
	}
	connID, ok := f.registry.connFor(agentName)
	if !ok {
		return nil, nil, errs.New(errs.AgentDisconnected, "agent not connected: "+agentName)
	}

	token, err := f.BeginFileUpload(agentName)
	if err != nil {
		return nil, nil, err
	}

	fetch := f.pending.begin(agentName, string(token))
	if err := f.cfg.Push.RequestFileUpload(connID, filename, token); err != nil {
		f.pending.fail(string(token), err)
		return nil, nil, errs.Wrap(errs.AgentDisconnected, err, "push RequestFileUpload")
	}

	select {
	case <-ctx.Done():
		f.pending.fail(string(token), ctx.Err())
		return nil, nil, errs.Wrap(errs.Cancelled, ctx.Err(), "GetFile cancelled")
	case <-time.After(timeout):
		f.pending.fail(string(token), errs.New(errs.Timeout, "agent did not open data channel in time"))
		return nil, nil, errs.New(errs.Timeout, "GetFile timed out waiting for agent stream")
	case err := <-fetch.failed:
		if errors.Is(err, errAgentDisconnectedMidFetch) {
			return nil, nil, errs.Wrap(errs.AgentDisconnected, err, "agent disconnected mid-fetch")
		}
		return nil, nil, errs.Wrap(errs.RemoteProtocol, err, "agent failed file upload")
	case stream := <-fetch.arrived:
		return stream, fetch.complete, nil
	}
}

// NotifyFileUploadFailed is called by the inbound RPC handler when an
// agent reports it could not serve a requested file (§4.4 "Failure
// paths"). It fails the matching pending fetch.
func (f *Fabric) NotifyFileUploadFailed(token string, agentErr error) {
	f.pending.fail(token, agentErr)
}

// ServeFileUpload validates sig against token, hands body to the matching
// GetFile waiter, and blocks until the transfer engine finishes relaying
// it (§4.4: "when upload completes the POST handler returns 200 and the
// stream is closed"). Callers are the HTTP handler behind
// `POST /agents/files/{token}`.
func (f *Fabric) ServeFileUpload(ctx context.Context, token, sig []byte, body io.ReadCloser) error {
	_, kind, err := f.ValidateTicket(token, sig)
	if err != nil {
		return err
	}
	if kind != ticketFileUpload {
		return errs.New(errs.InvalidArgument, "ticket was not issued for a file upload")
	}

	pf := f.pending.lookup(string(token))
	if pf == nil {
		return errs.New(errs.NotFound, "no pending fetch for ticket")
	}
	if !f.pending.resolve(string(token), body) {
		return errs.New(errs.Unauthorized, "ticket already consumed")
	}
	return pf.wait(ctx)
}
