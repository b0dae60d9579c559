package agentfabric

import (
	"context"
	"io"
	"sync"

	"github.com/overlayd/overlayd/internal/errs"
)

var errAgentDisconnectedMidFetch = errs.New(errs.AgentDisconnected, "agent disconnected during pending fetch")

// fetch tracks one in-flight GetFile call: the token identifies it to the
// HTTP handler that eventually receives the agent's upload, arrived
// delivers the stream, failed carries an agent-reported error, and
// complete is the callback the transfer engine invokes once it is done
// relaying the stream so the HTTP handler can close out the request.
type fetch struct {
	agentName string
	arrived   chan io.ReadCloser
	failed    chan error
	complete  func(error)
	doneCh    chan error

	mu   sync.Mutex
	done bool
}

// wait blocks until the transfer engine has finished relaying this
// fetch's stream (by closing it, which calls complete), returning
// whatever error complete was called with. Used by the HTTP handler
// backing `POST /agents/files/{token}` to hold the agent's connection
// open until the engine is done with the bytes (§4.4 "when upload
// completes the POST handler returns 200").
func (f *fetch) wait(ctx context.Context) error {
	select {
	case err := <-f.doneCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pendingFetches tracks outstanding GetFile calls by their one-shot
// upload token, so the inbound `POST /agents/files/{token}` handler and an
// agent-disconnect cascade can both resolve the right waiter.
type pendingFetches struct {
	mu    sync.Mutex
	byTok map[string]*fetch
}

func newPendingFetches() *pendingFetches {
	return &pendingFetches{byTok: make(map[string]*fetch)}
}

func (p *pendingFetches) begin(agentName, token string) *fetch {
	f := &fetch{
		agentName: agentName,
		arrived:   make(chan io.ReadCloser, 1),
		failed:    make(chan error, 1),
		doneCh:    make(chan error, 1),
	}
	f.complete = func(err error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.done {
			return
		}
		f.done = true
		f.doneCh <- err
	}

	p.mu.Lock()
	p.byTok[token] = f
	p.mu.Unlock()
	return f
}

// lookup returns the fetch registered under token without consuming it,
// or nil if none exists.
func (p *pendingFetches) lookup(token string) *fetch {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byTok[token]
}

// resolve delivers body to the waiter registered under token. Returns
// false if no such waiter exists (unknown or already-resolved token), in
// which case the caller should close body itself.
func (p *pendingFetches) resolve(token string, body io.ReadCloser) bool {
	p.mu.Lock()
	f, ok := p.byTok[token]
	delete(p.byTok, token)
	p.mu.Unlock()
	if !ok {
		return false
	}
	f.arrived <- body
	return true
}

// fail fails the waiter registered under token with err, used both for an
// explicit agent-reported failure and for timeout/cancellation cleanup.
func (p *pendingFetches) fail(token string, err error) {
	p.mu.Lock()
	f, ok := p.byTok[token]
	delete(p.byTok, token)
	p.mu.Unlock()
	if !ok {
		return
	}
	f.failed <- err
}

// cancelAgent fails every pending fetch belonging to agentName, used when
// that agent's connection drops (§4.4 "Agent disconnect during a pending
// fetch").
func (p *pendingFetches) cancelAgent(agentName string) {
	p.mu.Lock()
	dead := make(map[string]*fetch)
	for tok, f := range p.byTok {
		if f.agentName == agentName {
			dead[tok] = f
			delete(p.byTok, tok)
		}
	}
	p.mu.Unlock()

	for _, f := range dead {
		f.failed <- errAgentDisconnectedMidFetch
	}
}
