// Package overlay implements the overlay session controller described in
// §4.3: it keeps one authenticated, logged-in session with the overlay
// server, reconnecting with exponential backoff on unexpected disconnect
// and publishing session state to the shared event bus and state store.
package overlay

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/overlayd/overlayd/internal/events"
	"github.com/overlayd/overlayd/internal/shareindex"
	"github.com/overlayd/overlayd/internal/statestore"
)

// State is the controller's FSM state (§4.3).
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	LoggingIn
	LoggedIn
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case LoggingIn:
		return "logging_in"
	case LoggedIn:
		return "logged_in"
	default:
		return "unknown"
	}
}

func (s State) connectivity() statestore.Connectivity {
	return statestore.Connectivity(s.String())
}

const (
	defaultBaseDelay = time.Second
	defaultMaxDelay  = 5 * time.Minute
)

// UploadSpeedSource reports the daemon's current aggregate upload rate, so
// afterLogin can push it to the overlay server alongside the shared counts.
type UploadSpeedSource interface {
	TotalUploadSpeed() int64
}

// Config wires a Controller to the rest of the daemon.
type Config struct {
	Protocol    PeerProtocol
	Credentials CredentialSource
	Shares      *shareindex.Index
	States      *statestore.Store
	Bus         *events.Bus

	// BaseDelay/MaxDelay bound the reconnect backoff (§4.3); default to
	// 1s/5m when zero.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	Resolvers Resolvers

	// UploadSpeed is optional; when set, afterLogin reports its value via
	// SendUploadSpeedAsync alongside SetSharedCountsAsync.
	UploadSpeed UploadSpeedSource
}

// Controller owns one overlay session's lifecycle.
type Controller struct {
	cfg Config

	mu    sync.Mutex
	state State

	shutdown   chan struct{}
	disconnect chan string
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// New constructs a Controller. Resolvers left nil in cfg default to the
// share index's own Search/Browse/List where applicable.
func New(cfg Config) *Controller {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	cfg.Resolvers = withDefaultResolvers(cfg.Resolvers, cfg.Shares)

	return &Controller{
		cfg:        cfg,
		state:      Disconnected,
		shutdown:   make(chan struct{}),
		disconnect: make(chan string, 1),
	}
}

func withDefaultResolvers(r Resolvers, shares *shareindex.Index) Resolvers {
	if shares == nil {
		return r
	}
	if r.Browse == nil {
		r.Browse = func(ctx context.Context) (BrowseResult, error) {
			return BrowseResult{Directories: shares.BrowseVisible()}, nil
		}
	}
	if r.Directory == nil {
		r.Directory = func(ctx context.Context, path string) (shareindex.Directory, error) {
			return shares.ListVisible(path)
		}
	}
	if r.SearchResponse == nil {
		r.SearchResponse = func(ctx context.Context, query string) ([]shareindex.File, error) {
			return shares.SearchVisible(query), nil
		}
	}
	return r
}

// State returns the controller's current FSM state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start registers resolvers with the protocol and begins the
// connect/login/reconnect loop in the background. The loop runs until
// Stop is called or ctx is cancelled.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.cfg.Protocol.RegisterResolvers(c.cfg.Resolvers); err != nil {
		return err
	}
	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

// Stop shuts the controller down: process shutdown is one of the four
// causes that short-circuits the reconnect loop (§4.3).
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.shutdown) })
	c.wg.Wait()
}

// Disconnect requests an explicit operator disconnect, another
// short-circuit cause. Safe to call at any state.
func (c *Controller) Disconnect(reason string) {
	select {
	case c.disconnect <- reason:
	default:
	}
}

func (c *Controller) run(ctx context.Context) {
	defer c.wg.Done()

	attempt := 0
	for {
		select {
		case <-c.shutdown:
			return
		case <-ctx.Done():
			return
		default:
		}

		cause, err := c.connectAndServe(ctx)
		c.setState(Disconnected, cause.String())

		if !cause.reconnects() {
			return
		}

		attempt++
		delay := reconnectDelay(attempt, c.cfg.BaseDelay, c.cfg.MaxDelay)
		select {
		case <-c.shutdown:
			return
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		_ = err // not reported: SessionStateEvent carries only the cause
	}
}

// reconnectDelay implements §4.3's backoff for the nth reconnect attempt
// (n counts from 1): delay_n = min(2^(n-1)*base, cap) +
// uniform_jitter(0, 0.1*delay_n). The jitter is added on top of the capped
// delay rather than drawing the whole delay uniformly from [0, capped] —
// the reconnect loop's jitter band is only the last 10%.
func reconnectDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	capped := base
	for i := 1; i < attempt && capped < maxDelay; i++ {
		capped *= 2
	}
	if capped > maxDelay {
		capped = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(capped)/10 + 1))
	return capped + jitter
}

// connectAndServe runs one full connect-login-serve cycle, returning the
// cause the session ended for together with the error behind it, if any: a
// failed Connect yields DisconnectUnexpected, a failed Login
// DisconnectInvalidCredentials.
func (c *Controller) connectAndServe(ctx context.Context) (DisconnectCause, error) {
	c.setState(Connecting, "")
	if err := c.cfg.Protocol.Connect(ctx); err != nil {
		return DisconnectUnexpected, err
	}
	c.setState(Connected, "")

	username, password := c.cfg.Credentials.Current()
	c.setState(LoggingIn, "")
	if err := c.cfg.Protocol.Login(ctx, username, password); err != nil {
		_ = c.cfg.Protocol.Disconnect("login failed")
		return DisconnectInvalidCredentials, err
	}
	c.setState(LoggedIn, "")
	c.afterLogin(ctx)

	return c.serve(ctx)
}

// afterLogin runs the three post-login actions from §4.3(a)(b)(c).
func (c *Controller) afterLogin(ctx context.Context) {
	if c.cfg.States != nil {
		c.cfg.States.Update(func(s *statestore.Snapshot) {
			s.Connectivity = LoggedIn.connectivity()
		})
	}
	if c.cfg.Shares != nil {
		dirs, files := c.cfg.Shares.Stats()
		_ = c.cfg.Protocol.SetSharedCountsAsync(ctx, dirs, files)
	}
	if c.cfg.UploadSpeed != nil {
		_ = c.cfg.Protocol.SendUploadSpeedAsync(ctx, c.cfg.UploadSpeed.TotalUploadSpeed())
	}
	// Event-stream subscription is implicit: Events() is already being
	// drained by serve() below.
}

// serve drains the protocol's event stream until disconnect, operator
// request, or shutdown, dispatching each inbound event.
func (c *Controller) serve(ctx context.Context) (DisconnectCause, error) {
	stream := c.cfg.Protocol.Events()
	for {
		select {
		case <-c.shutdown:
			_ = c.cfg.Protocol.Disconnect("shutdown")
			return DisconnectShutdown, nil
		case <-ctx.Done():
			_ = c.cfg.Protocol.Disconnect("shutdown")
			return DisconnectShutdown, ctx.Err()
		case reason := <-c.disconnect:
			_ = c.cfg.Protocol.Disconnect(reason)
			return DisconnectOperator, nil
		case ev, ok := <-stream:
			if !ok {
				return DisconnectUnexpected, nil
			}
			if ev.Kind == EventDisconnected {
				return ev.Disconnect.Cause, ev.Disconnect.Err
			}
			c.dispatch(ctx, ev)
		}
	}
}

// dispatch handles one inbound non-disconnect protocol event.
func (c *Controller) dispatch(ctx context.Context, ev ProtocolEvent) {
	switch ev.Kind {
	case EventSearchRequest:
		if ev.SearchRequest == nil || c.cfg.Resolvers.SearchResponse == nil {
			return
		}
		results, err := c.cfg.Resolvers.SearchResponse(ctx, ev.SearchRequest.Query)
		if err != nil {
			return
		}
		if c.cfg.Bus != nil {
			c.cfg.Bus.Publish(&events.SearchResultEvent{
				BaseEvent:   events.NewBaseEvent(events.EventSearchResult),
				Token:       ev.SearchRequest.Token,
				Username:    ev.SearchRequest.Username,
				ResultCount: len(results),
			})
		}
	case EventPrivateMessage, EventRoomMessage, EventPeerStatus:
		// No dedicated event types for these yet; logging-only for now,
		// via the shared bus's LogEvent so the control socket's log
		// tail picks them up without a protocol-specific event type.
		if c.cfg.Bus != nil {
			c.cfg.Bus.Publish(events.LogEvent{
				BaseEvent: events.NewBaseEvent(events.EventLog),
				Level:     events.DebugLevel,
				Message:   "overlay event",
			})
		}
	}
}

func (c *Controller) setState(next State, cause string) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()

	if prev == next {
		return
	}
	if c.cfg.Bus != nil {
		c.cfg.Bus.Publish(&events.SessionStateEvent{
			BaseEvent: events.NewBaseEvent(events.EventSessionStateChanged),
			OldState:  prev.String(),
			NewState:  next.String(),
			Cause:     cause,
		})
	}
	if c.cfg.States != nil {
		c.cfg.States.Update(func(s *statestore.Snapshot) {
			s.Connectivity = next.connectivity()
		})
	}
}
