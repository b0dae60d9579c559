package controlsock

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler is what the daemon implements to answer control-plane requests.
// Its methods return controlsock's own DTOs rather than internal engine
// types, so this package never imports internal/transfer, internal/
// shareindex, or internal/agentfabric directly — the daemon package is
// the only place that translates between them.
type Handler interface {
	ListShares() ([]ShareDirectory, error)
	RescanShares() error
	ListTransfers(direction string) ([]TransferEntry, error)
	CancelTransfer(direction, username, id string) error
	ListAgents() ([]AgentEntry, error)
	RecentLogs(n int) ([]LogLine, error)
}

// DefaultSocketPath resolves the control socket location: under
// $XDG_RUNTIME_DIR/overlayd/ if set, else under
// ~/.local/state/overlayd/ (§6.1).
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "overlayd", "control.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "overlayd", "control.sock")
	}
	return filepath.Join(home, ".local", "state", "overlayd", "control.sock")
}

// Server accepts control-plane connections over a Unix domain socket and
// dispatches each one-shot request to a Handler.
type Server struct {
	handler    Handler
	log        zerolog.Logger
	socketPath string

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer constructs a Server bound to handler, listening at
// DefaultSocketPath().
func NewServer(handler Handler, log zerolog.Logger) *Server {
	return NewServerWithPath(handler, log, DefaultSocketPath())
}

// NewServerWithPath constructs a Server listening at a caller-chosen path,
// used by tests to avoid colliding with a real daemon's socket.
func NewServerWithPath(handler Handler, log zerolog.Logger, socketPath string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handler:    handler,
		log:        log.With().Str("component", "controlsock").Logger(),
		socketPath: socketPath,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start creates the socket directory, removes any stale socket file left
// behind by a prior crashed run, binds the listener, restricts its
// permissions to the owning user, and begins accepting connections.
func (s *Server) Start() error {
	socketDir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(socketDir, 0700); err != nil {
		return fmt.Errorf("create control socket directory: %w", err)
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale control socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on control socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		s.listener.Close()
		return fmt.Errorf("set control socket permissions: %w", err)
	}

	s.log.Info().Str("socket", s.socketPath).Msg("control socket listening")

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener, waits for in-flight requests to finish, and
// removes the socket file.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
	s.log.Info().Msg("control socket stopped")
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.log.Warn().Err(err).Msg("accept control connection")
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(30 * time.Second))

	reader := bufio.NewReader(conn)
	data, err := reader.ReadBytes('\n')
	if err != nil {
		if err != io.EOF {
			s.log.Warn().Err(err).Msg("read control request")
		}
		return
	}

	req, err := DecodeRequest(data)
	if err != nil {
		s.sendResponse(conn, NewErrorResponse("invalid request format"))
		return
	}

	s.sendResponse(conn, s.handleRequest(req))
}

func (s *Server) handleRequest(req *Request) *Response {
	switch req.Type {
	case MsgListShares:
		dirs, err := s.handler.ListShares()
		if err != nil {
			return NewErrorResponse(err.Error())
		}
		return NewShareListResponse(dirs)

	case MsgRescanShares:
		if err := s.handler.RescanShares(); err != nil {
			return NewErrorResponse(err.Error())
		}
		return NewOKResponse()

	case MsgListTransfers:
		transfers, err := s.handler.ListTransfers(req.Direction)
		if err != nil {
			return NewErrorResponse(err.Error())
		}
		return NewTransferListResponse(transfers)

	case MsgCancelTransfer:
		if err := s.handler.CancelTransfer(req.Direction, req.Username, req.ID); err != nil {
			return NewErrorResponse(err.Error())
		}
		return NewOKResponse()

	case MsgListAgents:
		agents, err := s.handler.ListAgents()
		if err != nil {
			return NewErrorResponse(err.Error())
		}
		return NewAgentListResponse(agents)

	case MsgListLogs:
		n := 100
		if req.ID != "" {
			if parsed, err := strconv.Atoi(req.ID); err == nil && parsed > 0 {
				n = parsed
			}
		}
		lines, err := s.handler.RecentLogs(n)
		if err != nil {
			return NewErrorResponse(err.Error())
		}
		return NewLogListResponse(lines)

	default:
		return NewErrorResponse(fmt.Sprintf("unknown request type: %s", req.Type))
	}
}

func (s *Server) sendResponse(conn net.Conn, resp *Response) {
	data, err := resp.Encode()
	if err != nil {
		s.log.Error().Err(err).Msg("encode control response")
		return
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		s.log.Warn().Err(err).Msg("send control response")
	}
}
