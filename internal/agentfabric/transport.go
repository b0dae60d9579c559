package agentfabric

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// frame is the wire envelope for every message exchanged over an agent
// control channel: a persistent, bidirectional, newline-delimited JSON
// stream (§6 "Agent transport"). Unlike a one-shot request/response, the
// channel stays open for the life of the connection: the server pushes
// Challenge/RequestFileInfo/RequestFileUpload whenever it needs to, and
// the agent calls Login/BeginShareUpload/NotifyFileUploadFailed/
// ReturnFileInfo whenever it needs to, in either order.
type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	frameChallenge           = "challenge"
	frameLogin               = "login"
	frameLoginResult         = "login_result"
	frameFileInfoRequest     = "file_info_request"
	frameReturnFileInfo      = "return_file_info"
	frameFileUploadRequest   = "file_upload_request"
	frameUploadFailed        = "upload_failed"
	frameBeginShareUpload    = "begin_share_upload"
	frameBeginShareUploadACK = "begin_share_upload_result"
)

type challengePayload struct {
	Token []byte `json:"token"`
}

type loginPayload struct {
	AgentName string `json:"agent_name"`
	Response  []byte `json:"response"`
}

type loginResultPayload struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type fileInfoRequestPayload struct {
	Filename  string `json:"filename"`
	RequestID string `json:"request_id"`
}

type returnFileInfoPayload struct {
	RequestID string `json:"request_id"`
	Exists    bool   `json:"exists"`
	Length    int64  `json:"length"`
}

type fileUploadRequestPayload struct {
	Filename string `json:"filename"`
	Token    []byte `json:"token"`
}

type uploadFailedPayload struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

type beginShareUploadResultPayload struct {
	Token []byte `json:"token,omitempty"`
	Error string `json:"error,omitempty"`
}

func encodeFrame(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	line, err := json.Marshal(frame{Type: typ, Payload: raw})
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}

// agentConn is one live connection to an agent, holding the write-side
// mutex that serializes pushes against it.
type agentConn struct {
	id   string
	conn net.Conn
	mu   sync.Mutex
}

func (c *agentConn) send(typ string, payload any) error {
	line, err := encodeFrame(typ, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.conn.Write(line)
	return err
}

// Server accepts agent connections and dispatches their RPCs into a
// Fabric, while exposing the push methods (Challenge/RequestFileInfo/
// RequestFileUpload) that Fabric calls back out through (§5 "one task per
// agent connection").
type Server struct {
	fabric *Fabric
	log    zerolog.Logger

	mu    sync.Mutex
	conns map[string]*agentConn

	listener net.Listener
	wg       sync.WaitGroup
}

var _ Push = (*Server)(nil)

// NewServer constructs a transport Server bound to fabric.
func NewServer(fabric *Fabric, log zerolog.Logger) *Server {
	return &Server{
		fabric: fabric,
		log:    log.With().Str("component", "agentfabric").Logger(),
		conns:  make(map[string]*agentConn),
	}
}

// Serve accepts connections on listener until it errors or is closed.
// Callers typically run this in its own goroutine and close listener to
// stop it.
func (s *Server) Serve(listener net.Listener) error {
	s.listener = listener
	for {
		conn, err := listener.Accept()
		if err != nil {
			return err
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Wait blocks until every in-flight connection handler has returned,
// intended to be called after the listener has been closed.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	id := uuid.NewString()
	ac := &agentConn{id: id, conn: conn}

	s.mu.Lock()
	s.conns[id] = ac
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
		s.fabric.OnAgentDisconnected(id)
	}()

	challenge, err := s.fabric.BeginChallenge(id)
	if err != nil {
		s.log.Error().Err(err).Str("conn", id).Msg("mint challenge")
		return
	}
	if err := ac.send(frameChallenge, challengePayload{Token: challenge}); err != nil {
		s.log.Warn().Err(err).Str("conn", id).Msg("send challenge")
		return
	}

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				s.log.Debug().Err(err).Str("conn", id).Msg("agent read error")
			}
			return
		}
		var f frame
		if err := json.Unmarshal(line, &f); err != nil {
			s.log.Warn().Err(err).Str("conn", id).Msg("malformed frame")
			continue
		}
		s.dispatch(id, ac, f)
	}
}

func (s *Server) dispatch(connID string, ac *agentConn, f frame) {
	switch f.Type {
	case frameLogin:
		var p loginPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return
		}
		err := s.fabric.Login(connID, p.AgentName, p.Response)
		result := loginResultPayload{OK: err == nil}
		if err != nil {
			result.Error = err.Error()
		}
		_ = ac.send(frameLoginResult, result)

	case frameBeginShareUpload:
		name, ok := s.fabric.registry.nameFor(connID)
		if !ok {
			_ = ac.send(frameBeginShareUploadACK, beginShareUploadResultPayload{Error: "not logged in"})
			return
		}
		token, err := s.fabric.BeginShareUpload(name)
		if err != nil {
			_ = ac.send(frameBeginShareUploadACK, beginShareUploadResultPayload{Error: err.Error()})
			return
		}
		_ = ac.send(frameBeginShareUploadACK, beginShareUploadResultPayload{Token: token})

	case frameReturnFileInfo:
		var p returnFileInfoPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return
		}
		name, ok := s.fabric.registry.nameFor(connID)
		if !ok {
			return
		}
		s.fabric.ReturnFileInfo(name, p.RequestID, FileInfo{Exists: p.Exists, Length: p.Length})

	case frameUploadFailed:
		var p uploadFailedPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return
		}
		s.fabric.NotifyFileUploadFailed(p.Token, fmt.Errorf("%s", p.Error))

	default:
		s.log.Warn().Str("type", f.Type).Str("conn", connID).Msg("unknown frame type")
	}
}

// Challenge implements Push, pushing a fresh challenge token to an agent
// connection that has not yet completed a re-challenge mid-session. In
// practice Serve already pushes the initial challenge itself; this exists
// so Fabric's Push interface is fully satisfied for tests and for a future
// re-challenge policy.
func (s *Server) Challenge(connID string, token []byte) error {
	ac, ok := s.connFor(connID)
	if !ok {
		return fmt.Errorf("no such connection: %s", connID)
	}
	return ac.send(frameChallenge, challengePayload{Token: token})
}

// RequestFileInfo implements Push.
func (s *Server) RequestFileInfo(connID, filename, requestID string) error {
	ac, ok := s.connFor(connID)
	if !ok {
		return fmt.Errorf("no such connection: %s", connID)
	}
	return ac.send(frameFileInfoRequest, fileInfoRequestPayload{Filename: filename, RequestID: requestID})
}

// RequestFileUpload implements Push.
func (s *Server) RequestFileUpload(connID, filename string, token []byte) error {
	ac, ok := s.connFor(connID)
	if !ok {
		return fmt.Errorf("no such connection: %s", connID)
	}
	return ac.send(frameFileUploadRequest, fileUploadRequestPayload{Filename: filename, Token: token})
}

func (s *Server) connFor(connID string) (*agentConn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ac, ok := s.conns[connID]
	return ac, ok
}

// connCount reports the number of live agent connections, used by tests.
func (s *Server) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
