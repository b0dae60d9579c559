package agentfabric

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/overlayd/overlayd/internal/crypto"
	"github.com/overlayd/overlayd/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// scriptedAgent is a bare-bones stand-in for a real agent: it reads/writes
// frames directly over a net.Conn the way an actual agent implementation
// would, without going through any agentfabric helper.
type scriptedAgent struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dialAgent(t *testing.T, addr string) *scriptedAgent {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	return &scriptedAgent{conn: conn, reader: bufio.NewReader(conn)}
}

func (a *scriptedAgent) readFrame(t *testing.T) frame {
	t.Helper()
	line, err := a.reader.ReadBytes('\n')
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(line, &f))
	return f
}

func (a *scriptedAgent) send(t *testing.T, typ string, payload any) {
	t.Helper()
	line, err := encodeFrame(typ, payload)
	require.NoError(t, err)
	_, err = a.conn.Write(line)
	require.NoError(t, err)
}

func startTestServer(t *testing.T, fabric *Fabric) (*Server, string) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(fabric, zerolog.Nop())
	go srv.Serve(listener)
	t.Cleanup(func() {
		listener.Close()
		srv.Wait()
	})
	return srv, listener.Addr().String()
}

func TestTransport_ChallengeLoginRoundTrip(t *testing.T) {
	bus := events.NewBus(16)
	secret := []byte("transport-test-secret-0123456789")
	fabric := New(Config{Secret: secret, Bus: bus})
	srv, addr := startTestServer(t, fabric)

	agent := dialAgent(t, addr)
	defer agent.conn.Close()

	challengeFrame := agent.readFrame(t)
	require.Equal(t, frameChallenge, challengeFrame.Type)
	var cp challengePayload
	require.NoError(t, json.Unmarshal(challengeFrame.Payload, &cp))

	resp, err := crypto.EncryptChallenge(secret, cp.Token)
	require.NoError(t, err)
	agent.send(t, frameLogin, loginPayload{AgentName: "agent-a", Response: resp})

	resultFrame := agent.readFrame(t)
	require.Equal(t, frameLoginResult, resultFrame.Type)
	var lr loginResultPayload
	require.NoError(t, json.Unmarshal(resultFrame.Payload, &lr))
	require.True(t, lr.OK)

	require.Eventually(t, func() bool { return srv.connCount() == 1 }, time.Second, time.Millisecond)
	_, ok := fabric.registry.connFor("agent-a")
	require.True(t, ok)
}

func TestTransport_FileInfoPushAndReturn(t *testing.T) {
	secret := []byte("transport-test-secret-0123456789")
	fabric := New(Config{Secret: secret, DefaultRPCTimeout: 2 * time.Second})
	_, addr := startTestServer(t, fabric)

	agent := dialAgent(t, addr)
	defer agent.conn.Close()

	challengeFrame := agent.readFrame(t)
	var cp challengePayload
	require.NoError(t, json.Unmarshal(challengeFrame.Payload, &cp))
	resp, err := crypto.EncryptChallenge(secret, cp.Token)
	require.NoError(t, err)
	agent.send(t, frameLogin, loginPayload{AgentName: "agent-a", Response: resp})
	_ = agent.readFrame(t) // login_result

	done := make(chan FileInfo, 1)
	go func() {
		info, err := fabric.GetFileInfo(context.Background(), "agent-a", "song.flac", 2*time.Second)
		require.NoError(t, err)
		done <- info
	}()

	reqFrame := agent.readFrame(t)
	require.Equal(t, frameFileInfoRequest, reqFrame.Type)
	var rp fileInfoRequestPayload
	require.NoError(t, json.Unmarshal(reqFrame.Payload, &rp))
	require.Equal(t, "song.flac", rp.Filename)

	agent.send(t, frameReturnFileInfo, returnFileInfoPayload{RequestID: rp.RequestID, Exists: true, Length: 2048})

	select {
	case info := <-done:
		require.True(t, info.Exists)
		require.EqualValues(t, 2048, info.Length)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for GetFileInfo to resolve")
	}
}

func TestTransport_DisconnectDeregistersAgent(t *testing.T) {
	secret := []byte("transport-test-secret-0123456789")
	fabric := New(Config{Secret: secret})
	srv, addr := startTestServer(t, fabric)

	agent := dialAgent(t, addr)
	challengeFrame := agent.readFrame(t)
	var cp challengePayload
	require.NoError(t, json.Unmarshal(challengeFrame.Payload, &cp))
	resp, err := crypto.EncryptChallenge(secret, cp.Token)
	require.NoError(t, err)
	agent.send(t, frameLogin, loginPayload{AgentName: "agent-a", Response: resp})
	_ = agent.readFrame(t)

	require.Eventually(t, func() bool { return srv.connCount() == 1 }, time.Second, time.Millisecond)
	agent.conn.Close()

	require.Eventually(t, func() bool {
		_, ok := fabric.registry.connFor("agent-a")
		return !ok
	}, time.Second, time.Millisecond)
}
