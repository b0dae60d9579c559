package agentfabric

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/overlayd/overlayd/internal/errs"
	"github.com/overlayd/overlayd/internal/transfer"
)

// AgentPathPrefix marks a shareindex-resolved local path as living on a
// remote agent rather than this host's filesystem (§4.1 "Uploads where the
// content lives on an agent"). The shareindex records which directory
// alias maps to which agent; callers that resolve a path into this form
// use EncodeAgentPath.
const AgentPathPrefix = "agent://"

// EncodeAgentPath packs an agent name and the filename it should be asked
// for into the LocalPath form AgentByteSource understands.
func EncodeAgentPath(agentName, filename string) string {
	return AgentPathPrefix + agentName + "/" + filename
}

// decodeAgentPath reverses EncodeAgentPath. ok is false if localPath isn't
// an agent-backed path at all.
func decodeAgentPath(localPath string) (agentName, filename string, ok bool) {
	rest, found := strings.CutPrefix(localPath, AgentPathPrefix)
	if !found {
		return "", "", false
	}
	agentName, filename, found = strings.Cut(rest, "/")
	if !found {
		return "", "", false
	}
	return agentName, filename, true
}

// IsAgentPath reports whether localPath was produced by EncodeAgentPath.
func IsAgentPath(localPath string) bool {
	_, _, ok := decodeAgentPath(localPath)
	return ok
}

// AgentByteSource implements transfer.ByteSource by fetching the upload's
// bytes from a remote agent instead of the local filesystem, via the
// agent fabric's file fetch RPC (§4.4 "File fetch RPC").
type AgentByteSource struct {
	Fabric  *Fabric
	Timeout time.Duration // defaults to Fabric's own DefaultRPCTimeout if zero
}

var _ transfer.ByteSource = AgentByteSource{}

// Open resolves t.LocalPath as an agent path and fetches the stream.
func (s AgentByteSource) Open(ctx context.Context, t *transfer.Transfer) (io.ReadCloser, error) {
	agentName, filename, ok := decodeAgentPath(t.LocalPath)
	if !ok {
		return nil, errs.New(errs.Internal, fmt.Sprintf("not an agent path: %s", t.LocalPath))
	}

	stream, complete, err := s.Fabric.GetFile(ctx, agentName, filename, s.Timeout)
	if err != nil {
		return nil, err
	}
	return &completingStream{ReadCloser: stream, complete: complete}, nil
}

// completingStream wraps the agent's stream so that closing it (which the
// engine does once it has relayed every byte onward, or on an early
// failure) also signals the fetch's completion promise, releasing the
// `POST /agents/files/{token}` handler that is holding the connection
// open pending that signal (§4.4 "the HTTP handler resolves the stream
// promise").
type completingStream struct {
	io.ReadCloser
	complete func(error)
}

func (c *completingStream) Close() error {
	err := c.ReadCloser.Close()
	c.complete(err)
	return err
}
