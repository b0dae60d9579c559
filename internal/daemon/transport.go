package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/overlayd/overlayd/internal/overlay"
)

// protocolTransport adapts overlay.PeerProtocol's callback-shaped
// UploadAsync/DownloadAsync to the stream-shaped transfer.PeerTransport the
// engine expects.
type protocolTransport struct {
	protocol overlay.PeerProtocol
	stageDir string
}

func newProtocolTransport(protocol overlay.PeerProtocol, stageDir string) *protocolTransport {
	return &protocolTransport{protocol: protocol, stageDir: stageDir}
}

// OpenUploadStream bridges the engine's streaming write side to
// UploadAsync's io.Reader parameter with an in-process pipe: the engine
// copies local bytes into the returned writer while a goroutine drives the
// protocol call against the reader end.
func (t *protocolTransport) OpenUploadStream(ctx context.Context, username, remoteFilename string, size int64) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	go func() {
		err := t.protocol.UploadAsync(ctx, username, remoteFilename, size, pr, overlay.UploadOptions{})
		pr.CloseWithError(err)
	}()
	return pw, nil
}

// OpenDownloadStream runs DownloadAsync to completion against a staged
// temp file, then hands back a reader over it — DownloadAsync writes
// straight to a local path rather than exposing a stream, unlike its
// upload counterpart.
func (t *protocolTransport) OpenDownloadStream(ctx context.Context, username, remoteFilename string) (io.ReadCloser, error) {
	staged := filepath.Join(t.stageDir, fmt.Sprintf("%s-%s", username, filepath.Base(remoteFilename)))
	if err := os.MkdirAll(t.stageDir, 0o700); err != nil {
		return nil, err
	}
	if err := t.protocol.DownloadAsync(ctx, username, remoteFilename, staged, overlay.DownloadOptions{}); err != nil {
		return nil, err
	}
	f, err := os.Open(staged)
	if err != nil {
		return nil, err
	}
	return stagedFile{File: f, path: staged}, nil
}

// stagedFile deletes its backing temp file once the engine finishes
// reading it.
type stagedFile struct {
	*os.File
	path string
}

func (s stagedFile) Close() error {
	err := s.File.Close()
	os.Remove(s.path)
	return err
}
