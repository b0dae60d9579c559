package transfer

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// ByteSource supplies the bytes an upload serves to a peer. The engine
// doesn't care whether those bytes come from the local filesystem or from
// an agent's ticketed upload stream (§4.1 "Uploads where the content lives
// on an agent") — both satisfy this interface identically.
type ByteSource interface {
	Open(ctx context.Context, t *Transfer) (io.ReadCloser, error)
}

// ByteSink receives the bytes a download writes to local storage.
type ByteSink interface {
	Open(ctx context.Context, t *Transfer) (io.WriteCloser, error)
}

// PeerTransport is the overlay wire connection the engine moves transfer
// bytes across — assumed to be provided by the peer-protocol layer (§6).
// Per spec.md:77, a failure here is classified by the peer-protocol layer
// itself as TimedOut, Rejected, or Errored; an implementation signals which
// by returning an *errs.Error of Kind errs.Timeout or errs.PeerRejected —
// classifyTransferErr maps those straight to CompletedTimedOut/
// CompletedRejected, and anything else (including a plain error) to
// CompletedErrored.
type PeerTransport interface {
	// OpenUploadStream returns a writer the engine copies local bytes into,
	// destined for username over the overlay. size is the transfer's
	// total byte count, known upfront so the transport can announce it. A
	// peer declining the upload outright returns an errs.PeerRejected error.
	OpenUploadStream(ctx context.Context, username, remoteFilename string, size int64) (io.WriteCloser, error)
	// OpenDownloadStream returns a reader yielding the bytes username is
	// sending us for remoteFilename. A peer that never responds within the
	// protocol's own wait window returns an errs.Timeout error.
	OpenDownloadStream(ctx context.Context, username, remoteFilename string) (io.ReadCloser, error)
}

// LocalFileSource opens the resolved share path directly off disk — the
// default ByteSource for uploads whose file belongs to this host rather
// than a federated agent.
type LocalFileSource struct{}

func (LocalFileSource) Open(_ context.Context, t *Transfer) (io.ReadCloser, error) {
	return os.Open(t.LocalPath)
}

// LocalFileSink writes a download to t.LocalPath, creating parent
// directories as needed.
type LocalFileSink struct{}

func (LocalFileSink) Open(_ context.Context, t *Transfer) (io.WriteCloser, error) {
	if dir := filepath.Dir(t.LocalPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.Create(t.LocalPath)
}
