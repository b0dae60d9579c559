package daemon

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/overlayd/overlayd/internal/overlay"
)

// fakeProtocol implements overlay.PeerProtocol with only UploadAsync and
// DownloadAsync doing real work; every other method is an unused stub since
// protocolTransport never calls them.
type fakeProtocol struct {
	uploadedBytes []byte
	uploadErr     error
	uploadDone    chan struct{}

	downloadContent []byte
	downloadErr     error
	downloadedPath  string
}

func (f *fakeProtocol) Connect(ctx context.Context) error { return nil }

func (f *fakeProtocol) Login(ctx context.Context, username, password string) error { return nil }

func (f *fakeProtocol) Disconnect(reason string) error { return nil }

func (f *fakeProtocol) SearchAsync(ctx context.Context, query string, scope overlay.SearchScope, token string, opts overlay.SearchOptions) error {
	return nil
}

func (f *fakeProtocol) BrowseAsync(ctx context.Context, peer string) (overlay.BrowseResult, error) {
	return overlay.BrowseResult{}, nil
}

func (f *fakeProtocol) SendUploadSpeedAsync(ctx context.Context, bytesPerSecond int64) error {
	return nil
}

func (f *fakeProtocol) SetSharedCountsAsync(ctx context.Context, dirs, files int) error { return nil }

func (f *fakeProtocol) ReconfigureOptions(patch map[string]any) (bool, error) { return false, nil }

func (f *fakeProtocol) RegisterResolvers(overlay.Resolvers) error { return nil }

func (f *fakeProtocol) Events() <-chan overlay.ProtocolEvent { return nil }

func (f *fakeProtocol) UploadAsync(ctx context.Context, peer, filename string, size int64, stream io.Reader, opts overlay.UploadOptions) error {
	data, err := io.ReadAll(stream)
	f.uploadedBytes = data
	if f.uploadDone != nil {
		defer close(f.uploadDone)
	}
	if err != nil {
		return err
	}
	return f.uploadErr
}

func (f *fakeProtocol) DownloadAsync(ctx context.Context, peer, filename, localPath string, opts overlay.DownloadOptions) error {
	f.downloadedPath = localPath
	if f.downloadErr != nil {
		return f.downloadErr
	}
	return os.WriteFile(localPath, f.downloadContent, 0o600)
}

func TestProtocolTransport_OpenUploadStreamPipesToProtocol(t *testing.T) {
	proto := &fakeProtocol{uploadDone: make(chan struct{})}
	pt := newProtocolTransport(proto, t.TempDir())

	w, err := pt.OpenUploadStream(context.Background(), "alice", "song.flac", 5)
	require.NoError(t, err)

	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	select {
	case <-proto.uploadDone:
	case <-time.After(2 * time.Second):
		t.Fatal("UploadAsync never completed")
	}
	require.Equal(t, []byte("hello"), proto.uploadedBytes)
}

func TestProtocolTransport_OpenDownloadStreamStagesThenReads(t *testing.T) {
	stageDir := t.TempDir()
	proto := &fakeProtocol{downloadContent: []byte("file contents")}
	pt := newProtocolTransport(proto, stageDir)

	r, err := pt.OpenDownloadStream(context.Background(), "bob", "track.mp3")
	require.NoError(t, err)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "file contents", string(data))
	require.NoError(t, r.Close())

	// the staged temp file is removed once the caller closes the stream
	_, statErr := os.Stat(filepath.Join(stageDir, filepath.Base(proto.downloadedPath)))
	require.True(t, os.IsNotExist(statErr))
}

func TestProtocolTransport_OpenDownloadStreamPropagatesError(t *testing.T) {
	proto := &fakeProtocol{downloadErr: io.ErrUnexpectedEOF}
	pt := newProtocolTransport(proto, t.TempDir())

	_, err := pt.OpenDownloadStream(context.Background(), "bob", "track.mp3")
	require.Error(t, err)
}
