package transfer

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/overlayd/overlayd/internal/errs"
)

type fakeResolver struct {
	files map[string]string
}

func (f *fakeResolver) Resolve(remoteFilename string) (string, error) {
	p, ok := f.files[remoteFilename]
	if !ok {
		return "", errs.New(errs.NotFound, "no such share")
	}
	return p, nil
}

type fakeTransport struct {
	uploadPayload []byte
}

func (f *fakeTransport) OpenUploadStream(ctx context.Context, username, remoteFilename string, size int64) (io.WriteCloser, error) {
	return nopWriteCloser{io.Discard}, nil
}

func (f *fakeTransport) OpenDownloadStream(ctx context.Context, username, remoteFilename string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.uploadPayload)), nil
}

// erroringTransport fails whichever stream direction is exercised with a
// fixed error, so classifyTransferErr's handling of it can be asserted.
type erroringTransport struct {
	err error
}

func (e *erroringTransport) OpenUploadStream(ctx context.Context, username, remoteFilename string, size int64) (io.WriteCloser, error) {
	return nil, e.err
}

func (e *erroringTransport) OpenDownloadStream(ctx context.Context, username, remoteFilename string) (io.ReadCloser, error) {
	return nil, e.err
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type memStore struct {
	snapshots map[string]Snapshot
}

func newMemStore() *memStore { return &memStore{snapshots: make(map[string]Snapshot)} }

func (m *memStore) SaveSnapshot(s Snapshot) error {
	m.snapshots[s.ID] = s
	return nil
}

func (m *memStore) LoadNonTerminal() ([]Snapshot, error) {
	var out []Snapshot
	for _, s := range m.snapshots {
		if !s.State.Terminal() {
			out = append(out, s)
		}
	}
	return out, nil
}

func waitForState(t *testing.T, tr *Transfer, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if tr.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("transfer %s never reached state %s, stuck at %s", tr.ID, want, tr.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEngine_EnqueueUpload_NotShared(t *testing.T) {
	e := New(Config{Resolver: &fakeResolver{files: map[string]string{}}, Transport: &fakeTransport{}})
	defer e.Stop()

	_, err := e.Enqueue(Upload, "alice", "missing.txt", 100)
	if errs.KindOf(err) != errs.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestEngine_EnqueueUpload_AlreadyQueued(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	os.WriteFile(path, []byte("data"), 0o644)

	e := New(Config{Resolver: &fakeResolver{files: map[string]string{"song.mp3": path}}, Transport: &fakeTransport{}})
	defer e.Stop()

	if _, err := e.Enqueue(Upload, "alice", "song.mp3", 4); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if _, err := e.Enqueue(Upload, "alice", "song.mp3", 4); errs.KindOf(err) != errs.AlreadyExists {
		t.Fatalf("expected AlreadyExists on duplicate enqueue, got %v", err)
	}
}

func TestEngine_UploadRunsToCompletion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	payload := bytes.Repeat([]byte("x"), 1000)
	os.WriteFile(path, payload, 0o644)

	store := newMemStore()
	e := New(Config{
		Resolver:  &fakeResolver{files: map[string]string{"song.mp3": path}},
		Transport: &fakeTransport{},
		Store:     store,
	})
	defer e.Stop()

	tr, err := e.Enqueue(Upload, "alice", "song.mp3", int64(len(payload)))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitForState(t, tr, CompletedSucceeded)

	bytesTransferred, _ := tr.Progress()
	if bytesTransferred != int64(len(payload)) {
		t.Errorf("expected %d bytes transferred, got %d", len(payload), bytesTransferred)
	}

	saved, ok := store.snapshots[tr.ID]
	if !ok || saved.State != CompletedSucceeded {
		t.Errorf("expected a persisted terminal snapshot, got %+v", saved)
	}
}

func TestEngine_DownloadWritesLocalFile(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("downloaded content")

	e := New(Config{
		Resolver:    &fakeResolver{},
		Transport:   &fakeTransport{uploadPayload: payload},
		DownloadDir: dir,
	})
	defer e.Stop()

	tr, err := e.Enqueue(Download, "bob", "remote/track.flac", int64(len(payload)))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitForState(t, tr, CompletedSucceeded)

	got, err := os.ReadFile(filepath.Join(dir, "bob", "track.flac"))
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("downloaded content mismatch: got %q want %q", got, payload)
	}
}

func TestEngine_DownloadPeerRejectedMapsToCompletedRejected(t *testing.T) {
	dir := t.TempDir()

	e := New(Config{
		Resolver:    &fakeResolver{},
		Transport:   &erroringTransport{err: errs.New(errs.PeerRejected, "peer declined upload")},
		DownloadDir: dir,
	})
	defer e.Stop()

	tr, err := e.Enqueue(Download, "bob", "remote/track.flac", 4)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitForState(t, tr, CompletedRejected)
}

func TestEngine_DownloadTimeoutMapsToCompletedTimedOut(t *testing.T) {
	dir := t.TempDir()

	e := New(Config{
		Resolver:    &fakeResolver{},
		Transport:   &erroringTransport{err: errs.New(errs.Timeout, "peer never responded")},
		DownloadDir: dir,
	})
	defer e.Stop()

	tr, err := e.Enqueue(Download, "bob", "remote/track.flac", 4)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitForState(t, tr, CompletedTimedOut)
}

// blockingTransport holds its first OpenDownloadStream call open until
// release is closed, so a test can enqueue a second transfer while the
// first is still non-terminal.
type blockingTransport struct {
	release chan struct{}
}

func (b *blockingTransport) OpenUploadStream(ctx context.Context, username, remoteFilename string, size int64) (io.WriteCloser, error) {
	return nopWriteCloser{io.Discard}, nil
}

func (b *blockingTransport) OpenDownloadStream(ctx context.Context, username, remoteFilename string) (io.ReadCloser, error) {
	<-b.release
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func TestEngine_DownloadCollisionGetsDisambiguated(t *testing.T) {
	dir := t.TempDir()
	transport := &blockingTransport{release: make(chan struct{})}

	e := New(Config{
		Resolver:    &fakeResolver{},
		Transport:   transport,
		DownloadDir: dir,
	})
	defer e.Stop()

	first, err := e.Enqueue(Download, "alice", "shared/output.zip", 1)
	if err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	waitForState(t, first, InProgress)

	second, err := e.Enqueue(Download, "alice", "other/output.zip", 1)
	if err != nil {
		t.Fatalf("enqueue second: %v", err)
	}

	if first.LocalPath == second.LocalPath {
		t.Fatalf("expected distinct local paths, both got %s", first.LocalPath)
	}
	if filepath.Base(first.LocalPath) != "output.zip" {
		t.Errorf("first transfer's path should be unmodified, got %s", first.LocalPath)
	}
	close(transport.release)
	waitForState(t, first, CompletedSucceeded)
	waitForState(t, second, CompletedSucceeded)
}

func TestEngine_CancelQueuedTransfer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	os.WriteFile(path, make([]byte, 10), 0o644)

	e := New(Config{
		Resolver:    &fakeResolver{files: map[string]string{"big.bin": path}},
		Transport:   &fakeTransport{},
		GlobalSlots: 1,
	})
	defer e.Stop()

	// Exhaust the single global slot so the second transfer stays queued.
	e.slots[Upload].tryAcquire("occupying", "default")

	tr, err := e.Enqueue(Upload, "carol", "big.bin", 10)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := e.Cancel(Upload, "carol", tr.ID, false); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := tr.State(); got != CompletedCancelled {
		t.Errorf("expected CompletedCancelled, got %s", got)
	}
}

func TestEngine_GetPlaceInQueue(t *testing.T) {
	e := New(Config{Resolver: &fakeResolver{}, Transport: &fakeTransport{}, GlobalSlots: 1})
	defer e.Stop()
	e.slots[Upload].tryAcquire("occupying", "default")

	dir := t.TempDir()
	files := map[string]string{}
	for _, name := range []string{"a.bin", "b.bin", "c.bin"} {
		path := filepath.Join(dir, name)
		os.WriteFile(path, []byte("x"), 0o644)
		files[name] = path
	}
	e.cfg.Resolver = &fakeResolver{files: files}

	t1, _ := e.Enqueue(Upload, "dave", "a.bin", 1)
	time.Sleep(2 * time.Millisecond)
	t2, _ := e.Enqueue(Upload, "dave", "b.bin", 1)
	time.Sleep(2 * time.Millisecond)
	t3, _ := e.Enqueue(Upload, "dave", "c.bin", 1)

	place1, err := e.GetPlaceInQueue(Upload, "dave", t1.ID)
	if err != nil || place1 != 1 {
		t.Errorf("expected t1 in place 1, got %d (%v)", place1, err)
	}
	place3, err := e.GetPlaceInQueue(Upload, "dave", t3.ID)
	if err != nil || place3 != 3 {
		t.Errorf("expected t3 in place 3, got %d (%v)", place3, err)
	}
	_ = t2
}

func TestEngine_CompletedDownloadCount(t *testing.T) {
	dir := t.TempDir()

	e := New(Config{
		Resolver:    &fakeResolver{},
		Transport:   &fakeTransport{uploadPayload: []byte("x")},
		DownloadDir: dir,
	})
	defer e.Stop()

	tr, err := e.Enqueue(Download, "bob", "remote/a.flac", 1)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitForState(t, tr, CompletedSucceeded)

	tr2, err := e.Enqueue(Download, "bob", "remote/b.flac", 1)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitForState(t, tr2, CompletedSucceeded)

	if got := e.CompletedDownloadCount("bob"); got != 2 {
		t.Errorf("expected 2 completed downloads from bob, got %d", got)
	}
	if got := e.CompletedDownloadCount("carol"); got != 0 {
		t.Errorf("expected 0 completed downloads from carol, got %d", got)
	}
}

func TestEngine_List_FiltersByDirection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	os.WriteFile(path, []byte("x"), 0o644)

	e := New(Config{
		Resolver:    &fakeResolver{files: map[string]string{"f.bin": path}},
		Transport:   &fakeTransport{uploadPayload: []byte("y")},
		DownloadDir: dir,
	})
	defer e.Stop()

	tr, _ := e.Enqueue(Upload, "erin", "f.bin", 1)
	waitForState(t, tr, CompletedSucceeded)

	uploads := e.List(Upload, nil)
	downloads := e.List(Download, nil)
	if len(uploads) != 1 {
		t.Errorf("expected 1 upload, got %d", len(uploads))
	}
	if len(downloads) != 0 {
		t.Errorf("expected 0 downloads, got %d", len(downloads))
	}
}
