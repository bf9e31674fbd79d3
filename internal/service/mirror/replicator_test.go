package mirror

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failing bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (p *fakeProvider) Upload(_ context.Context, key string, r io.Reader, contentType string) error {
	if p.failing {
		return errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects[key] = data
	p.types[key] = contentType
	return nil
}

func (p *fakeProvider) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.objects, key)
	return nil
}

func (p *fakeProvider) Exists(_ context.Context, key string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.objects[key]
	return ok, nil
}

func (p *fakeProvider) TestConnection(context.Context) error { return nil }

func memOpener(files map[string][]byte) Opener {
	return func(path string) (io.ReadCloser, error) {
		data, ok := files[path]
		if !ok {
			return nil, errors.New("no such file")
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

func TestReplicatorUploadsEnqueuedBlobs(t *testing.T) {
	provider := newFakeProvider()
	files := map[string][]byte{"uploads/abc": []byte("hello")}
	r := NewReplicator(provider, memOpener(files), "linkdrop", 4)

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	assert.True(t, r.Enqueue(Job{StoredName: "abc", Path: "uploads/abc", ContentType: "text/plain"}))

	ctx := context.Background()
	require.Eventually(t, func() bool {
		ok, _ := provider.Exists(ctx, "linkdrop/abc")
		return ok
	}, time.Second, 10*time.Millisecond)

	provider.mu.Lock()
	assert.Equal(t, []byte("hello"), provider.objects["linkdrop/abc"])
	assert.Equal(t, "text/plain", provider.types["linkdrop/abc"])
	provider.mu.Unlock()

	require.NoError(t, r.Remove(ctx, "abc"))
	ok, err := provider.Exists(ctx, "linkdrop/abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReplicatorDropsWhenQueueFull(t *testing.T) {
	r := NewReplicator(newFakeProvider(), memOpener(nil), "", 1)

	// 未启动时任务留在队列中
	assert.True(t, r.Enqueue(Job{StoredName: "a"}))
	assert.False(t, r.Enqueue(Job{StoredName: "b"}))
}

func TestReplicatorSurvivesFailures(t *testing.T) {
	provider := newFakeProvider()
	provider.failing = true
	files := map[string][]byte{"uploads/abc": []byte("hello")}
	r := NewReplicator(provider, memOpener(files), "", 4)

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, r.Enqueue(Job{StoredName: "missing", Path: "uploads/missing"}))
	assert.True(t, r.Enqueue(Job{StoredName: "abc", Path: "uploads/abc"}))

	require.Eventually(t, func() bool { return len(r.queue) == 0 }, time.Second, 10*time.Millisecond)
	r.Stop()

	ok, err := provider.Exists(context.Background(), "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReplicatorStartTwice(t *testing.T) {
	r := NewReplicator(newFakeProvider(), memOpener(nil), "", 1)

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()
	assert.Error(t, r.Start(context.Background()))
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "abc", NewReplicator(nil, nil, "", 1).ObjectKey("abc"))
	assert.Equal(t, "files/abc", NewReplicator(nil, nil, "files/", 1).ObjectKey("abc"))
}

type gatedProvider struct {
	*fakeProvider
	started chan struct{}
	release chan struct{}
}

func (p *gatedProvider) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	close(p.started)
	<-p.release
	return p.fakeProvider.Upload(ctx, key, r, contentType)
}

func (p *fakeProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.objects[key]
	return ok
}

func TestReplicatorSkipsExistingObject(t *testing.T) {
	provider := newFakeProvider()
	provider.objects["abc"] = []byte("already there")
	files := map[string][]byte{"uploads/abc": []byte("hello")}
	r := NewReplicator(provider, memOpener(files), "", 4)

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, r.Enqueue(Job{StoredName: "abc", Path: "uploads/abc"}))
	require.Eventually(t, func() bool { return len(r.queue) == 0 }, time.Second, 10*time.Millisecond)
	r.Stop()

	provider.mu.Lock()
	assert.Equal(t, []byte("already there"), provider.objects["abc"])
	provider.mu.Unlock()
}

func TestReplicatorSkipsJobRemovedWhileQueued(t *testing.T) {
	provider := newFakeProvider()
	files := map[string][]byte{"uploads/abc": []byte("hello")}
	r := NewReplicator(provider, memOpener(files), "", 4)

	// 未启动时任务留在队列中
	assert.True(t, r.Enqueue(Job{StoredName: "abc", Path: "uploads/abc"}))
	require.NoError(t, r.Remove(context.Background(), "abc"))

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return len(r.queue) == 0 }, time.Second, 10*time.Millisecond)
	r.Stop()

	assert.False(t, provider.has("abc"))
	assert.False(t, r.removed("abc"))
}

func TestReplicatorDeletesCopyRemovedDuringUpload(t *testing.T) {
	provider := &gatedProvider{
		fakeProvider: newFakeProvider(),
		started:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	files := map[string][]byte{"uploads/abc": []byte("hello")}
	r := NewReplicator(provider, memOpener(files), "", 4)

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, r.Enqueue(Job{StoredName: "abc", Path: "uploads/abc"}))

	select {
	case <-provider.started:
	case <-time.After(time.Second):
		t.Fatal("upload did not start")
	}
	require.NoError(t, r.Remove(context.Background(), "abc"))
	close(provider.release)

	require.Eventually(t, func() bool {
		r.pendingMu.Lock()
		defer r.pendingMu.Unlock()
		return len(r.pending) == 0
	}, time.Second, 10*time.Millisecond)
	r.Stop()

	assert.False(t, provider.has("abc"))
}
