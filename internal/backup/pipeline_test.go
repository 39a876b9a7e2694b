package backup

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	backuperrors "github.com/dc-tec/spaces-backup/internal/errors"
	"github.com/dc-tec/spaces-backup/internal/storage"
)

// fakeStorage is an in-memory storage.ObjectStorage with injectable
// failures and call accounting.
type fakeStorage struct {
	mu sync.Mutex

	listObjects  []storage.ObjectInfo
	listErr      error
	objects      map[string][]byte
	downloadErrs map[string]error
	uploadErr    error
	headErr      error
	headMissing  bool
	headSize     int64 // overrides the stored size when non-zero

	uploaded    map[string][]byte
	listCalls   int
	uploadCalls int
	headCalls   int
	downloads   []string
}

func (f *fakeStorage) List(_ context.Context) ([]storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listObjects, nil
}

func (f *fakeStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, key)
	if err, ok := f.downloadErrs[key]; ok {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(f.objects[key])), nil
}

func (f *fakeStorage) Upload(_ context.Context, key string, body io.Reader, _ int64) error {
	f.mu.Lock()
	f.uploadCalls++
	uploadErr := f.uploadErr
	f.mu.Unlock()

	if uploadErr != nil {
		return uploadErr
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploaded == nil {
		f.uploaded = make(map[string][]byte)
	}
	f.uploaded[key] = data
	return nil
}

func (f *fakeStorage) Head(_ context.Context, key string) (*storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headCalls++
	if f.headErr != nil {
		return nil, f.headErr
	}
	if f.headMissing {
		return nil, nil
	}
	data, ok := f.uploaded[key]
	if !ok {
		return nil, nil
	}
	size := int64(len(data))
	if f.headSize != 0 {
		size = f.headSize
	}
	return &storage.ObjectInfo{Key: key, Size: size}, nil
}

func newTestPipeline(source, dest *fakeStorage) *Pipeline {
	return NewPipeline(PipelineConfig{
		Source:           source,
		Dest:             dest,
		SourceBucket:     "my-space",
		ArchivePrefix:    "backups",
		CompressionLevel: 6,
		Logger:           logr.Discard(),
	})
}

func TestPipelineRunSuccess(t *testing.T) {
	source := &fakeStorage{
		listObjects: []storage.ObjectInfo{
			{Key: "a.txt", Size: 5},
			{Key: "b/c.txt", Size: 10},
			{Key: "d.bin", Size: 3},
		},
		objects: map[string][]byte{
			"a.txt":   []byte("hello"),
			"b/c.txt": []byte("0123456789"),
			"d.bin":   {0x1, 0x2, 0x3},
		},
	}
	dest := &fakeStorage{}
	p := newTestPipeline(source, dest)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.FilesBackedUp)
	assert.Equal(t, int64(18), result.TotalBytes)
	assert.True(t, strings.HasPrefix(result.ArchiveKey, "backups/backup-my-space-"), "archive key %q", result.ArchiveKey)
	assert.True(t, strings.HasSuffix(result.ArchiveKey, ".zip"), "archive key %q", result.ArchiveKey)

	data, ok := dest.uploaded[result.ArchiveKey]
	require.True(t, ok, "archive %q not stored in destination", result.ArchiveKey)
	assert.Equal(t, int64(len(data)), result.ArchiveBytes)

	// The stored stream is a complete zip archive with all objects.
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)
	for key, want := range source.objects {
		rc, err := zr.Open(key)
		require.NoError(t, err, "open %s", key)
		got, err := io.ReadAll(rc)
		require.NoError(t, err, "read %s", key)
		require.NoError(t, rc.Close())
		assert.Equal(t, want, got, "content of %s", key)
	}

	assert.Equal(t, 1, dest.uploadCalls)
	assert.Equal(t, 1, dest.headCalls)
}

func TestPipelineRunEmptyBucket(t *testing.T) {
	source := &fakeStorage{}
	dest := &fakeStorage{}
	p := newTestPipeline(source, dest)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, result.FilesBackedUp)
	assert.Zero(t, result.ArchiveBytes)
	assert.Empty(t, result.ArchiveKey)
	// No archive object is created for an empty source.
	assert.Zero(t, dest.uploadCalls)
	assert.Zero(t, dest.headCalls)
}

func TestPipelineRunListingFailure(t *testing.T) {
	cause := errors.New("access denied")
	source := &fakeStorage{listErr: cause}
	dest := &fakeStorage{}
	p := newTestPipeline(source, dest)

	_, err := p.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, backuperrors.KindListing, backuperrors.KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, source.downloads)
	assert.Zero(t, dest.uploadCalls)
}

func TestPipelineRunFetchFailure(t *testing.T) {
	cause := errors.New("connection reset")
	source := &fakeStorage{
		listObjects: []storage.ObjectInfo{
			{Key: "1.txt"}, {Key: "2.txt"}, {Key: "3.txt"}, {Key: "4.txt"}, {Key: "5.txt"},
		},
		objects: map[string][]byte{
			"1.txt": []byte("1"), "2.txt": []byte("2"),
			"4.txt": []byte("4"), "5.txt": []byte("5"),
		},
		downloadErrs: map[string]error{"3.txt": cause},
	}
	dest := &fakeStorage{}
	p := newTestPipeline(source, dest)

	_, err := p.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, backuperrors.KindFetch, backuperrors.KindOf(err))
	assert.Contains(t, err.Error(), "3.txt")
	// Fail-fast: objects after the failing one are never fetched, and no
	// archive survives in the destination.
	assert.Equal(t, []string{"1.txt", "2.txt", "3.txt"}, source.downloads)
	assert.Empty(t, dest.uploaded)
}

func TestPipelineRunUploadFailure(t *testing.T) {
	cause := errors.New("multipart part 2 failed")
	source := &fakeStorage{
		listObjects: []storage.ObjectInfo{{Key: "a.txt", Size: 5}},
		objects:     map[string][]byte{"a.txt": []byte("hello")},
	}
	dest := &fakeStorage{uploadErr: cause}
	p := newTestPipeline(source, dest)

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = p.Run(context.Background())
	}()

	// The failure must propagate promptly; a hung archiver would mean the
	// pipe was not broken when the uploader died.
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after upload failure")
	}

	require.Error(t, err)
	assert.Equal(t, backuperrors.KindUpload, backuperrors.KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, dest.uploaded)
}

// leadTracker measures how far the producer side has read ahead of the
// consumer side, in bytes.
type leadTracker struct {
	produced atomic.Int64
	consumed atomic.Int64
	maxLead  atomic.Int64
}

func (t *leadTracker) addProduced(n int) {
	lead := t.produced.Add(int64(n)) - t.consumed.Load()
	for {
		cur := t.maxLead.Load()
		if lead <= cur || t.maxLead.CompareAndSwap(cur, lead) {
			return
		}
	}
}

// syntheticSource lists a single object of the given size and serves its
// content from a generated reader, so no test buffer ever holds it whole.
type syntheticSource struct {
	tracker *leadTracker
	size    int64
}

func (s *syntheticSource) List(context.Context) ([]storage.ObjectInfo, error) {
	return []storage.ObjectInfo{{Key: "big.bin", Size: s.size}}, nil
}

func (s *syntheticSource) Download(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(&countingReader{tracker: s.tracker, remaining: s.size}), nil
}

func (s *syntheticSource) Upload(context.Context, string, io.Reader, int64) error {
	return errors.New("not a destination")
}

func (s *syntheticSource) Head(context.Context, string) (*storage.ObjectInfo, error) {
	return nil, nil
}

type countingReader struct {
	tracker   *leadTracker
	remaining int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	if r.remaining == 0 {
		return 0, io.EOF
	}
	n := len(p)
	if int64(n) > r.remaining {
		n = int(r.remaining)
	}
	r.remaining -= int64(n)
	r.tracker.addProduced(n)
	return n, nil
}

// drainingDest consumes uploads chunk by chunk without retaining them.
type drainingDest struct {
	tracker *leadTracker
	stored  atomic.Int64
}

func (d *drainingDest) Upload(_ context.Context, _ string, body io.Reader, _ int64) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		d.tracker.consumed.Add(int64(n))
		d.stored.Add(int64(n))
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (d *drainingDest) Head(_ context.Context, key string) (*storage.ObjectInfo, error) {
	return &storage.ObjectInfo{Key: key, Size: d.stored.Load()}, nil
}

func (d *drainingDest) List(context.Context) ([]storage.ObjectInfo, error) {
	return nil, errors.New("not a source")
}

func (d *drainingDest) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not a source")
}

func TestPipelineBackpressureBoundsBuffering(t *testing.T) {
	// One 64 MiB object. Level 0 keeps encoder output roughly the size of
	// its input, so produced and consumed byte counts are comparable.
	const objectSize = 64 << 20

	tracker := &leadTracker{}
	source := &syntheticSource{tracker: tracker, size: objectSize}
	dest := &drainingDest{tracker: tracker}

	p := NewPipeline(PipelineConfig{
		Source:           source,
		Dest:             dest,
		SourceBucket:     "my-space",
		ArchivePrefix:    "backups",
		CompressionLevel: 0,
		Logger:           logr.Discard(),
	})

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesBackedUp)
	assert.Equal(t, int64(objectSize), result.TotalBytes)

	// The unbuffered pipe lets the encoder run ahead of the uploader only
	// by its own fixed buffers (copy buffer, deflate window, zip writer's
	// bufio), never in proportion to object size.
	const maxBuffered = 1 << 20
	lead := tracker.maxLead.Load()
	assert.LessOrEqual(t, lead, int64(maxBuffered),
		"producer read %d bytes ahead of the uploader", lead)
}

func TestPipelineRunVerification(t *testing.T) {
	newSource := func() *fakeStorage {
		return &fakeStorage{
			listObjects: []storage.ObjectInfo{{Key: "a.txt", Size: 5}},
			objects:     map[string][]byte{"a.txt": []byte("hello")},
		}
	}

	t.Run("head error", func(t *testing.T) {
		dest := &fakeStorage{headErr: errors.New("timeout")}
		_, err := newTestPipeline(newSource(), dest).Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, backuperrors.KindUpload, backuperrors.KindOf(err))
	})

	t.Run("archive missing after upload", func(t *testing.T) {
		dest := &fakeStorage{headMissing: true}
		_, err := newTestPipeline(newSource(), dest).Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, backuperrors.KindUpload, backuperrors.KindOf(err))
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("destination size is canonical", func(t *testing.T) {
		dest := &fakeStorage{headSize: 4242}
		result, err := newTestPipeline(newSource(), dest).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(4242), result.ArchiveBytes)
	})
}
