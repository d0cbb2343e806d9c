package backup

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notekeeper/internal/repository/sqlite"
	"notekeeper/internal/storage"
)

type fakeStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
	progress  int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) UploadFile(_ context.Context, localPath string, opts storage.UploadOptions) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}
	if opts.ProgressCallback != nil {
		opts.ProgressCallback(int64(len(data)), int64(len(data)))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[opts.Key] = data
	if opts.ProgressCallback != nil {
		f.progress++
	}
	return "s3://" + opts.Bucket + "/" + opts.Key, nil
}

func (f *fakeStorage) ListObjects(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.ObjectInfo
	for key, data := range f.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (f *fakeStorage) DeleteObjects(_ context.Context, _ string, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.objects, key)
	}
	return nil
}

func (f *fakeStorage) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		keys = append(keys, key)
	}
	return keys
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, sqlite.NewUserRepository(db).Init(ctx))
	require.NoError(t, sqlite.NewNoteRepository(db).Init(ctx))
	return db
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRunOnce_UploadsSnapshot(t *testing.T) {
	db := openDB(t)
	store := newFakeStorage()
	m := NewManager(Config{Bucket: "b", KeyPrefix: "/snaps/", TempDir: t.TempDir(), Logger: quietLogger()}, db, store)

	location, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(location, "s3://b/snaps/notes-"), location)

	keys := store.keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasSuffix(keys[0], ".db"))
	assert.True(t, strings.HasPrefix(string(store.objects[keys[0]]), "SQLite format 3"))
	assert.Equal(t, 1, store.progress)
}

func TestRunOnce_PrunesOldSnapshots(t *testing.T) {
	db := openDB(t)
	store := newFakeStorage()
	store.objects["snaps/notes-20200101T000000Z-aaaaaaaa.db"] = []byte("old")
	store.objects["snaps/notes-20200102T000000Z-bbbbbbbb.db"] = []byte("old")
	store.objects["snaps/notes-20200103T000000Z-cccccccc.db"] = []byte("old")
	store.objects["snaps/unrelated.txt"] = []byte("keep me")

	m := NewManager(Config{Bucket: "b", KeyPrefix: "snaps", Keep: 2, TempDir: t.TempDir(), Logger: quietLogger()}, db, store)
	_, err := m.RunOnce(context.Background())
	require.NoError(t, err)

	keys := store.keys()
	assert.Len(t, keys, 3)
	assert.Contains(t, keys, "snaps/notes-20200103T000000Z-cccccccc.db")
	assert.Contains(t, keys, "snaps/unrelated.txt")
	assert.NotContains(t, keys, "snaps/notes-20200101T000000Z-aaaaaaaa.db")
	assert.NotContains(t, keys, "snaps/notes-20200102T000000Z-bbbbbbbb.db")
}

func TestRunOnce_UploadFailure(t *testing.T) {
	db := openDB(t)
	store := newFakeStorage()
	store.uploadErr = errors.New("access denied")

	m := NewManager(Config{Bucket: "b", TempDir: t.TempDir(), Logger: quietLogger()}, db, store)
	_, err := m.RunOnce(context.Background())
	require.ErrorContains(t, err, "access denied")
}

func TestStart_RequiresBucket(t *testing.T) {
	m := NewManager(Config{Logger: quietLogger()}, openDB(t), newFakeStorage())
	require.Error(t, m.Start(context.Background()))
	_, err := m.RunOnce(context.Background())
	require.Error(t, err)
}

func TestStart_RunsOnInterval(t *testing.T) {
	db := openDB(t)
	store := newFakeStorage()
	m := NewManager(Config{
		Bucket:   "b",
		Interval: 20 * time.Millisecond,
		Keep:     100,
		TempDir:  t.TempDir(),
		Logger:   quietLogger(),
	}, db, store)

	require.NoError(t, m.Start(context.Background()))
	require.Error(t, m.Start(context.Background()))

	require.Eventually(t, func() bool {
		return len(store.keys()) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	m.Shutdown()
	count := len(store.keys())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, count, len(store.keys()))
}
