package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers the handful of path-style S3 calls the service makes.
type fakeS3 struct {
	mu        sync.Mutex
	puts      map[string]string
	listCalls int
	deletes   []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	query := r.URL.Query()

	switch {
	case r.Method == http.MethodPut:
		f.puts[strings.TrimPrefix(r.URL.Path, "/backups/")] = string(body)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && query.Get("list-type") == "2":
		f.listCalls++
		w.Header().Set("Content-Type", "application/xml")
		if query.Get("continuation-token") == "" {
			fmt.Fprint(w, listPage(true, "page-2", "snap/a.db"))
			return
		}
		fmt.Fprint(w, listPage(false, "", "snap/b.db"))
	case r.Method == http.MethodPost && query.Has("delete"):
		f.deletes = append(f.deletes, string(body))
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><DeleteResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></DeleteResult>`)
	default:
		http.Error(w, "unexpected request", http.StatusBadRequest)
	}
}

func listPage(truncated bool, next, key string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
	b.WriteString(`<Name>backups</Name><Prefix>snap/</Prefix><KeyCount>1</KeyCount><MaxKeys>1000</MaxKeys>`)
	fmt.Fprintf(&b, `<IsTruncated>%t</IsTruncated>`, truncated)
	fmt.Fprintf(&b, `<Contents><Key>%s</Key><LastModified>2024-01-01T00:00:00.000Z</LastModified><Size>10</Size></Contents>`, key)
	if next != "" {
		fmt.Fprintf(&b, `<NextContinuationToken>%s</NextContinuationToken>`, next)
	}
	b.WriteString(`</ListBucketResult>`)
	return b.String()
}

func newTestService(t *testing.T) (*S3Service, *fakeS3) {
	t.Helper()
	fake := &fakeS3{puts: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:                     "us-east-1",
		BaseEndpoint:               aws.String(srv.URL),
		UsePathStyle:               true,
		Credentials:                aws.AnonymousCredentials{},
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	})
	return NewS3Service(client), fake
}

func TestS3Service_UploadFile(t *testing.T) {
	svc, fake := newTestService(t)
	path := filepath.Join(t.TempDir(), "snapshot.db")
	require.NoError(t, os.WriteFile(path, []byte("sqlite bytes"), 0o600))

	var lastDone, lastTotal int64
	location, err := svc.UploadFile(context.Background(), path, UploadOptions{
		Bucket: "backups",
		Key:    "snap/one.db",
		ProgressCallback: func(done, total int64) {
			lastDone, lastTotal = done, total
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://backups/snap/one.db", location)
	assert.Contains(t, fake.puts["snap/one.db"], "sqlite bytes")
	assert.Equal(t, int64(len("sqlite bytes")), lastTotal)
	assert.Equal(t, lastTotal, lastDone)
}

func TestS3Service_UploadFileValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.UploadFile(ctx, "whatever", UploadOptions{})
	require.Error(t, err)

	_, err = svc.UploadFile(ctx, t.TempDir(), UploadOptions{Bucket: "backups"})
	require.Error(t, err)

	_, err = svc.UploadFile(ctx, filepath.Join(t.TempDir(), "missing.db"), UploadOptions{Bucket: "backups"})
	require.Error(t, err)
}

func TestS3Service_ListObjectsFollowsPages(t *testing.T) {
	svc, fake := newTestService(t)

	objects, err := svc.ListObjects(context.Background(), "backups", "snap/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "snap/a.db", objects[0].Key)
	assert.Equal(t, "snap/b.db", objects[1].Key)
	assert.Equal(t, int64(10), objects[0].Size)
	require.NotNil(t, objects[0].LastModified)
	assert.Equal(t, 2, fake.listCalls)
}

func TestS3Service_DeleteObjects(t *testing.T) {
	svc, fake := newTestService(t)

	require.NoError(t, svc.DeleteObjects(context.Background(), "backups", []string{"snap/a.db", "snap/b.db"}))
	require.Len(t, fake.deletes, 1)
	assert.Contains(t, fake.deletes[0], "snap/a.db")
	assert.Contains(t, fake.deletes[0], "snap/b.db")

	require.NoError(t, svc.DeleteObjects(context.Background(), "backups", nil))
	assert.Len(t, fake.deletes, 1)

	require.Error(t, svc.DeleteObjects(context.Background(), "", []string{"x"}))
}
