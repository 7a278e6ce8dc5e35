package zmake

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyChecksum(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "hello.c", "int main(void) { return 0; }\n")

	digest, err := hashFile(path)
	require.NoError(t, err)
	assert.Len(t, digest, 64)

	assert.NoError(t, verifyChecksum(path, digest))
	assert.NoError(t, verifyChecksum(path, SkipChecksum))
	assert.Error(t, verifyChecksum(path, strings.Repeat("0", 64)))
}

func TestHashStringMatchesHashFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "data", "same bytes")

	fromFile, err := hashFile(path)
	require.NoError(t, err)
	assert.Equal(t, hashString("same bytes"), fromFile)
}

func TestSourceBasename(t *testing.T) {
	assert.Equal(t, "hello.tar.gz", sourceBasename("https://example.com/dist/hello.tar.gz"))
	assert.Equal(t, "hello.c", sourceBasename("hello.c"))
}

func TestFetchAllLocalSources(t *testing.T) {
	destDir := t.TempDir()
	path := writeTestFile(t, destDir, "hello.c", "source")
	digest, err := hashFile(path)
	require.NoError(t, err)

	f := NewFetcher()
	f.Quiet = true

	records := f.FetchAll(context.Background(), []string{"hello.c"}, []string{digest}, destDir)
	require.Len(t, records, 1)
	assert.NoError(t, records[0].Err)
}

func TestFetchAllMissingLocalSource(t *testing.T) {
	f := NewFetcher()
	f.Quiet = true

	records := f.FetchAll(context.Background(), []string{"absent.c"}, nil, t.TempDir())
	require.Len(t, records, 1)
	assert.Equal(t, ErrDownloadFailed, KindOf(records[0].Err))
}

func TestFetchAllChecksumMismatch(t *testing.T) {
	destDir := t.TempDir()
	writeTestFile(t, destDir, "hello.c", "source")

	f := NewFetcher()
	f.Quiet = true

	records := f.FetchAll(context.Background(), []string{"hello.c"}, []string{strings.Repeat("0", 64)}, destDir)
	require.Len(t, records, 1)
	assert.Equal(t, ErrChecksumMismatch, KindOf(records[0].Err))
}

func TestFetchAllDownloadsRemoteSource(t *testing.T) {
	const payload = "remote tarball bytes"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "zmake/")
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	f := NewFetcher()
	f.Quiet = true
	destDir := t.TempDir()

	records := f.FetchAll(context.Background(),
		[]string{srv.URL + "/hello.tar"}, []string{hashString(payload)}, destDir)
	require.Len(t, records, 1)
	require.NoError(t, records[0].Err)

	data, err := os.ReadFile(records[0].Destination)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}

func TestFetchAllPermanentHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher()
	f.Quiet = true

	records := f.FetchAll(context.Background(), []string{srv.URL + "/gone.tar"}, nil, t.TempDir())
	require.Len(t, records, 1)
	assert.Equal(t, ErrDownloadFailed, KindOf(records[0].Err))
	assert.NoFileExists(t, records[0].Destination)
}

func TestFetchAllRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("finally"))
	}))
	defer srv.Close()

	f := NewFetcher()
	f.Quiet = true

	records := f.FetchAll(context.Background(), []string{srv.URL + "/flaky.tar"}, nil, t.TempDir())
	require.Len(t, records, 1)
	assert.NoError(t, records[0].Err)
	assert.GreaterOrEqual(t, attempts, 3)
}

func TestIsRemoteSource(t *testing.T) {
	assert.True(t, isRemoteSource("https://example.com/a.tar.gz"))
	assert.True(t, isRemoteSource("http://example.com/a.tar.gz"))
	assert.False(t, isRemoteSource("a.tar.gz"))
	assert.False(t, isRemoteSource("ftp://example.com/a.tar.gz"))
}
