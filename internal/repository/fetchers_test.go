package repository

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileFetcher_File(t *testing.T) {
	src := filepath.Join(t.TempDir(), "template.zip")
	require.NoError(t, os.WriteFile(src, []byte("archive"), 0o644))
	store := t.TempDir()

	u := &url.URL{Scheme: "file", Path: filepath.ToSlash(src)}
	dest, matched, err := FileFetcher().Fetch(context.Background(), u, dirStore(store), FetchAlways)
	require.NoError(t, err)
	require.True(t, matched)
	assert.Equal(t, filepath.Join(store, "template.zip"), dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "archive", string(data))
}

func TestFileFetcher_DirectoryReplacesPreviousContent(t *testing.T) {
	src := filepath.Join(t.TempDir(), "template")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "a.txt"), []byte("a"), 0o644))
	store := t.TempDir()
	u := &url.URL{Scheme: "file", Path: filepath.ToSlash(src)}

	dest, _, err := FileFetcher().Fetch(context.Background(), u, dirStore(store), FetchAlways)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dest, "sub", "a.txt"))

	require.NoError(t, os.Remove(filepath.Join(src, "sub", "a.txt")))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b.txt"), []byte("b"), 0o644))

	_, _, err = FileFetcher().Fetch(context.Background(), u, dirStore(store), FetchAlways)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dest, "sub", "a.txt"))
	assert.FileExists(t, filepath.Join(dest, "b.txt"))
}

func TestFileFetcher_Missing(t *testing.T) {
	u := &url.URL{Scheme: "file", Path: "/does/not/exist.zip"}
	_, _, err := FileFetcher().Fetch(context.Background(), u, dirStore(t.TempDir()), FetchAlways)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestHTTPFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/template.zip":
			w.Write([]byte("zip bytes"))
		case "/private.zip":
			if r.Header.Get("Authorization") != "Bearer s3cret" {
				http.Error(w, "token required", http.StatusUnauthorized)
				return
			}
			w.Write([]byte("private bytes"))
		default:
			http.Error(w, "no such template", http.StatusNotFound)
		}
	}))
	defer server.Close()

	host := mustParseURL(t, server.URL).Hostname()

	t.Run("downloads", func(t *testing.T) {
		dest, matched, err := HTTPFetcher(server.Client(), nil).Fetch(context.Background(), mustParseURL(t, server.URL+"/template.zip"), dirStore(t.TempDir()), FetchAlways)
		require.NoError(t, err)
		require.True(t, matched)

		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "zip bytes", string(data))
	})

	t.Run("error status carries the body", func(t *testing.T) {
		_, _, err := HTTPFetcher(server.Client(), nil).Fetch(context.Background(), mustParseURL(t, server.URL+"/missing.zip"), dirStore(t.TempDir()), FetchAlways)

		var fetchErr *FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Contains(t, fetchErr.Diagnostic, "no such template")
		assert.Contains(t, fetchErr.Command, "GET")
	})

	t.Run("sends stored token", func(t *testing.T) {
		creds := NewTestCredentialManager(t)
		require.NoError(t, creds.StoreToken(host, "s3cret"))

		dest, _, err := HTTPFetcher(server.Client(), creds).Fetch(context.Background(), mustParseURL(t, server.URL+"/private.zip"), dirStore(t.TempDir()), FetchAlways)
		require.NoError(t, err)

		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "private bytes", string(data))
	})
}

type fakeS3 struct {
	objects map[string]string
	input   *s3.GetObjectInput
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.input = params
	body, ok := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString(body))}, nil
}

func TestS3Fetcher(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"templates/python/template.zip": "from s3"}}
	fetcher := newS3Fetcher(func(context.Context) (objectGetter, error) { return client, nil })

	dest, matched, err := fetcher.Fetch(context.Background(), mustParseURL(t, "s3://templates/python/template.zip"), dirStore(t.TempDir()), FetchAlways)
	require.NoError(t, err)
	require.True(t, matched)
	assert.Equal(t, "templates", aws.ToString(client.input.Bucket))
	assert.Equal(t, "python/template.zip", aws.ToString(client.input.Key))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "from s3", string(data))

	_, _, err = fetcher.Fetch(context.Background(), mustParseURL(t, "s3://templates/missing.zip"), dirStore(t.TempDir()), FetchAlways)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)

	_, _, err = fetcher.Fetch(context.Background(), mustParseURL(t, "s3://templates"), dirStore(t.TempDir()), FetchAlways)
	assert.ErrorContains(t, err, "bucket and a key")
}

func TestFetchersMatchSchemes(t *testing.T) {
	tests := []struct {
		fetcher Fetcher
		matches []string
		rejects []string
	}{
		{fetcher: FileFetcher(), matches: []string{"file:///x"}, rejects: []string{"https://x/y"}},
		{fetcher: HTTPFetcher(nil, nil), matches: []string{"http://x/y", "https://x/y"}, rejects: []string{"ftp://x/y"}},
		{fetcher: FTPFetcher(), matches: []string{"ftp://x/y"}, rejects: []string{"sftp://x/y"}},
		{fetcher: SFTPFetcher(), matches: []string{"sftp://x/y"}, rejects: []string{"ssh://x/y"}},
		{fetcher: S3Fetcher(), matches: []string{"s3://bucket/key"}, rejects: []string{"https://bucket/key"}},
		{fetcher: GitFetcher(nil, nil), matches: []string{"https://x/y.git", "ssh://git@x/y", "git://x/y"}, rejects: []string{"ftp://x/y", "file:///does/not/exist"}},
		{fetcher: HgFetcher(nil), matches: []string{"https://x/y", "ssh://x/y"}, rejects: []string{"git://x/y", "file:///does/not/exist"}},
	}

	for _, tt := range tests {
		t.Run(tt.fetcher.Name(), func(t *testing.T) {
			for _, raw := range tt.matches {
				assert.True(t, tt.fetcher.Matches(mustParseURL(t, raw)), raw)
			}
			for _, raw := range tt.rejects {
				assert.False(t, tt.fetcher.Matches(mustParseURL(t, raw)), raw)
			}
		})
	}
}
