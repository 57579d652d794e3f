package repository

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipeConn struct {
	io.Reader
	io.WriteCloser
}

// newSFTPClient connects a client to an in-process server over pipes, without
// an ssh transport.
func newSFTPClient(t *testing.T) *sftp.Client {
	t.Helper()

	clientRead, serverWrite, err := os.Pipe()
	require.NoError(t, err)
	serverRead, clientWrite, err := os.Pipe()
	require.NoError(t, err)

	server, err := sftp.NewServer(pipeConn{Reader: serverRead, WriteCloser: serverWrite})
	require.NoError(t, err)
	go server.Serve()

	client, err := sftp.NewClientPipe(clientRead, clientWrite)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client
}

func sftpURL(remote string) *url.URL {
	return &url.URL{Scheme: "sftp", Host: "templates.example.com", Path: filepath.ToSlash(remote)}
}

func TestDownloadSFTP_Tree(t *testing.T) {
	remote := filepath.Join(t.TempDir(), "template")
	require.NoError(t, os.MkdirAll(filepath.Join(remote, "hooks"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(remote, "cookiecutter.json"), []byte(`{"project": "demo"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(remote, "hooks", "post_gen_project.sh"), []byte("#!/bin/sh\n"), 0o755))

	dest := filepath.Join(t.TempDir(), "template")
	if err := downloadSFTP(newSFTPClient(t), sftpURL(remote), dest); err != nil {
		t.Fatalf("downloadSFTP() unexpected error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "cookiecutter.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"project": "demo"}`, string(data))

	info, err := os.Stat(filepath.Join(dest, "hooks", "post_gen_project.sh"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o100, "executable bit is kept")

	siblings, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, siblings, 1, "no staging directory is left behind")
}

func TestDownloadSFTP_ReplacesPreviousTree(t *testing.T) {
	remote := filepath.Join(t.TempDir(), "template")
	require.NoError(t, os.MkdirAll(remote, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(remote, "new.txt"), []byte("new"), 0o644))

	dest := filepath.Join(t.TempDir(), "template")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "stale.txt"), []byte("old"), 0o644))

	require.NoError(t, downloadSFTP(newSFTPClient(t), sftpURL(remote), dest))
	assert.FileExists(t, filepath.Join(dest, "new.txt"))
	assert.NoFileExists(t, filepath.Join(dest, "stale.txt"))
}

func TestDownloadSFTP_File(t *testing.T) {
	remote := filepath.Join(t.TempDir(), "template.zip")
	require.NoError(t, os.WriteFile(remote, []byte("archive"), 0o644))

	dest := filepath.Join(t.TempDir(), "template.zip")
	require.NoError(t, downloadSFTP(newSFTPClient(t), sftpURL(remote), dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "archive", string(data))
}

func TestDownloadSFTP_Missing(t *testing.T) {
	remote := filepath.Join(t.TempDir(), "missing")

	err := downloadSFTP(newSFTPClient(t), sftpURL(remote), filepath.Join(t.TempDir(), "missing"))
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "stat "+filepath.ToSlash(remote), fetchErr.Command)
}

func TestSFTPFetcher_ConnectionRefused(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".ssh"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".ssh", "known_hosts"), nil, 0o600))
	t.Setenv("HOME", home)

	addr := closedAddr(t)
	u := mustParseURL(t, "sftp://tester@"+addr+"/srv/template")

	_, matched, err := SFTPFetcher().Fetch(context.Background(), u, dirStore(t.TempDir()), FetchAlways)
	assert.True(t, matched)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "ssh "+addr, fetchErr.Command)
	assert.ErrorContains(t, err, "dial ssh tcp")
}
