package repository

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"cutty/pkg/fileops"

	"github.com/jlaffaye/ftp"
)

// FileFetcher copies file URLs, either a single file or a directory tree.
func FileFetcher() Fetcher {
	return NewFetcher("file", SchemeMatcher("file"), fetchFile)
}

func fetchFile(_ context.Context, u *url.URL, dest string) error {
	src := filePath(u)

	info, err := os.Stat(src)
	if err != nil {
		return &FetchError{URL: u.String(), Command: "copy " + src, Err: err}
	}

	if !info.IsDir() {
		if err := fileops.EnsureDirectoryExists(filepath.Dir(dest)); err != nil {
			return err
		}
		if err := fileops.AtomicCopy(src, dest); err != nil {
			return &FetchError{URL: u.String(), Command: "copy " + src, Err: err}
		}
		return nil
	}

	staging, err := fileops.TempSibling(dest)
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	if err := fileops.CopyTree(src, staging); err != nil {
		return &FetchError{URL: u.String(), Command: "copy " + src, Err: err}
	}
	return fileops.ReplaceDir(staging, dest)
}

// HTTPFetcher downloads http and https URLs. When credentials hold a token for
// the URL's host, it is sent as a bearer token.
func HTTPFetcher(client *http.Client, credentials *CredentialManager) Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}

	return NewFetcher("http", SchemeMatcher("http", "https"), func(ctx context.Context, u *url.URL, dest string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		if credentials != nil && credentials.HasToken(u.Hostname()) {
			if token, err := credentials.GetToken(u.Hostname()); err == nil {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			return &FetchError{URL: u.String(), Command: "GET " + u.String(), Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &FetchError{
				URL:        u.String(),
				Command:    "GET " + u.String(),
				Diagnostic: string(body),
				Err:        fmt.Errorf("unexpected status %s", resp.Status),
			}
		}

		return writeDownload(u, dest, resp.Body)
	})
}

// FTPFetcher downloads ftp URLs, logging in anonymously unless the URL
// carries user information.
func FTPFetcher() Fetcher {
	return NewFetcher("ftp", SchemeMatcher("ftp"), func(ctx context.Context, u *url.URL, dest string) error {
		addr := u.Host
		if u.Port() == "" {
			addr = net.JoinHostPort(u.Hostname(), "21")
		}
		command := "RETR " + u.Path

		conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(30*time.Second))
		if err != nil {
			return &FetchError{URL: u.String(), Command: "connect " + addr, Err: err}
		}
		defer conn.Quit()

		user, password := "anonymous", "anonymous"
		if u.User != nil {
			user = u.User.Username()
			if p, ok := u.User.Password(); ok {
				password = p
			}
		}
		if err := conn.Login(user, password); err != nil {
			return &FetchError{URL: u.String(), Command: "USER " + user, Err: err}
		}

		resp, err := conn.Retr(u.Path)
		if err != nil {
			return &FetchError{URL: u.String(), Command: command, Err: err}
		}
		defer resp.Close()

		return writeDownload(u, dest, resp)
	})
}

// writeDownload streams a single downloaded file into dest.
func writeDownload(u *url.URL, dest string, r io.Reader) error {
	if err := fileops.EnsureDirectoryExists(filepath.Dir(dest)); err != nil {
		return err
	}
	if err := fileops.AtomicWriteReader(dest, r, 0644); err != nil {
		return &FetchError{URL: u.String(), Command: "download", Err: err}
	}
	return nil
}
