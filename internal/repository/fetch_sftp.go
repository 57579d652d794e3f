package repository

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/user"
	"path"
	"path/filepath"
	"time"

	"cutty/pkg/fileops"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPFetcher downloads sftp URLs, either a single file or a directory tree.
// Host keys are verified against ~/.ssh/known_hosts; authentication uses the
// URL password if present and the default private keys in ~/.ssh.
func SFTPFetcher() Fetcher {
	return NewFetcher("sftp", SchemeMatcher("sftp"), fetchSFTP)
}

func fetchSFTP(ctx context.Context, u *url.URL, dest string) error {
	sshClient, err := dialSSH(ctx, u)
	if err != nil {
		return &FetchError{URL: u.String(), Command: "ssh " + u.Host, Err: err}
	}
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return &FetchError{URL: u.String(), Command: "sftp " + u.Host, Err: fmt.Errorf("create sftp client: %w", err)}
	}
	defer client.Close()

	return downloadSFTP(client, u, dest)
}

// downloadSFTP copies the file or directory tree named by u into dest. Trees
// are assembled in a staging sibling and moved into place once complete.
func downloadSFTP(client *sftp.Client, u *url.URL, dest string) error {
	remote := u.Path
	info, err := client.Stat(remote)
	if err != nil {
		return &FetchError{URL: u.String(), Command: "stat " + remote, Err: err}
	}

	if !info.IsDir() {
		return downloadSFTPFile(client, u, remote, dest)
	}

	staging, err := fileops.TempSibling(dest)
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	walker := client.Walk(remote)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return &FetchError{URL: u.String(), Command: "walk " + remote, Err: err}
		}

		rel, err := filepath.Rel(remote, walker.Path())
		if err != nil {
			return err
		}
		target := filepath.Join(staging, filepath.FromSlash(rel))

		switch mode := walker.Stat().Mode(); {
		case mode.IsDir():
			if err := fileops.EnsureDirectoryExists(target); err != nil {
				return err
			}
		case mode.IsRegular():
			if err := downloadSFTPFile(client, u, walker.Path(), target); err != nil {
				return err
			}
		}
	}

	return fileops.ReplaceDir(staging, dest)
}

func downloadSFTPFile(client *sftp.Client, u *url.URL, remote, dest string) error {
	f, err := client.Open(remote)
	if err != nil {
		return &FetchError{URL: u.String(), Command: "get " + remote, Err: err}
	}
	defer f.Close()

	if err := fileops.EnsureDirectoryExists(filepath.Dir(dest)); err != nil {
		return err
	}

	perm := os.FileMode(0644)
	if info, err := f.Stat(); err == nil && info.Mode().Perm()&0o111 != 0 {
		perm = 0755
	}
	if err := fileops.AtomicWriteReader(dest, f, perm); err != nil {
		return &FetchError{URL: u.String(), Command: "get " + path.Clean(remote), Err: err}
	}
	return nil
}

func dialSSH(ctx context.Context, u *url.URL) (*ssh.Client, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot locate home directory: %w", err)
	}

	hostKeys, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
	if err != nil {
		return nil, fmt.Errorf("load known_hosts: %w", err)
	}

	username := ""
	if u.User != nil {
		username = u.User.Username()
	}
	if username == "" {
		if current, err := user.Current(); err == nil {
			username = current.Username
		}
	}

	sshConfig := &ssh.ClientConfig{
		User:            username,
		HostKeyCallback: hostKeys,
		Timeout:         30 * time.Second,
	}

	if u.User != nil {
		if password, ok := u.User.Password(); ok {
			sshConfig.Auth = append(sshConfig.Auth, ssh.Password(password))
		}
	}

	var signers []ssh.Signer
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		key, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		if signer, err := ssh.ParsePrivateKey(key); err == nil {
			signers = append(signers, signer)
		}
	}
	if len(signers) > 0 {
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signers...))
	}

	port := u.Port()
	if port == "" {
		port = "22"
	}
	addr := net.JoinHostPort(u.Hostname(), port)

	dialer := &net.Dialer{Timeout: sshConfig.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial ssh tcp: %w", err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake: %w", err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}
