package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v6/plumbing/transport/http"
	"github.com/zalando/go-keyring"
)

const (
	// Service name for OS credential store
	credentialService = "cutty"
	// Prefix of per-host token keys
	tokenKeyPrefix = "token:"
)

// ErrNoToken is returned when no token is stored for a host.
var ErrNoToken = errors.New("no token stored")

// CredentialManager handles secure storage and retrieval of per-host access
// tokens used for private template repositories.
type CredentialManager struct {
	service string
}

// NewCredentialManager creates a new credential manager instance
func NewCredentialManager() *CredentialManager {
	return &CredentialManager{
		service: credentialService,
	}
}

func tokenKey(host string) string {
	return tokenKeyPrefix + strings.ToLower(strings.TrimSpace(host))
}

// StoreToken securely stores an access token for host in the OS credential store.
//
// Parameters:
//   - host: Host name the token authenticates against (e.g. "github.com")
//   - token: Personal access token
//
// Returns:
//   - error: Storage errors or validation failures
func (cm *CredentialManager) StoreToken(host, token string) error {
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token cannot be empty")
	}

	if err := keyring.Set(cm.service, tokenKey(host), strings.TrimSpace(token)); err != nil {
		return fmt.Errorf("failed to store token in credential store: %w", err)
	}

	return nil
}

// GetToken retrieves the token stored for host. It returns an error wrapping
// ErrNoToken when nothing is stored.
func (cm *CredentialManager) GetToken(host string) (string, error) {
	token, err := keyring.Get(cm.service, tokenKey(host))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w for %s - store one with 'cutty auth login --host %s'", ErrNoToken, host, host)
		}
		return "", fmt.Errorf("failed to retrieve token from credential store: %w", err)
	}

	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w for %s - stored token is empty", ErrNoToken, host)
	}

	return token, nil
}

// HasToken checks if a token is stored for host without returning it.
func (cm *CredentialManager) HasToken(host string) bool {
	_, err := keyring.Get(cm.service, tokenKey(host))
	return err == nil
}

// DeleteToken removes the token stored for host. Deleting a missing token is
// not an error.
func (cm *CredentialManager) DeleteToken(host string) error {
	err := keyring.Delete(cm.service, tokenKey(host))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete token from credential store: %w", err)
	}
	return nil
}

// BasicAuth returns git HTTP credentials for host, or nil when no token is
// stored. Token authentication uses "token" as the user name.
func (cm *CredentialManager) BasicAuth(host string) (*http.BasicAuth, error) {
	if !cm.HasToken(host) {
		return nil, nil
	}

	token, err := cm.GetToken(host)
	if err != nil {
		return nil, err
	}

	return &http.BasicAuth{
		Username: "token",
		Password: token,
	}, nil
}

// isAuthenticationError checks if an error message carries an HTTP
// authentication failure.
func isAuthenticationError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	authPatterns := []string{
		"authentication required",
		"401",
		"unauthorized",
		"403",
		"forbidden",
	}

	for _, pattern := range authPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
