package repository

import (
	"testing"

	"github.com/zalando/go-keyring"
)

// NewTestCredentialManager returns a credential manager backed by the
// in-memory keyring provider, so tests never touch the developer's real
// credential store.
//
// Usage:
//
//	cm := repository.NewTestCredentialManager(t)
//	cm.StoreToken("github.com", "ghp_test")
func NewTestCredentialManager(t *testing.T) *CredentialManager {
	t.Helper()

	keyring.MockInit()

	return &CredentialManager{
		service: "cutty-test-" + t.Name(),
	}
}
