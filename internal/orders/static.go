package orders

import (
	"context"
	"encoding/json"
	"fmt"
)

// StaticCredentials resolves store credentials from a fixed map.
// Workspace and connection management live outside the engine; this
// resolver covers deployments where credentials arrive via environment.
type StaticCredentials map[string]Credential

// StaticCredentialsFromJSON parses a JSON array of credentials.
func StaticCredentialsFromJSON(data string) (StaticCredentials, error) {
	if data == "" {
		return StaticCredentials{}, nil
	}

	var creds []Credential
	if err := json.Unmarshal([]byte(data), &creds); err != nil {
		return nil, fmt.Errorf("failed to parse store credentials: %w", err)
	}

	resolver := make(StaticCredentials, len(creds))
	for _, c := range creds {
		resolver[c.StoreID] = c
	}
	return resolver, nil
}

// Resolve returns the store's credential or ErrNoCredential.
func (s StaticCredentials) Resolve(_ context.Context, storeID string) (Credential, error) {
	cred, ok := s[storeID]
	if !ok || cred.Domain == "" {
		return Credential{}, ErrNoCredential
	}
	return cred, nil
}
