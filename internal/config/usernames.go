package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// UsernameMap maps platform usernames to display full names. Identities
// without an entry render as the raw username.
type UsernameMap map[string]string

// FullName resolves a username to its display name, falling back to the
// username itself.
func (m UsernameMap) FullName(username string) string {
	if m == nil {
		return username
	}
	if full, ok := m[username]; ok && full != "" {
		return full
	}
	return username
}

// LoadUsernames reads a JSON username-to-full-name mapping file. A missing
// file is reported through the returned error; callers treat it as non-fatal.
func LoadUsernames(path string) (UsernameMap, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	mapping := UsernameMap{}
	if err := json.Unmarshal(payload, &mapping); err != nil {
		return nil, fmt.Errorf("parse username mapping %s: %w", path, err)
	}
	return mapping, nil
}
