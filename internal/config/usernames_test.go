package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestUsernameMapFullName(t *testing.T) {
	t.Parallel()

	mapping := UsernameMap{"alice": "Alice A", "empty": ""}

	if got := mapping.FullName("alice"); got != "Alice A" {
		t.Fatalf("FullName(alice) = %q", got)
	}
	if got := mapping.FullName("bob"); got != "bob" {
		t.Fatalf("unmapped username must fall back to itself, got %q", got)
	}
	if got := mapping.FullName("empty"); got != "empty" {
		t.Fatalf("empty mapping must fall back to the username, got %q", got)
	}

	var nilMap UsernameMap
	if got := nilMap.FullName("carol"); got != "carol" {
		t.Fatalf("nil map must fall back to the username, got %q", got)
	}
}

func TestLoadUsernames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "github-usernames.json")
	if err := os.WriteFile(path, []byte(`{"alice": "Alice A", "bob": "Bob B"}`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	mapping, err := LoadUsernames(path)
	if err != nil {
		t.Fatalf("LoadUsernames: %v", err)
	}
	if mapping.FullName("bob") != "Bob B" {
		t.Fatalf("mapping = %v", mapping)
	}

	if _, err := LoadUsernames(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("missing file must report an error")
	}

	badPath := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(badPath, []byte(`["not", "an", "object"]`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadUsernames(badPath); err == nil {
		t.Fatalf("malformed mapping must report an error")
	}
}
