package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnvList(t *testing.T) {
	t.Setenv("CHAT_TEST_LIST", " a:1 ,,b:2, ")
	got := EnvList("CHAT_TEST_LIST")
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
		t.Fatalf("EnvList = %v", got)
	}

	t.Setenv("CHAT_TEST_LIST", "  ")
	if got := EnvList("CHAT_TEST_LIST"); got != nil {
		t.Fatalf("blank EnvList = %v, want nil", got)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "chat.yaml"), []byte("store:\n  timeout: 3s\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("STORE_TIMEOUT", "7s")

	v, err := Load(dir, "chat")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := v.GetString("store.timeout"); got != "7s" {
		t.Fatalf("store.timeout = %q, want env value", got)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "chat.yaml"), []byte("store: [unterminated\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir, "chat"); err == nil {
		t.Fatal("expected parse error")
	}
}
