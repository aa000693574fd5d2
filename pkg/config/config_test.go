package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sampleConfig struct {
	Name        string        `split_words:"true" required:"true"`
	CallTimeout time.Duration `split_words:"true" default:"30s"`
	Endpoints   []string
}

// Not parallel: exercises process environment and package state.
func TestNewExportsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	content := "TGCFG_NAME=geo\nTGCFG_ENDPOINTS=agent1a=http://a:8000,agent1b=http://b:8000\nTGCFG_CALL_TIMEOUT=5s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	for _, k := range []string{"TGCFG_NAME", "TGCFG_ENDPOINTS", "TGCFG_CALL_TIMEOUT"} {
		k := k
		t.Cleanup(func() { _ = os.Unsetenv(k) })
	}
	t.Setenv("TGCFG_CALL_TIMEOUT", "7s")
	t.Cleanup(func() { SetEnvFile("") })

	SetEnvFile(path)
	conf, err := New[sampleConfig]("TGCFG")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Name != "geo" {
		t.Fatalf("Name = %q", conf.Name)
	}
	if conf.CallTimeout != 7*time.Second {
		t.Fatalf("CallTimeout = %v, want the pre-set 7s", conf.CallTimeout)
	}
	if len(conf.Endpoints) != 2 || conf.Endpoints[1] != "agent1b=http://b:8000" {
		t.Fatalf("Endpoints = %#v", conf.Endpoints)
	}
}

func TestNewFailsOnMissingEnvFile(t *testing.T) {
	t.Cleanup(func() { SetEnvFile("") })
	SetEnvFile(filepath.Join(t.TempDir(), "absent.env"))

	if _, err := New[sampleConfig]("TGMISSING"); err == nil {
		t.Fatal("New() error = nil, want error for missing env file")
	}
}
