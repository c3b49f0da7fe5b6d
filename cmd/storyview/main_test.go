package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_TeesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storyview.log")
	logger, closeLog, err := newLogger("debug", path)
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("storyview: hello", "target", "alice")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"storyview: hello"`) || !strings.Contains(string(data), `"target":"alice"`) {
		t.Errorf("log file: got %s", data)
	}
}

func TestLoadConfig_DefaultWithoutPath(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TargetsFile != "instagramid.txt" {
		t.Errorf("TargetsFile = %q", cfg.TargetsFile)
	}
}

func TestOverride(t *testing.T) {
	s := "keep"
	override(&s, "")
	if s != "keep" {
		t.Errorf("empty override changed value to %q", s)
	}
	override(&s, "new")
	if s != "new" {
		t.Errorf("override: got %q", s)
	}
}
