package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/PhillHH/chat-agent/internal/domain/pii"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_FullFile(t *testing.T) {
	path := writeRules(t, `threshold: 0.9
labels:
  - person
  - iban
rules:
  - label: IBAN
    pattern: "DE[0-9]{20}"
`)

	rs, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rs.Threshold != 0.9 {
		t.Errorf("threshold = %v, want 0.9", rs.Threshold)
	}
	if len(rs.Labels) != 2 || rs.Labels[1] != "iban" {
		t.Errorf("labels = %v", rs.Labels)
	}
	if len(rs.Rules) != 1 || rs.Rules[0].Label != "IBAN" {
		t.Fatalf("rules = %+v", rs.Rules)
	}
	if !rs.Rules[0].Pattern.MatchString("DE12345678901234567890") {
		t.Error("compiled pattern does not match its own example")
	}
}

func TestLoad_DefaultsBackfill(t *testing.T) {
	path := writeRules(t, "rules: []\n")

	rs, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defaults := pii.DefaultRuleset()
	if rs.Threshold != defaults.Threshold {
		t.Errorf("threshold = %v, want default %v", rs.Threshold, defaults.Threshold)
	}
	if len(rs.Labels) != len(defaults.Labels) {
		t.Errorf("labels = %v, want defaults", rs.Labels)
	}
	// An explicitly empty rules list switches the regex phase off.
	if len(rs.Rules) != 0 {
		t.Errorf("rules = %+v, want none", rs.Rules)
	}
}

func TestLoad_BadPattern(t *testing.T) {
	path := writeRules(t, `rules:
  - label: BROKEN
    pattern: "["
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for an invalid pattern")
	}
}

func TestLoad_MissingLabel(t *testing.T) {
	path := writeRules(t, `rules:
  - pattern: "x+"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for a rule without a label")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("err = %v, want a not-exist error", err)
	}
}
