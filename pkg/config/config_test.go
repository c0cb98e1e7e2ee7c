package config

import (
	"os"
	"path/filepath"
	"testing"
)

// testConfig returns a defaulted configuration that passes validation.
func testConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Users = []UserConfig{{Username: "alice", Password: "s3cret"}}
	return cfg
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: debug
server:
  port: 9090
  prefix: /dav
auth:
  realm: documents
directory: /srv/dav
permissions: CR
users:
  - username: alice
    password: s3cret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.Prefix != "/dav" {
		t.Errorf("Expected prefix /dav, got %q", cfg.Server.Prefix)
	}
	if cfg.Auth.Realm != "documents" {
		t.Errorf("Expected realm documents, got %q", cfg.Auth.Realm)
	}
	if cfg.Directory != "/srv/dav" {
		t.Errorf("Expected directory /srv/dav, got %q", cfg.Directory)
	}
	if len(cfg.Users) != 1 || cfg.Users[0].Username != "alice" {
		t.Errorf("Expected one user alice, got %+v", cfg.Users)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: info
users:
  - username: alice
    password: s3cret
`)

	t.Setenv("COVEDAV_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected env override DEBUG, got %q", cfg.Logging.Level)
	}
}

func TestLoad_DefaultsFillGaps(t *testing.T) {
	path := writeConfigFile(t, `
users:
  - username: alice
    password: s3cret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Permissions != "R" {
		t.Errorf("Expected default permissions R, got %q", cfg.Permissions)
	}
	if cfg.Storage.Type != "filesystem" {
		t.Errorf("Expected default storage type filesystem, got %q", cfg.Storage.Type)
	}
}

func TestLoad_InvalidConfigFails(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 99999
users:
  - username: alice
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Expected load error for out-of-range port")
	}
}

func TestLoad_MalformedFileFails(t *testing.T) {
	path := writeConfigFile(t, "users: [unclosed")

	if _, err := Load(path); err == nil {
		t.Fatal("Expected load error for malformed YAML")
	}
}

func TestLoad_UserRulesAndOverrides(t *testing.T) {
	path := writeConfigFile(t, `
users:
  - username: alice
    password: s3cret
    directory: /srv/alice
    permissions: CRUD
    rules_behavior: overwrite
    rules:
      - path: /pub
        permissions: R
      - regex: '\.pdf$'
        permissions: none
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	user := cfg.Users[0]
	if user.Directory != "/srv/alice" {
		t.Errorf("Expected user directory /srv/alice, got %q", user.Directory)
	}
	if user.RulesBehavior != "overwrite" {
		t.Errorf("Expected rules_behavior overwrite, got %q", user.RulesBehavior)
	}
	if len(user.Rules) != 2 {
		t.Fatalf("Expected 2 rules, got %d", len(user.Rules))
	}
	if user.Rules[0].Path != "/pub" || user.Rules[1].Regex == "" {
		t.Errorf("Rules decoded incorrectly: %+v", user.Rules)
	}
}
