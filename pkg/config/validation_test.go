package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := testConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := testConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := testConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidStorageType(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Type = "s3"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unsupported storage type")
	}
}

func TestValidate_PortOutOfRange(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = 70000

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for out-of-range port")
	}
}

func TestValidate_PrefixMustStartWithSlash(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Prefix = "dav"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for prefix without leading slash")
	}
}

func TestValidate_NoUsers(t *testing.T) {
	cfg := testConfig()
	cfg.Users = nil

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for no users")
	}
	if !strings.Contains(err.Error(), "at least one user") {
		t.Errorf("Expected 'at least one user' error, got: %v", err)
	}
}

func TestValidate_DuplicateUsernames(t *testing.T) {
	cfg := testConfig()
	cfg.Users = append(cfg.Users, cfg.Users[0])

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for duplicate usernames")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("Expected 'duplicate' error, got: %v", err)
	}
}

func TestValidate_TLSPairing(t *testing.T) {
	cfg := testConfig()
	cfg.Server.TLSCertFile = "/etc/covedav/cert.pem"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for cert without key")
	}
	if !strings.Contains(err.Error(), "together") {
		t.Errorf("Expected pairing error, got: %v", err)
	}

	cfg.Server.TLSKeyFile = "/etc/covedav/key.pem"
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected complete TLS pair to validate, got: %v", err)
	}
}

func TestValidate_RuleShape(t *testing.T) {
	t.Run("RuleWithoutMatcherFails", func(t *testing.T) {
		cfg := testConfig()
		cfg.Rules = []RuleConfig{{Permissions: "R"}}

		err := Validate(cfg)
		if err == nil {
			t.Fatal("Expected validation error for matcher-less rule")
		}
		if !strings.Contains(err.Error(), "exactly one") {
			t.Errorf("Expected 'exactly one' error, got: %v", err)
		}
	})

	t.Run("RuleWithBothMatchersFails", func(t *testing.T) {
		cfg := testConfig()
		cfg.Rules = []RuleConfig{{Path: "/pub", Regex: "^/pub", Permissions: "R"}}

		if err := Validate(cfg); err == nil {
			t.Fatal("Expected validation error for doubly-matched rule")
		}
	})

	t.Run("InvalidRegexFails", func(t *testing.T) {
		cfg := testConfig()
		cfg.Rules = []RuleConfig{{Regex: "([unclosed", Permissions: "R"}}

		if err := Validate(cfg); err == nil {
			t.Fatal("Expected validation error for invalid regex")
		}
	})

	t.Run("InvalidPermissionStringFails", func(t *testing.T) {
		cfg := testConfig()
		cfg.Rules = []RuleConfig{{Path: "/pub", Permissions: "RWX"}}

		if err := Validate(cfg); err == nil {
			t.Fatal("Expected validation error for invalid permission string")
		}
	})

	t.Run("UserRulesAreCheckedToo", func(t *testing.T) {
		cfg := testConfig()
		cfg.Users[0].Rules = []RuleConfig{{Permissions: "R"}}

		if err := Validate(cfg); err == nil {
			t.Fatal("Expected validation error for user rule without matcher")
		}
	})
}

func TestValidate_InvalidGlobalPermissions(t *testing.T) {
	cfg := testConfig()
	cfg.Permissions = "XYZ"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid global permissions")
	}
}

func TestValidate_InvalidRulesBehavior(t *testing.T) {
	cfg := testConfig()
	cfg.Users[0].RulesBehavior = "merge"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown rules_behavior")
	}
}
