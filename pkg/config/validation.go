package config

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/covedav/covedav/pkg/rules"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom
// rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for rules that
// cannot be expressed in tags: rule shape, permission strings, regex
// compilation, user uniqueness and TLS pairing.
//
// Note: log level normalization is handled in ApplyDefaults, not here.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// TLS needs both halves of the pair or neither
	if (cfg.Server.TLSCertFile == "") != (cfg.Server.TLSKeyFile == "") {
		return fmt.Errorf("server: tls_cert_file and tls_key_file must be set together")
	}

	if len(cfg.Users) == 0 {
		return fmt.Errorf("users: at least one user must be configured")
	}

	names := make(map[string]bool)
	for i, user := range cfg.Users {
		if names[user.Username] {
			return fmt.Errorf("users[%d]: duplicate username %q", i, user.Username)
		}
		names[user.Username] = true

		if user.Permissions != "" {
			if _, err := rules.ParsePermissions(user.Permissions); err != nil {
				return fmt.Errorf("users[%d]: %w", i, err)
			}
		}
		if err := validateRuleConfigs(fmt.Sprintf("users[%d].rules", i), user.Rules); err != nil {
			return err
		}
	}

	if _, err := rules.ParsePermissions(cfg.Permissions); err != nil {
		return fmt.Errorf("permissions: %w", err)
	}

	return validateRuleConfigs("rules", cfg.Rules)
}

// validateRuleConfigs checks a rule list: each rule needs exactly one
// matcher, a compilable regex where given, and a parseable permission
// string.
func validateRuleConfigs(section string, ruleCfgs []RuleConfig) error {
	for i, rc := range ruleCfgs {
		if (rc.Path == "") == (rc.Regex == "") {
			return fmt.Errorf("%s[%d]: exactly one of path and regex must be set", section, i)
		}
		if rc.Regex != "" {
			if _, err := regexp.Compile(rc.Regex); err != nil {
				return fmt.Errorf("%s[%d]: invalid regex: %w", section, i, err)
			}
		}
		if _, err := rules.ParsePermissions(rc.Permissions); err != nil {
			return fmt.Errorf("%s[%d]: %w", section, i, err)
		}
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly
// messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
