package config

import (
	"fmt"
	"regexp"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"

	"github.com/covedav/covedav/internal/logger"
	"github.com/covedav/covedav/pkg/identity"
	"github.com/covedav/covedav/pkg/rules"
	"github.com/covedav/covedav/pkg/server"
	"github.com/covedav/covedav/pkg/store/fs"
)

// CreateBackend creates the storage backend based on configuration.
//
// This factory uses the Type field to determine which afero backend to
// create, then decodes the type-specific options from the corresponding
// map.
//
// Supported types:
//   - "filesystem": the host filesystem (afero.OsFs)
//   - "memory": a process-local in-memory filesystem (afero.MemMapFs)
//
// Returns:
//   - afero.Fs: Initialized backend
//   - error: Configuration error
func CreateBackend(cfg *StorageConfig) (afero.Fs, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemBackend(cfg.Filesystem)
	case "memory":
		return afero.NewMemMapFs(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %q", cfg.Type)
	}
}

// createFilesystemBackend creates a host-filesystem backend.
func createFilesystemBackend(options map[string]any) (afero.Fs, error) {
	type FilesystemOptions struct {
		// ReadOnly wraps the backend so every mutation fails
		ReadOnly bool `mapstructure:"read_only"`
	}

	var opts FilesystemOptions
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem storage options: %w", err)
	}

	backend := afero.NewOsFs()
	if opts.ReadOnly {
		backend = afero.NewReadOnlyFs(backend)
	}
	return backend, nil
}

// CreateRegistry builds the principal registry from configuration.
//
// For every configured user this resolves the password indirection,
// compiles and merges the rule lists, and roots a store on the shared
// backend. Principals are immutable once built; the registry is the
// single authentication surface handed to the server.
func CreateRegistry(cfg *Config, backend afero.Fs) (*identity.Registry, error) {
	globalRules, err := compileRules(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}

	globalPerms, err := rules.ParsePermissions(cfg.Permissions)
	if err != nil {
		return nil, fmt.Errorf("permissions: %w", err)
	}

	registry := identity.NewRegistry(cfg.Auth.Realm, cfg.Auth.NoPassword)

	for i := range cfg.Users {
		p, err := createPrincipal(&cfg.Users[i], cfg, globalRules, globalPerms, backend)
		if err != nil {
			return nil, fmt.Errorf("users[%d] (%s): %w", i, cfg.Users[i].Username, err)
		}
		registry.Add(p)
	}

	logger.Info("Loaded %d principal(s) under realm %q", registry.Len(), cfg.Auth.Realm)
	return registry, nil
}

// createPrincipal builds one principal, applying global fallbacks for
// directory, permissions and rules.
func createPrincipal(user *UserConfig, cfg *Config, globalRules []rules.Rule, globalPerms rules.Permissions, backend afero.Fs) (*identity.Principal, error) {
	secret := identity.ResolveIndirect(user.Password)

	root := user.Directory
	if root == "" {
		root = cfg.Directory
	}

	perms := globalPerms
	if user.Permissions != "" {
		var err error
		perms, err = rules.ParsePermissions(user.Permissions)
		if err != nil {
			return nil, err
		}
	}

	userRules, err := compileRules(user.Rules)
	if err != nil {
		return nil, err
	}

	behavior, err := rules.ParseBehavior(user.RulesBehavior)
	if err != nil {
		return nil, err
	}

	ruleSet := rules.RuleSet{
		Rules:   rules.MergeRules(globalRules, userRules, behavior),
		Default: perms,
	}

	st, err := fs.New(backend, root)
	if err != nil {
		return nil, err
	}

	return identity.NewPrincipal(user.Username, secret, root, ruleSet, st), nil
}

// compileRules turns declarative rule configs into matchers. Validation
// has already checked shape; compilation errors here indicate a rule
// added after Validate ran.
func compileRules(ruleCfgs []RuleConfig) ([]rules.Rule, error) {
	compiled := make([]rules.Rule, 0, len(ruleCfgs))

	for i, rc := range ruleCfgs {
		perms, err := rules.ParsePermissions(rc.Permissions)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}

		rule := rules.Rule{Path: rc.Path, Permissions: perms}
		if rc.Regex != "" {
			re, err := regexp.Compile(rc.Regex)
			if err != nil {
				return nil, fmt.Errorf("rule %d: invalid regex: %w", i, err)
			}
			rule.Regex = re
		}

		compiled = append(compiled, rule)
	}

	return compiled, nil
}

// CreateServerConfig maps the declarative server section onto the
// runtime server settings.
func CreateServerConfig(cfg *Config) server.Config {
	return server.Config{
		Address:     cfg.Server.Address,
		Port:        cfg.Server.Port,
		Prefix:      cfg.Server.Prefix,
		TLSCertFile: cfg.Server.TLSCertFile,
		TLSKeyFile:  cfg.Server.TLSKeyFile,
		CORS: server.CORSConfig{
			Enabled:        cfg.Server.CORS.Enabled,
			AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
			AllowedMethods: cfg.Server.CORS.AllowedMethods,
			AllowedHeaders: cfg.Server.CORS.AllowedHeaders,
			Credentials:    cfg.Server.CORS.Credentials,
		},
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
}
