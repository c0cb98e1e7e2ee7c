package config

import (
	"testing"

	"github.com/spf13/afero"
)

func TestCreateBackend(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		backend, err := CreateBackend(&StorageConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("CreateBackend failed: %v", err)
		}
		if backend.Name() != "MemMapFS" {
			t.Errorf("Expected MemMapFS backend, got %q", backend.Name())
		}
	})

	t.Run("FilesystemType", func(t *testing.T) {
		backend, err := CreateBackend(&StorageConfig{Type: "filesystem"})
		if err != nil {
			t.Fatalf("CreateBackend failed: %v", err)
		}
		if backend.Name() != "OsFs" {
			t.Errorf("Expected OsFs backend, got %q", backend.Name())
		}
	})

	t.Run("ReadOnlyFilesystemOption", func(t *testing.T) {
		backend, err := CreateBackend(&StorageConfig{
			Type:       "filesystem",
			Filesystem: map[string]any{"read_only": true},
		})
		if err != nil {
			t.Fatalf("CreateBackend failed: %v", err)
		}
		if backend.Name() == "OsFs" {
			t.Error("Expected read-only wrapper around OsFs")
		}
	})

	t.Run("UnknownTypeFails", func(t *testing.T) {
		if _, err := CreateBackend(&StorageConfig{Type: "s3"}); err == nil {
			t.Fatal("Expected error for unknown storage type")
		}
	})
}

func TestCreateRegistry(t *testing.T) {
	backend := afero.NewMemMapFs()

	t.Run("BuildsOnePrincipalPerUser", func(t *testing.T) {
		cfg := testConfig()
		cfg.Directory = "/srv/shared"
		cfg.Users = []UserConfig{
			{Username: "alice", Password: "a"},
			{Username: "bob", Password: "b", Directory: "/srv/bob"},
		}

		registry, err := CreateRegistry(cfg, backend)
		if err != nil {
			t.Fatalf("CreateRegistry failed: %v", err)
		}
		if registry.Len() != 2 {
			t.Errorf("Expected 2 principals, got %d", registry.Len())
		}
	})

	t.Run("AuthenticatesConfiguredUser", func(t *testing.T) {
		cfg := testConfig()
		registry, err := CreateRegistry(cfg, backend)
		if err != nil {
			t.Fatalf("CreateRegistry failed: %v", err)
		}

		p, err := registry.Authenticate("alice", "s3cret")
		if err != nil {
			t.Fatalf("Expected configured user to authenticate: %v", err)
		}
		if p.Store == nil {
			t.Error("Expected principal to carry a rooted store")
		}
	})

	t.Run("ResolvesEnvironmentIndirectedSecrets", func(t *testing.T) {
		t.Setenv("COVEDAV_TEST_FACTORY_SECRET", "resolved")

		cfg := testConfig()
		cfg.Users[0].Password = "{env}COVEDAV_TEST_FACTORY_SECRET"

		registry, err := CreateRegistry(cfg, backend)
		if err != nil {
			t.Fatalf("CreateRegistry failed: %v", err)
		}

		if _, err := registry.Authenticate("alice", "resolved"); err != nil {
			t.Errorf("Expected env-resolved secret to authenticate: %v", err)
		}
	})

	t.Run("UserRulesDecideOverGlobalOnAppend", func(t *testing.T) {
		cfg := testConfig()
		cfg.Rules = []RuleConfig{{Path: "/pub", Permissions: "R"}}
		cfg.Users[0].Rules = []RuleConfig{{Path: "/pub", Permissions: "none"}}

		registry, err := CreateRegistry(cfg, backend)
		if err != nil {
			t.Fatalf("CreateRegistry failed: %v", err)
		}

		p, err := registry.Authenticate("alice", "s3cret")
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}

		perms := p.Rules.PermissionsFor("/pub/doc.txt")
		if perms.Read {
			t.Error("Expected user rule (registered later) to deny read on /pub")
		}
	})

	t.Run("InvalidUserPermissionsFail", func(t *testing.T) {
		cfg := testConfig()
		cfg.Users[0].Permissions = "XYZ"

		if _, err := CreateRegistry(cfg, backend); err == nil {
			t.Fatal("Expected error for invalid user permissions")
		}
	})
}

func TestCreateServerConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Address = "127.0.0.1"
	cfg.Server.Port = 9090
	cfg.Server.Prefix = "/dav"
	cfg.Server.CORS.Enabled = true
	ApplyDefaults(cfg)

	sc := CreateServerConfig(cfg)

	if sc.Address != "127.0.0.1" || sc.Port != 9090 || sc.Prefix != "/dav" {
		t.Errorf("Listener settings mapped incorrectly: %+v", sc)
	}
	if !sc.CORS.Enabled || len(sc.CORS.AllowedMethods) == 0 {
		t.Errorf("CORS settings mapped incorrectly: %+v", sc.CORS)
	}
	if sc.ShutdownTimeout != cfg.Server.ShutdownTimeout {
		t.Errorf("Expected shutdown timeout %v, got %v", cfg.Server.ShutdownTimeout, sc.ShutdownTimeout)
	}
}
