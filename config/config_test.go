package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/kbukum/nitai/errors"
)

type tlsSection struct {
	CAFile     string `mapstructure:"ca_file"`
	SkipVerify bool   `mapstructure:"skip_verify"`
}

type proxy struct {
	URL string `mapstructure:"url"`
}

type testConfig struct {
	Name     string            `mapstructure:"name"`
	PoolSize int               `mapstructure:"pool_size"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	Headers  map[string]string `mapstructure:"headers"`
	Proxies  []proxy           `mapstructure:"proxies"`
	TLS      *tlsSection       `mapstructure:"tls"`
	Ignored  string            `mapstructure:"-"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "cfg.yml", `
name: from-file
pool_size: 16
timeout: 5s
headers:
  x-api: key
proxies:
  - url: http://proxy:3128
tls:
  ca_file: /etc/ca.pem
`)
	var cfg testConfig
	if err := Load("cfgtest", &cfg, WithConfigFile(path), WithEnvFile("/nonexistent/.env")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "from-file" || cfg.PoolSize != 16 || cfg.Timeout != 5*time.Second {
		t.Errorf("unexpected scalars %+v", cfg)
	}
	if cfg.Headers["x-api"] != "key" {
		t.Errorf("expected header from file, got %v", cfg.Headers)
	}
	if len(cfg.Proxies) != 1 || cfg.Proxies[0].URL != "http://proxy:3128" {
		t.Errorf("expected one proxy, got %v", cfg.Proxies)
	}
	if cfg.TLS == nil || cfg.TLS.CAFile != "/etc/ca.pem" {
		t.Errorf("expected tls section, got %+v", cfg.TLS)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "cfg.yml", "name: from-file\npool_size: 16\n")
	t.Setenv("CFGTEST_POOL_SIZE", "4")
	t.Setenv("CFGTEST_TIMEOUT", "250ms")
	t.Setenv("CFGTEST_TLS_SKIP_VERIFY", "true")

	var cfg testConfig
	if err := Load("cfgtest", &cfg, WithConfigFile(path), WithEnvFile("/nonexistent/.env")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "from-file" {
		t.Errorf("expected file value kept, got %q", cfg.Name)
	}
	if cfg.PoolSize != 4 || cfg.Timeout != 250*time.Millisecond {
		t.Errorf("expected env overrides, got %d %s", cfg.PoolSize, cfg.Timeout)
	}
	if cfg.TLS == nil || !cfg.TLS.SkipVerify {
		t.Errorf("expected nested env key, got %+v", cfg.TLS)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	envPath := writeFile(t, ".env", "DOTENVTEST_NAME=from-dotenv\nDOTENVTEST_POOL_SIZE=9\n")
	t.Setenv("DOTENVTEST_POOL_SIZE", "3")
	t.Cleanup(func() { _ = os.Unsetenv("DOTENVTEST_NAME") })

	var cfg testConfig
	if err := Load("dotenvtest", &cfg, WithConfigFile("/nonexistent/cfg.yml"), WithEnvFile(envPath)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "from-dotenv" {
		t.Errorf("expected value from .env, got %q", cfg.Name)
	}
	if cfg.PoolSize != 3 {
		t.Errorf("expected process env to win over .env, got %d", cfg.PoolSize)
	}
	if cfg.TLS != nil {
		t.Errorf("expected unset section to stay nil, got %+v", cfg.TLS)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeFile(t, "cfg.yml", "name: [unterminated\n")
	var cfg testConfig
	err := Load("cfgtest", &cfg, WithConfigFile(path))
	if errors.CodeOf(err) != errors.ErrCodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestLoad_BadValue(t *testing.T) {
	t.Setenv("BADTEST_POOL_SIZE", "many")
	var cfg testConfig
	err := Load("badtest", &cfg, WithConfigFile("/nonexistent/cfg.yml"), WithEnvFile("/nonexistent/.env"))
	if errors.CodeOf(err) != errors.ErrCodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestKeys(t *testing.T) {
	got := Keys(&testConfig{})
	want := []string{"name", "pool_size", "timeout", "tls.ca_file", "tls.skip_verify"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	type embedded struct {
		Base  testConfig `mapstructure:",squash"`
		Extra int        `mapstructure:"extra"`
	}
	if keys := Keys(embedded{}); !slices.Contains(keys, "pool_size") || !slices.Contains(keys, "extra") {
		t.Errorf("expected squashed keys, got %v", keys)
	}
	if Keys(42) != nil {
		t.Error("expected no keys for a non-struct")
	}
}

func TestEnvName(t *testing.T) {
	if got := EnvName("NITAI", "tls.ca_file"); got != "NITAI_TLS_CA_FILE" {
		t.Errorf("unexpected env name %s", got)
	}
}

type mockFS struct {
	files  map[string]bool
	loaded []string
}

func (m *mockFS) Exists(path string) bool { return m.files[path] }

func (m *mockFS) LoadEnv(path string) error {
	m.loaded = append(m.loaded, path)
	return nil
}

func TestResolver_Search(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./config/nitai.yaml": true,
		"./config.yml":        true,
		"./.env":              true,
	}}
	files := (&Resolver{FileSystem: fs}).ResolveFiles("nitai", LoaderConfig{})
	if files.ConfigFile != "./config/nitai.yaml" {
		t.Errorf("expected the named file first, got %q", files.ConfigFile)
	}
	if files.EnvFile != "./.env" {
		t.Errorf("expected ./.env, got %q", files.EnvFile)
	}

	files = (&Resolver{FileSystem: fs}).ResolveFiles("nitai", LoaderConfig{ConfigFile: "/explicit.yml"})
	if files.ConfigFile != "/explicit.yml" {
		t.Errorf("expected explicit path kept, got %q", files.ConfigFile)
	}
}

func TestLoad_UsesFileSystem(t *testing.T) {
	fs := &mockFS{files: map[string]bool{"./.env.fstest": true}}
	var cfg testConfig
	if err := Load("fstest", &cfg, WithFileSystem(fs)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fs.loaded) != 1 || fs.loaded[0] != "./.env.fstest" {
		t.Errorf("expected .env.fstest loaded through the file system, got %v", fs.loaded)
	}
}
