package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :9999\nmodel_path: /m/z\ngallery_dir: /g\nworker:\n  url: http://127.0.0.1:7000\njobs:\n  max_active: 4\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.ModelPath != "/m/z" || cfg.GalleryDir != "/g" || cfg.Worker.URL != "http://127.0.0.1:7000" || cfg.Jobs.MaxActive != 4 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	// untouched keys keep their defaults
	if cfg.DefaultSteps != 9 || cfg.Rewrite.Model != "deepseek-chat" || cfg.Jobs.MaxConcurrentInference != 1 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","default_width":768,"default_optimization_mode":"minimal","rewrite":{"api_key":"k"}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.DefaultWidth != 768 || cfg.DefaultProfile != "minimal" || cfg.Rewrite.APIKey != "k" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\noffload_folder=\"/o\"\n[log]\nlevel=\"debug\"\nfile=\"/tmp/z.log\"\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.OffloadDir != "/o" || cfg.Log.Level != "debug" || cfg.Log.File != "/tmp/z.log" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MODEL_PATH":              "/legacy/model",
		"DEEPSEEK_API_KEY":        "sk-test",
		"ZIMAGED_ADDR":            ":6000",
		"ZIMAGED_MAX_ACTIVE_JOBS": "2",
		"ZIMAGED_LOG_LEVEL":       " ",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })
	if cfg.ModelPath != "/legacy/model" || cfg.Rewrite.APIKey != "sk-test" || cfg.Addr != ":6000" || cfg.Jobs.MaxActive != 2 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("blank env value must not override, got %q", cfg.Log.Level)
	}
	env["ZIMAGED_MODEL_PATH"] = "/new/model"
	cfg.ApplyEnv(func(k string) string { return env[k] })
	if cfg.ModelPath != "/new/model" {
		t.Fatalf("prefixed key should win, got %q", cfg.ModelPath)
	}
}

func TestLoadDotEnv(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, ".env", "ZIMAGED_TEST_DOTENV=from-file\n")
	t.Setenv("ZIMAGED_TEST_DOTENV", "")
	os.Unsetenv("ZIMAGED_TEST_DOTENV")
	if err := LoadDotEnv(filepath.Join(d, "missing.env"), p); err != nil {
		t.Fatalf("dotenv: %v", err)
	}
	if got := os.Getenv("ZIMAGED_TEST_DOTENV"); got != "from-file" {
		t.Fatalf("got %q", got)
	}
}

func TestValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg := Default()
	cfg.Worker.Bin = ""
	cfg.Worker.PortStart = 9000
	cfg.Worker.PortEnd = 8000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}
