package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverPathsUserAndProject(t *testing.T) {
	layers := DiscoverPaths(DiscoverOptions{
		ProjectPath:    "./sitepipe.yaml",
		UserConfigPath: "/home/user/.config/sitepipe/sitepipe.yaml",
	})

	if len(layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(layers))
	}
	if layers[0].Level != LevelUser {
		t.Errorf("layers[0].Level = %q, want %q", layers[0].Level, LevelUser)
	}
	if layers[1].Level != LevelProject {
		t.Errorf("layers[1].Level = %q, want %q", layers[1].Level, LevelProject)
	}
}

func TestDiscoverPathsNoInherit(t *testing.T) {
	layers := DiscoverPaths(DiscoverOptions{
		ProjectPath:    "./sitepipe.yaml",
		UserConfigPath: "/home/user/.config/sitepipe/sitepipe.yaml",
		NoInherit:      true,
	})
	if len(layers) != 1 || layers[0].Level != LevelProject {
		t.Fatalf("layers = %+v", layers)
	}
}

func TestDiscoverPathsDeduplication(t *testing.T) {
	samePath, err := filepath.Abs("./sitepipe.yaml")
	if err != nil {
		t.Fatal(err)
	}

	layers := DiscoverPaths(DiscoverOptions{
		ProjectPath:    samePath,
		UserConfigPath: samePath,
	})
	if len(layers) != 1 {
		t.Fatalf("expected 1 layer (deduped), got %d", len(layers))
	}
}

func TestLoadLayered(t *testing.T) {
	dir := t.TempDir()
	userPath := filepath.Join(dir, "user.yaml")
	projectPath := filepath.Join(dir, "sitepipe.yaml")

	if err := os.WriteFile(userPath, []byte("version: 1\nserve:\n  addr: localhost:4000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(projectPath, []byte("version: 1\ndest: www\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, layers, err := LoadLayered(DiscoverOptions{
		ProjectPath:    projectPath,
		UserConfigPath: userPath,
		LookupEnv:      LookupIn([]string{"SITEPIPE_ADDR=localhost:5000"}),
	})
	if err != nil {
		t.Fatalf("LoadLayered: %v", err)
	}
	if cfg.Dest != "www" {
		t.Errorf("dest = %q, want www", cfg.Dest)
	}
	if cfg.Serve.Addr != "localhost:5000" {
		t.Errorf("addr = %q, env override should win", cfg.Serve.Addr)
	}
	for _, l := range layers {
		if !l.Loaded {
			t.Errorf("layer %s not loaded", l.Level)
		}
	}
}

func TestLoadLayeredMissingUserIsSkipped(t *testing.T) {
	dir := t.TempDir()
	projectPath := filepath.Join(dir, "sitepipe.yaml")
	if err := os.WriteFile(projectPath, []byte("version: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, layers, err := LoadLayered(DiscoverOptions{
		ProjectPath:    projectPath,
		UserConfigPath: filepath.Join(dir, "missing.yaml"),
	})
	if err != nil {
		t.Fatalf("LoadLayered: %v", err)
	}
	if layers[0].Loaded {
		t.Error("missing user layer should not be marked loaded")
	}
}

func TestLoadLayeredMissingProjectFails(t *testing.T) {
	dir := t.TempDir()
	_, _, err := LoadLayered(DiscoverOptions{
		ProjectPath: filepath.Join(dir, "sitepipe.yaml"),
		NoInherit:   true,
	})
	if err == nil {
		t.Fatal("expected error for missing project config")
	}
}

func TestEnvNoInherit(t *testing.T) {
	if !EnvNoInherit(LookupIn([]string{"SITEPIPE_NO_INHERIT=TRUE"})) {
		t.Error("expected true")
	}
	if EnvNoInherit(LookupIn(nil)) {
		t.Error("expected false when unset")
	}
}
