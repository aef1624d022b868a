package config

import (
	"strings"
	"testing"
)

func TestMergeScalarsOverlayWins(t *testing.T) {
	base := Defaults()
	overlay := &Config{Version: 1, Dest: "public", Style: Style{Dest: "styles"}}

	merged, err := Merge(base, overlay)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if merged.Dest != "public" {
		t.Errorf("dest = %q, want public", merged.Dest)
	}
	if merged.Style.Dest != "styles" {
		t.Errorf("style dest = %q, want styles", merged.Style.Dest)
	}
	if merged.Script.Dest != "js" {
		t.Errorf("script dest = %q, want base value js", merged.Script.Dest)
	}
}

func TestMergeListsReplace(t *testing.T) {
	base := Defaults()
	overlay := &Config{Script: Script{Src: []string{"src/**/*.mjs"}}}

	merged, err := Merge(base, overlay)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(merged.Script.Src) != 1 || merged.Script.Src[0] != "src/**/*.mjs" {
		t.Errorf("script src = %v", merged.Script.Src)
	}
	if len(merged.Style.Src) != 1 || merged.Style.Src[0] != "scss/**/*.scss" {
		t.Errorf("style src should be untouched: %v", merged.Style.Src)
	}
}

func TestMergeMapsByKey(t *testing.T) {
	base := &Config{Markup: Markup{Data: map[string]any{"siteName": "Base", "year": 2024}}}
	overlay := &Config{Markup: Markup{Data: map[string]any{"siteName": "Overlay", "author": "ops"}}}

	merged, err := Merge(base, overlay)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	data := merged.Markup.Data
	if data["siteName"] != "Overlay" {
		t.Errorf("siteName = %v, want Overlay", data["siteName"])
	}
	if data["year"] != 2024 {
		t.Errorf("year = %v, want 2024", data["year"])
	}
	if data["author"] != "ops" {
		t.Errorf("author = %v, want ops", data["author"])
	}
}

func TestMergeDoesNotAliasBase(t *testing.T) {
	base := Defaults()
	merged, err := Merge(base, &Config{})
	if err != nil {
		t.Fatal(err)
	}
	merged.Style.Src[0] = "changed"
	if base.Style.Src[0] == "changed" {
		t.Error("merged config shares list storage with base")
	}
}

func TestMergeVersionMismatch(t *testing.T) {
	_, err := Merge(&Config{Version: 1}, &Config{Version: 2})
	if err == nil {
		t.Fatal("expected version mismatch error")
	}
	if !strings.Contains(err.Error(), "version mismatch") {
		t.Errorf("error = %v", err)
	}
}

func TestMergeNil(t *testing.T) {
	cfg := Defaults()
	if got, _ := Merge(nil, cfg); got != cfg {
		t.Error("Merge(nil, cfg) should return cfg")
	}
	if got, _ := Merge(cfg, nil); got != cfg {
		t.Error("Merge(cfg, nil) should return cfg")
	}
}

func TestMergeAllEmpty(t *testing.T) {
	if _, err := MergeAll(nil); err == nil {
		t.Fatal("expected error for empty list")
	}
}
