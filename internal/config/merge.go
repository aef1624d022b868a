package config

import (
	"fmt"
	"time"
)

// Defaults returns the built-in configuration. It mirrors the conventional
// layout: Handlebars pages under app/, styles under scss/, scripts under js/,
// images under assets/img/ and vendor files staged into lib/. Version is
// left unset so that a file declaring an unsupported version fails
// validation rather than merging.
func Defaults() *Config {
	return &Config{
		Dest:      "dist",
		EnvPrefix: "SITE_",
		DotEnv:    ".env",
		Markup: Markup{
			Src:      []string{"app/**/*.handlebars", "!app/partials/**/*.handlebars"},
			Partials: []string{"app/partials"},
			Data:     map[string]any{"siteName": "Site name"},
		},
		Style: Style{
			Src:     []string{"scss/**/*.scss"},
			Dest:    "css",
			Engines: []string{"chrome58", "firefox57", "safari11", "edge16"},
		},
		Script: Script{
			Src:    []string{"js/**/*.js"},
			Dest:   "js",
			Target: "es2015",
		},
		Image: Image{
			Src:         []string{"assets/img/*"},
			Dest:        "assets/img",
			JPEGQuality: 80,
		},
		Lib: Lib{
			Src:  []string{"lib/**/*"},
			Dest: "lib",
		},
		Vendor: Vendor{
			Store:   "node_modules",
			Staging: "lib",
		},
		Serve: Serve{
			Addr:     "localhost:3000",
			Debounce: Duration(100 * time.Millisecond),
		},
	}
}

// Merge combines two configs where overlay takes precedence over base.
//   - version: must agree if both declare it (non-zero); fatal error on mismatch
//   - scalar fields: non-empty overlay values win
//   - glob lists: a non-empty overlay list replaces the base list
//   - data, helpers, vendor packages and files: merged by key, overlay keys win
func Merge(base, overlay *Config) (*Config, error) {
	if base == nil {
		return overlay, nil
	}
	if overlay == nil {
		return base, nil
	}

	result := *base

	if err := mergeVersion(base.Version, overlay.Version, &result.Version); err != nil {
		return nil, err
	}

	result.Dest = pick(base.Dest, overlay.Dest)
	result.EnvPrefix = pick(base.EnvPrefix, overlay.EnvPrefix)
	result.DotEnv = pick(base.DotEnv, overlay.DotEnv)
	result.Cache.File = pick(base.Cache.File, overlay.Cache.File)

	result.Markup = Markup{
		Src:      pickList(base.Markup.Src, overlay.Markup.Src),
		Partials: pickList(base.Markup.Partials, overlay.Markup.Partials),
		Dest:     pick(base.Markup.Dest, overlay.Markup.Dest),
		Data:     mergeMaps(base.Markup.Data, overlay.Markup.Data),
		Helpers:  mergeMaps(base.Markup.Helpers, overlay.Markup.Helpers),
	}
	result.Style = Style{
		Src:        pickList(base.Style.Src, overlay.Style.Src),
		Dest:       pick(base.Style.Dest, overlay.Style.Dest),
		SassBinary: pick(base.Style.SassBinary, overlay.Style.SassBinary),
		Engines:    pickList(base.Style.Engines, overlay.Style.Engines),
	}
	result.Script = Script{
		Src:    pickList(base.Script.Src, overlay.Script.Src),
		Dest:   pick(base.Script.Dest, overlay.Script.Dest),
		Target: pick(base.Script.Target, overlay.Script.Target),
	}
	result.Image = Image{
		Src:         pickList(base.Image.Src, overlay.Image.Src),
		Dest:        pick(base.Image.Dest, overlay.Image.Dest),
		JPEGQuality: base.Image.JPEGQuality,
	}
	if overlay.Image.JPEGQuality != 0 {
		result.Image.JPEGQuality = overlay.Image.JPEGQuality
	}
	result.Lib = Lib{
		Src:  pickList(base.Lib.Src, overlay.Lib.Src),
		Dest: pick(base.Lib.Dest, overlay.Lib.Dest),
	}
	result.Vendor = Vendor{
		Store:    pick(base.Vendor.Store, overlay.Vendor.Store),
		Staging:  pick(base.Vendor.Staging, overlay.Vendor.Staging),
		Manifest: pick(base.Vendor.Manifest, overlay.Vendor.Manifest),
		Packages: mergeMaps(base.Vendor.Packages, overlay.Vendor.Packages),
		Files:    mergeMaps(base.Vendor.Files, overlay.Vendor.Files),
	}
	result.Serve = Serve{
		Addr:     pick(base.Serve.Addr, overlay.Serve.Addr),
		Debounce: base.Serve.Debounce,
		Gzip:     base.Serve.Gzip,
	}
	if overlay.Serve.Debounce != 0 {
		result.Serve.Debounce = overlay.Serve.Debounce
	}
	if overlay.Serve.Gzip != nil {
		result.Serve.Gzip = overlay.Serve.Gzip
	}

	return &result, nil
}

// MergeAll merges multiple configs in order (lowest precedence first).
// Returns an error if any version mismatch is found.
func MergeAll(configs []*Config) (*Config, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("no configs to merge")
	}

	result := configs[0]
	for i := 1; i < len(configs); i++ {
		var err error
		result, err = Merge(result, configs[i])
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func mergeVersion(base, overlay int, out *int) error {
	switch {
	case base == 0 && overlay == 0:
		*out = 0 // neither declares; validation will catch this
	case base == 0:
		*out = overlay
	case overlay == 0:
		*out = base
	case base == overlay:
		*out = base
	default:
		return fmt.Errorf("config version mismatch: one layer declares version %d, another declares version %d — all config layers must agree on version", base, overlay)
	}
	return nil
}

func pick(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func pickList(base, overlay []string) []string {
	if len(overlay) > 0 {
		return append([]string(nil), overlay...)
	}
	return append([]string(nil), base...)
}

func mergeMaps[V any](base, overlay map[string]V) map[string]V {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}

	result := make(map[string]V, len(base)+len(overlay))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range overlay {
		result[k] = v // overlay wins
	}
	return result
}
