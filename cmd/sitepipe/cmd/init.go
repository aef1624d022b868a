package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initForce bool

// initTemplate is the default sitepipe.yaml scaffold. Every value shown is
// the built-in default, so deleting a line changes nothing.
const initTemplate = `# sitepipe configuration
version: 1

dest: dist

# Environment variables starting with this prefix are available in
# templates as {{env.NAME}}. A .env file is read as well; the process
# environment wins.
env_prefix: SITE_
dotenv: .env

# cache:
#   file: .sitepipe-cache.yaml   # keep signatures between runs

markup:
  src: ["app/**/*.handlebars", "!app/partials/**/*.handlebars"]
  partials: [app/partials]
  data:
    siteName: Site name
  # helpers:
  #   shout: "return string.upper(s) .. '!'"   # Lua, argument is s

style:
  src: ["scss/**/*.scss"]
  dest: css
  # sass_binary: /usr/local/bin/sass   # Dart Sass; omit for plain CSS with nesting
  engines: [chrome58, firefox57, safari11, edge16]

script:
  src: ["js/**/*.js"]
  dest: js
  target: es2015

image:
  src: ["assets/img/*"]
  dest: assets/img
  jpeg_quality: 80

lib:
  src: ["lib/**/*"]
  dest: lib

# vendor:
#   store: node_modules
#   staging: lib
#   manifest: vendor.yaml
#   packages:
#     jquery: jquery
#   files:
#     bootstrap: ["dist/css/bootstrap.min.css", "dist/js/bootstrap.bundle.min.js"]

serve:
  addr: localhost:3000
  debounce: 100ms
  gzip: true
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter sitepipe.yaml configuration",
	Long: `Creates a sitepipe.yaml file with the built-in defaults written out and
commented examples for the cache, Sass, helpers and vendor dependencies.

Use --force to overwrite an existing configuration file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath := configPath
		if !filepath.IsAbs(outPath) {
			abs, err := filepath.Abs(outPath)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			outPath = abs
		}

		if !initForce {
			if _, err := os.Stat(outPath); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", outPath)
			}
		}

		if err := os.WriteFile(outPath, []byte(initTemplate), 0644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		info("Created %s", outPath)
		info("")
		info("Next steps:")
		info("  1. Put pages in app/, styles in scss/, scripts in js/")
		info("  2. Run 'sitepipe build' for a one-shot build")
		info("  3. Run 'sitepipe' to build and serve with live reload")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing config file")
	rootCmd.AddCommand(initCmd)
}
