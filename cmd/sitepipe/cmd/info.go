package cmd

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the effective configuration and build state",
	Long: `Displays the sitepipe version, the config files consulted, the project
root, the build directory and its size, the cache, the environment variables
exposed to templates and the vendor dependencies.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		cfg := client.Config()
		fmt.Printf("sitepipe %s\n", version)

		fmt.Println("  config chain:")
		for _, layer := range client.Layers() {
			status := "not found"
			if layer.Loaded {
				status = "loaded"
			}
			fmt.Printf("    %-10s %s (%s)\n", string(layer.Level)+":", layer.Path, status)
		}

		fmt.Printf("  project root:  %s\n", client.ProjectRoot())
		dest := filepath.Join(client.ProjectRoot(), filepath.FromSlash(cfg.Dest))
		files, size := dirSize(dest)
		fmt.Printf("  build dir:     %s (%d files, %s)\n", cfg.Dest, files, humanize.Bytes(uint64(size)))

		store := "memory"
		if cfg.Cache.File != "" {
			store = cfg.Cache.File
		}
		fmt.Printf("  cache:         %s (%d entries)\n", store, client.CacheEntries())
		fmt.Printf("  serve:         http://%s (debounce %s)\n", cfg.Serve.Addr, time.Duration(cfg.Serve.Debounce))

		if keys := client.Overlay().Keys(); len(keys) > 0 {
			fmt.Printf("  template env:  %s\n", strings.Join(keys, ", "))
		}

		if deps := client.Dependencies(); len(deps) > 0 {
			fmt.Println("\nVendor dependencies:")
			for _, id := range deps.IDs() {
				fmt.Printf("  %-20s -> %s\n", id, filepath.ToSlash(filepath.Join(cfg.Vendor.Staging, deps[id])))
			}
		}
		return nil
	},
}

// dirSize counts the regular files below dir and their total size. A
// missing directory counts as empty.
func dirSize(dir string) (int, int64) {
	var (
		n    int
		size int64
	)
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			n++
			size += fi.Size()
		}
		return nil
	})
	return n, size
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
