package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var (
	configPath string
	verbose    bool
	quiet      bool
	logFormat  string
	noInherit  bool
	serveAddr  string
)

var rootCmd = &cobra.Command{
	Use:   "sitepipe [task]",
	Short: "Build and serve a static site",
	Long: `sitepipe renders Handlebars pages, compiles stylesheets and scripts,
optimizes images and stages vendor libraries into a build directory, then
serves it with live reload while sources change.

Without a subcommand it runs the default task: build, then serve.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(cmd, "default")
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sitepipe %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "sitepipe.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "detailed output")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "minimal output (errors only)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
	rootCmd.PersistentFlags().BoolVar(&noInherit, "no-inherit", false, "ignore the user-level config")
	rootCmd.Flags().StringVar(&serveAddr, "addr", "", "dev server listen address (overrides serve.addr)")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command. An interrupt stops running sessions
// gracefully.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
