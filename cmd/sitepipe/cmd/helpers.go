package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bianoble/sitepipe/pkg/sitepipe"
)

// newLogger builds the structured logger every component receives.
func newLogger(w io.Writer) (*slog.Logger, error) {
	level := slog.LevelInfo
	switch {
	case quiet:
		level = slog.LevelError
	case verbose:
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	switch logFormat {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format '%s' (want text or json)", logFormat)
}

// newClient loads the configuration and assembles the task graph.
func newClient() (*sitepipe.Client, error) {
	logger, err := newLogger(os.Stderr)
	if err != nil {
		return nil, err
	}
	client, err := sitepipe.New(sitepipe.Options{
		ConfigPath: configPath,
		NoInherit:  noInherit,
		Addr:       serveAddr,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", configPath, err)
	}
	return client, nil
}

// runTask runs one named task and prints a summary of what it wrote.
func runTask(cmd *cobra.Command, name string) (err error) {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	err = client.Run(cmd.Context(), name)

	rep := client.Report()
	for _, res := range rep.Results() {
		for _, o := range res.Written {
			detail("%s  %s", res.Task, o.Path)
		}
	}
	info("%s: %s", name, rep.Summary())
	return err
}

// info prints a line unless quiet mode is active.
func info(format string, args ...any) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}

// detail prints a line only in verbose mode.
func detail(format string, args ...any) {
	if verbose {
		fmt.Printf("  "+format+"\n", args...)
	}
}
