package cmd

import (
	"github.com/spf13/cobra"
)

// taskCommand describes the subcommand of one graph task. Names and
// aliases match the task graph assembled by the sitepipe client.
type taskCommand struct {
	name    string
	aliases []string
	short   string
	long    string
}

var taskCommands = []taskCommand{
	{name: "clean", short: "Remove the build directory and reset the cache"},
	{name: "markup", aliases: []string{"handlebars"}, short: "Render Handlebars pages to minified HTML",
		long: `Renders every page matched by markup.src with the configured partials,
helpers and data. Variables from the environment whose names start with
env_prefix are available as {{env.NAME}}.`},
	{name: "style", short: "Compile, prefix and minify stylesheets"},
	{name: "script", short: "Downlevel and minify scripts"},
	{name: "image", aliases: []string{"assets"}, short: "Optimize images"},
	{name: "vendor", short: "Stage dependency files into the library tree"},
	{name: "lib", short: "Stage vendor files, then copy the library tree"},
	{name: "build", short: "Clean, then run every transform in parallel",
		long: `Removes the build directory, then runs markup, script, style, image and
lib concurrently. Exits non-zero when any file failed to transform.`},
	{name: "serve", short: "Serve the build directory with live reload",
		long: `Serves the build directory and watches markup, style, script and image
sources. A change rebuilds the owning task, then reloads connected browsers;
stylesheet-only changes are swapped in place. Stop with Ctrl-C.`},
	{name: "watch", short: "Rebuild on source changes without serving"},
}

func newTaskCmd(tc taskCommand) *cobra.Command {
	c := &cobra.Command{
		Use:     tc.name,
		Aliases: tc.aliases,
		Short:   tc.short,
		Long:    tc.long,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, tc.name)
		},
	}
	if tc.name == "serve" {
		c.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides serve.addr)")
	}
	return c
}

func init() {
	for _, tc := range taskCommands {
		rootCmd.AddCommand(newTaskCmd(tc))
	}
}
