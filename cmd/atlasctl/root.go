package main

import (
	"github.com/spf13/cobra"
)

// newRootCommand builds the command tree. finish must run after Execute,
// successful or not: it waits for deferred previews and prints the
// diagnostic log when --log is set.
func newRootCommand() (root *cobra.Command, finish func()) {
	var apiFlag string
	var logFlag bool

	ctx := newCommandContext(&apiFlag, &logFlag)

	rootCmd := &cobra.Command{
		Use:           "atlasctl",
		Short:         "Manage media attached to Atlas reference entities",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&apiFlag, "api", "", "Media API origin (default from ENV/BASE_URL/ATLAS_API_URL)")
	rootCmd.PersistentFlags().BoolVar(&logFlag, "log", false, "Print the diagnostic log on exit")

	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newUploadCommand(ctx))
	rootCmd.AddCommand(newDeleteCommand(ctx))
	rootCmd.AddCommand(newReorderCommand(ctx))
	rootCmd.AddCommand(newDescribeCommand(ctx))
	rootCmd.AddCommand(newLinkCommand(ctx))
	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newRefreshLinksCommand(ctx))
	rootCmd.AddCommand(newRefreshPreviewsCommand(ctx))
	rootCmd.AddCommand(newTypesCommand())

	return rootCmd, func() { ctx.finish(rootCmd.OutOrStdout()) }
}
