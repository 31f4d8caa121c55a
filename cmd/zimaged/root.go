package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wenc23/zimagetool/internal/client"
)

type rootOptions struct {
	configPath string
	server     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "zimaged",
		Short:         "Local text-to-image daemon and client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultServer := os.Getenv("ZIMAGED_SERVER")
	if defaultServer == "" {
		defaultServer = client.DefaultAddr
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (.yaml, .json or .toml)")
	root.PersistentFlags().StringVar(&opts.server, "server", defaultServer, "daemon address for client commands")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error, off)")

	root.AddCommand(
		newServeCmd(opts),
		newStatusCmd(opts),
		newLoadCmd(opts),
		newUnloadCmd(opts),
		newGenerateCmd(opts),
		newProgressCmd(opts),
		newCancelCmd(opts),
		newGalleryCmd(opts),
		newRewriteCmd(opts),
		newVersionCmd(),
	)
	return root
}

func (o *rootOptions) client() (*client.Client, error) {
	return client.New(o.server)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "zimaged", version)
		},
	}
}
