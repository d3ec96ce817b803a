// Package main is the postlsh CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "postlsh",
	Short: "Similar-post lookup over an in-memory LSH index",
	Long: `postlsh keeps an in-memory sign-random-projection LSH index of post
embeddings stored in Redis and answers "posts similar to these posts" queries
over HTTP.

The server warms the index from every embedding:post:* key at startup, then
indexes new embeddings as their post-ids are published on new_embedding.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "postlsh version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
