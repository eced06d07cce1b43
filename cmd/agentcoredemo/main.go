// Package main provides a small CLI that exercises the agentcore library
// end to end: it registers a local tool, runs one ReAct episode against a
// configured LLM provider, and prints the event stream and final answer.
//
// Usage:
//
//	agentcoredemo run "what is 2+3?"
//	agentcoredemo run --config agentcore.yaml --system "You can call add." "what is 2+3?"
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agentcoredemo",
		Short:         "Run a single agentcore ReAct episode from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(buildRunCmd())
	cmd.AddCommand(buildToolsCmd())
	return cmd
}
