// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package main is the entry point for PostForge. The serve command runs the
// studio server; the other commands are operator tools for the recurring
// job and credentials.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// newRootCmd returns the root command with every subcommand attached.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "postforge",
		Short:         "PostForge: agent-driven LinkedIn content studio",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newScheduleCmd())
	root.AddCommand(newHashPasswordCmd())
	return root
}
