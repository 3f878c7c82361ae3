// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is the attestor release version.
const version = "v0.2.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the attestor version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
