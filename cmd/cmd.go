// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

// Package cmd implements the attestor command line interface.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/threshnet/attestor/app/errors"
)

const envPrefix = "attestor"

// New returns a new root cobra command that handles the attestor subcommands.
func New() *cobra.Command {
	return newRootCmd(
		newRunCmd(Run),
		newVersionCmd(),
	)
}

func newRootCmd(cmds ...*cobra.Command) *cobra.Command {
	root := &cobra.Command{
		Use:   "attestor",
		Short: "Threshnet Attestor - Aggregation-aware job result attestation client",
		Long:  `Attestor consumes finished job results of a service instance and attests them on chain, routing results through BLS quorum aggregation when the service requires it.`,
	}

	root.AddCommand(cmds...)
	root.SilenceErrors = true
	root.SilenceUsage = true

	return root
}

// wrapPreRunE wraps a cobra command's PreRunE to bind environment variables to
// flags before the command runs.
func wrapPreRunE(cmd *cobra.Command) {
	preRunE := cmd.PreRunE
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(cmd); err != nil {
			return err
		}

		if preRunE != nil {
			return preRunE(cmd, args)
		}

		return nil
	}
}

// initializeConfig sets up the general viper config and binds the viper flags
// to the cobra flags so ATTESTOR_<FLAG> environment variables override defaults.
func initializeConfig(cmd *cobra.Command) error {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return bindFlags(cmd, v)
}

// bindFlags binds each cobra flag to its associated viper configuration.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var lastErr error

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}

		val := v.Get(f.Name)
		if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
			lastErr = errors.Wrap(err, "set flag from env")
		}
	})

	return lastErr
}
