/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package cli implements the restlimitd command line interface.
package cli

import (
	"github.com/spf13/cobra"
)

const defaultEnvVarsPrefix = "restlimit"

type rootFlags struct {
	configFile    string
	envVarsPrefix string
}

// NewRootCmd creates the restlimitd root command.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "restlimitd",
		Short: "HTTP service guarded by the REST call limiter",
		Long: "restlimitd serves REST API routes guarded by a two-tier call limiter " +
			"(concurrently accepted and actively executing calls). Limits can be changed at runtime " +
			"by editing the config file or sending SIGHUP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "path to config file (YAML or JSON)")
	root.PersistentFlags().StringVar(&flags.envVarsPrefix, "env-prefix", defaultEnvVarsPrefix,
		"prefix of environment variables overriding config values")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newConfigCmd(flags))
	root.AddCommand(newVersionCmd())

	return root
}
