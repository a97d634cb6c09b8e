// Package commands wires ward's cobra CLI: a serve command that runs the
// proxy, and a ban command family (add/remove/list) that operates directly
// on an internal/ban.Store, mirroring the teacher's cmd/gate command
// registration style and the original ban/banlist/unban CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// Root builds the top-level ward command, with serve and ban registered as
// subcommands.
func Root() *cobra.Command {
	root := &cobra.Command{
		Use:   "ward",
		Short: "ward is a multi-tenant Minecraft reverse proxy",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "ward.yaml", "path to the proxy configuration file")
	cobra.OnInitialize(func() {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
	})

	root.AddCommand(serveCmd())
	root.AddCommand(banCmd())
	return root
}

// Execute runs the root command, printing any error to stderr and setting
// the process exit code.
func Execute() {
	if err := Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
