// Command creditdesk runs the CreditDesk API server and its operational tools.
package main

//	@title						CreditDesk API
//	@version					0.1.0
//	@description				Credit repair platform API: authentication, casework, postal lookups, payments and platform health.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: "Bearer {token}"

import (
	"errors"
	"fmt"
	"os"

	_ "github.com/HerbHall/creditdesk/api/swagger"
	"github.com/HerbHall/creditdesk/internal/server"
	"github.com/HerbHall/creditdesk/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "creditdesk",
		Short:         "CreditDesk - credit repair platform API and health monitor",
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to configuration file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMonitorCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}

// loadConfig is server.LoadConfig; the indirection keeps commands testable
// with an explicit file.
func loadConfig(path string) (*viper.Viper, error) {
	return server.LoadConfig(path)
}

func configFlag(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
