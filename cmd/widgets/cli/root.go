package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/faucetdb/widgets/internal/config"
)

var (
	cfgFile    string
	appVersion string // set in Execute, reported by serve, openapi and mcp
)

// Execute creates the root command tree and runs it.
func Execute(b Build) error {
	appVersion = b.Version
	return newRootCmd(b).Execute()
}

func newRootCmd(b Build) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "widgets",
		Short: "Widgets API with API-key access control",
		Long: `widgets serves the widgets catalogue over HTTP to clients holding an API key.

Keys are issued to one client at a time, can be deactivated but never deleted,
and are never reused. Use 'widgets key' to manage them from the command line or
enable the provisioning API by setting auth.jwt_secret.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+config.DefaultFile+")")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd(b))
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newWidgetCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newBenchmarkCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	config.Configure(viper.GetViper(), cfgFile)
}
