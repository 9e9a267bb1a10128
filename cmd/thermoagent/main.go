package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds daemon connection flags for client commands.
type APIFlags struct {
	URL     string
	Timeout string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "thermoagent",
		Short: "Temperature telemetry agent with A/B firmware update support",
		Long: `thermoagent runs a device controller that samples a temperature probe,
publishes telemetry over MQTT, and manages dual-slot firmware updates with
automatic rollback when a new image fails to prove itself healthy.

Examples:
  thermoagent serve --config=/etc/thermoagent/agent.toml
  thermoagent status
  thermoagent update --location=https://example.com/fw.bin --size=1048576 --digest=<sha256> --version=1.3.0
  thermoagent abort`,
	}
	root.PersistentFlags().StringVarP(&globalFlags.ConfigPath, "config", "c", "", "path to TOML config file")

	root.AddCommand(
		createServeCommand(globalFlags),
		createStatusCommand(),
		createUpdateCommand(),
		createAbortCommand(),
		createVersionCommand(),
	)
	return root
}
