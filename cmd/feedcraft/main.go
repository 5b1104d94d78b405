package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "feedcraft",
		Short:        "Activity fan-out and timeline engine",
		SilenceUsage: true,
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&configPath, "config", "feedcraft.yaml", "Project config file (empty reads the environment only)")
	root.AddCommand(initCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(recordCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(queryCmd())
	root.AddCommand(purgeCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(workerCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
