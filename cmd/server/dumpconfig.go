package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var dumpConfigCmd = &cobra.Command{
	Use:   "dump-config <file>",
	Short: "Write the resolved configuration as JSON",
	Long: "Write the configuration after defaults, --config, environment and flags\n" +
		"are applied. The file can be passed back with --config.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDumpConfig(args[0])
	},
}

func init() {
	rootCmd.AddCommand(dumpConfigCmd)
}

func runDumpConfig(path string) error {
	if err := cfg.SaveToFile(path); err != nil {
		return err
	}
	log.Infof("[Main] Configuration written to %s", path)
	return nil
}
