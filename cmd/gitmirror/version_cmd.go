package main

import (
	"github.com/spf13/cobra"

	"github.com/openmined/gitmirror/internal/version"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the full version string",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.DetailedWithApp())
	},
}
