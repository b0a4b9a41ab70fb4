package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/feelflow"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of feelflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "feelflow version %s\n", feelflow.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
