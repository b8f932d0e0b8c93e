package commands

import (
	"github.com/spf13/cobra"

	"github.com/dyluth/paramscan/internal/printer"
	"github.com/dyluth/paramscan/internal/scaffold"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter scan.yml and worker Dockerfile",
	Long: `Write a starter scan.yml and a Dockerfile for worker images into the
current directory.

Existing files are left alone unless --force is given.`,
	Args: exactArgs(0),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := scaffold.Initialize(".", forceInit); err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}
	printer.Success("Initialized paramscan project\n")
	scaffold.PrintSuccess(printer.Std.Out)
	return nil
}
