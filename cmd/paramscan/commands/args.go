package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyluth/paramscan/internal/printer"
)

// OutputExt is the extension every consolidated output name must carry.
const OutputExt = ".dat"

func init() {
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return printer.Error("invalid flag", err.Error(), []string{
			fmt.Sprintf("Run '%s --help' for usage", cmd.CommandPath()),
		})
	})
}

// exactArgs is cobra.ExactArgs with the error rendered by the printer.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return printer.Error(
				"wrong number of arguments",
				fmt.Sprintf("%s expects %d argument(s), got %d", cmd.CommandPath(), n, len(args)),
				[]string{fmt.Sprintf("Usage: %s", cmd.UseLine())},
			)
		}
		return nil
	}
}

// parseOutputName checks that name ends in OutputExt.
func parseOutputName(name string) (string, error) {
	if !strings.HasSuffix(name, OutputExt) || len(name) == len(OutputExt) {
		return "", printer.ErrorWithContext(
			"invalid output name",
			fmt.Sprintf("OUTNAME must be a file name ending in '%s'.", OutputExt),
			map[string]string{"OUTNAME": name},
			[]string{fmt.Sprintf("Example: runs/scan%s", OutputExt)},
		)
	}
	return name, nil
}

// parsePositive parses a strictly positive integer argument.
func parsePositive(label, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, printer.ErrorWithContext(
			fmt.Sprintf("invalid %s", label),
			fmt.Sprintf("%s must be a positive integer.", label),
			map[string]string{label: value},
			nil,
		)
	}
	return n, nil
}
