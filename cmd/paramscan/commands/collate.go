package commands

import (
	"github.com/spf13/cobra"

	"github.com/dyluth/paramscan/internal/printer"
	"github.com/dyluth/paramscan/internal/store"
	"github.com/dyluth/paramscan/pkg/scan"
)

var (
	collateFormat   string
	collateExpected int
)

var collateCmd = &cobra.Command{
	Use:   "collate OUTNAME",
	Short: "Collate leftover partial files into OUTNAME",
	Long: `Stack every partial file of OUTNAME into one consolidated file and remove
the partial files.

'paramscan run' collates automatically. Use this command to recover a scan
whose collator rank failed after every chunk was written.

Examples:
  paramscan collate runs/scan.dat
  paramscan collate runs/scan.dat --format zstd --expected 16`,
	Args: exactArgs(1),
	RunE: runCollate,
}

func init() {
	collateCmd.Flags().StringVar(&collateFormat, "format", store.FormatBinary, "Storage format of the partial files: binary or zstd")
	collateCmd.Flags().IntVar(&collateExpected, "expected", 0, "Warn when the number of partial files differs")
	rootCmd.AddCommand(collateCmd)
}

func runCollate(cmd *cobra.Command, args []string) error {
	output, err := parseOutputName(args[0])
	if err != nil {
		return err
	}

	st, err := store.Open(collateFormat)
	if err != nil {
		return printer.Error("invalid storage format", err.Error(), nil)
	}

	collator := scan.NewCollator(st)
	collator.Expected = collateExpected

	res, err := collator.Collate(cmd.Context(), output)
	if err != nil {
		return printer.ErrorWithContext(
			"collation failed",
			err.Error(),
			map[string]string{"Output": output, "Format": collateFormat},
			nil,
		)
	}

	if res.Rows == 0 {
		printer.Warning("No partial files found for %s (looked for %s)\n", output, scan.GlobPattern(output, st.Suffix()))
		return nil
	}
	if collateExpected > 0 && len(res.Files) != collateExpected {
		printer.Warning("Expected %d partial files, found %d\n", collateExpected, len(res.Files))
	}
	printer.Success("Wrote %d points (%d columns) from %d partial files to %s\n", res.Rows, res.Cols, len(res.Files), res.Output)
	for _, leftover := range res.Leftover {
		printer.Warning("%v\n", leftover)
	}
	return nil
}
