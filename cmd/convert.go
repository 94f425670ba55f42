package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/defenseunicorns/uds-preflight-scan/internal/log"
	"github.com/defenseunicorns/uds-preflight-scan/internal/report"
)

// newConvertCmd creates the command that turns a result CSV into a styled spreadsheet.
func newConvertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <input.csv> <output.xlsx>",
		Short: "Convert a scan result CSV into a sorted, styled spreadsheet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.NewLogger(cmd.Context())
			n, err := report.ConvertCSVToXLSX(args[0], args[1])
			if err != nil {
				return fmt.Errorf("error converting %s: %w", args[0], err)
			}
			logger.Debug("Converted results", zap.Int("rows", n))
			fmt.Fprintf(cmd.OutOrStdout(), "Converted %d rows from %s to %s\n", n, args[0], args[1])
			return nil
		},
	}
}
