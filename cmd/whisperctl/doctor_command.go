package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"whisper-desktop/internal/bootstrap"
	"whisper-desktop/internal/domain"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check tools, models and working directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(app *bootstrap.App) error {
				report := app.RefreshDiagnostics()

				rows := make([][]string, 0, len(report.Items))
				for _, item := range report.Items {
					status := string(item.Status)
					if item.Optional && item.Status == domain.DiagnosticStatusFail {
						status = "warn"
					}
					detail := item.Message
					if item.Status == domain.DiagnosticStatusFail && item.Hint != "" {
						detail += " (" + item.Hint + ")"
					}
					rows = append(rows, []string{item.Name, status, detail})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Status", "Details"}, rows, nil))

				if failed, ok := report.FirstFailure(); ok {
					return errors.New("diagnostics failed: " + failed.Name)
				}
				return nil
			})
		},
	}
}
