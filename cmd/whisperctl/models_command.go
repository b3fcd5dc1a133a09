package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"whisper-desktop/internal/bootstrap"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List whisper.cpp models",
		Long: "List the ggml model catalog with download and selection state.\n" +
			"Filters: all, recommended, downloaded, " + strings.Join(bootstrap.ModelFamilies, ", ") + ".",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(app *bootstrap.App) error {
				models, err := app.GetWhisperModels(filter)
				if err != nil {
					return err
				}
				if len(models) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No models match")
					return nil
				}

				rows := make([][]string, 0, len(models))
				for _, m := range models {
					name := m.Name
					if m.Selected {
						name = "* " + name
					}
					rows = append(rows, []string{m.ID, name, m.SizeLabel, yesNo(m.Downloaded)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"File", "Name", "Size", "Downloaded"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&filter, "filter", "f", bootstrap.FilterAll, "Catalog filter")
	return cmd
}
