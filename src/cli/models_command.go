package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/veedubyou/stemsplit/src/worker/separation"
)

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the built-in separation models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := [][]string{}
			for _, name := range separation.BuiltinNames() {
				model, err := separation.LoadModel(name)
				if err != nil {
					return err
				}

				defaultMarker := ""
				if name == separation.DefaultModelName {
					defaultMarker = "*"
				}

				rows = append(rows, []string{
					model.Name + defaultMarker,
					model.Version,
					strconv.Itoa(model.SampleRate),
					strconv.Itoa(model.Channels),
					strings.Join(model.StemNames(), ", "),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Model", "Version", "Rate", "Channels", "Stems"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}
