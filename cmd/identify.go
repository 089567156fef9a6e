package cmd

import (
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"resale-pipeline/identify"
)

func newIdentifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "identify <title>",
		Short: "Extract identifiers from a listing title and show the search query built from them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.Join(args, " ")
			ids, q := identify.QueryForTitle(title)

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.SetTitle(title)
			t.AppendRows([]table.Row{
				{"brand", ids.Brand},
				{"family", ids.Family},
				{"model", ids.ModelNumber},
				{"movement", ids.Movement},
				{"size", ids.Size},
				{"material", ids.Material},
				{"demographic", ids.Demographic},
			})
			t.AppendSeparator()
			t.AppendRow(table.Row{"query", q.Text})
			if q.Fallback {
				t.AppendRow(table.Row{"", "(title tokens; too few identifiers)"})
			}
			t.Render()
			return nil
		},
	}
}
