package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/hookgate/hookgate/internal/core"
)

// TableFormatter renders integrations as an ASCII table.
type TableFormatter struct{}

func (f *TableFormatter) FormatIntegrations(integrations []core.Integration) (string, error) {
	t := integrationTable(integrations)
	t.SetStyle(table.StyleRounded)
	return t.Render(), nil
}

func integrationTable(integrations []core.Integration) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"ID", "Type", "Service", "Enabled", "Signed", "Path"})

	enabled := 0
	for _, v := range Views(integrations) {
		if v.Enabled {
			enabled++
		}
		t.AppendRow(table.Row{v.ID, v.Type, v.ServiceID, yesNo(v.Enabled), yesNo(v.Signed), v.Path})
	}

	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d/%d enabled", enabled, len(integrations)), "", ""})
	return t
}
