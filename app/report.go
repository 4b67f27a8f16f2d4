package app

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderTable writes the accepted rows and their files as a table.
func RenderTable(w io.Writer, o *Outcome) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Row", "Data", "File", "Path"})

	if o.Summary != nil {
		for _, item := range o.Summary.Items {
			data := strings.Join(item.RowData, " | ")
			if len(item.Files) == 0 {
				t.AppendRow(table.Row{item.Row, data, "", ""})
				continue
			}
			for _, f := range item.Files {
				t.AppendRow(table.Row{item.Row, data, f.Name, f.Path})
			}
		}
	}

	t.AppendFooter(table.Row{"", "", "rows", o.Rows})
	t.AppendFooter(table.Row{"", "", "files", o.Files})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
