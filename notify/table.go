package notify

import (
	"fmt"
	"html"
	"strings"
	"text/tabwriter"

	"github.com/quartzbi/beacon/query"
)

// htmlTable renders an embedded frame as an HTML table for email bodies.
func htmlTable(frame *query.Frame) string {
	if frame == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<table border="1" cellpadding="4" cellspacing="0">`)
	b.WriteString("<thead><tr>")
	for _, col := range frame.Columns {
		fmt.Fprintf(&b, "<th>%s</th>", html.EscapeString(col))
	}
	b.WriteString("</tr></thead><tbody>")
	for _, row := range frame.Rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			fmt.Fprintf(&b, "<td>%s</td>", html.EscapeString(cellString(cell)))
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
	return b.String()
}

// textTable renders an embedded frame as aligned plain text for chat posts.
func textTable(frame *query.Frame) string {
	if frame == nil {
		return ""
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(frame.Columns, "\t"))
	for _, row := range frame.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = cellString(cell)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
	return b.String()
}

func cellString(cell any) string {
	if cell == nil {
		return ""
	}
	return fmt.Sprintf("%v", cell)
}
