package histogram

import (
	"fmt"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/jedib0t/go-pretty/v6/table"
)

const asciiBarWidth = 40

// FormatTable renders h (with or without error bars) as an aligned
// go-pretty table: bin range, count, a unicode bar, and the error bar
// when delta is non-empty.
func FormatTable(h *Histogram, delta []float64) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateHeader = false

	header := table.Row{"bin", "count", "bar"}
	if len(delta) > 0 {
		header = append(header, "±")
	}

	tbl.AppendHeader(header)

	maxCount := 0.0

	for _, v := range h.Bins {
		if v > maxCount {
			maxCount = v
		}
	}

	for k, v := range h.Bins {
		row := table.Row{
			fmt.Sprintf("[%.3g, %.3g)", h.Params.BinLowerValue(k), h.Params.BinUpperValue(k)),
			fmt.Sprintf("%.6g", v),
			bar(v, maxCount),
		}

		if len(delta) > 0 {
			row = append(row, fmt.Sprintf("%.3g", delta[k]))
		}

		tbl.AppendRow(row)
	}

	footer := table.Row{"off-chart", fmt.Sprintf("%.6g", h.OffChart), ""}
	if len(delta) > 0 {
		footer = append(footer, "")
	}

	tbl.AppendFooter(footer)

	return tbl.Render()
}

func bar(v, maxCount float64) string {
	if maxCount <= 0 {
		return ""
	}

	filled := int(v / maxCount * asciiBarWidth)

	return strings.Repeat("█", filled) + strings.Repeat("░", asciiBarWidth-filled)
}

// FormatHistogramHTML renders h's bin values as a go-echarts bar chart
// page, the HTML counterpart of FormatTable for the demo CLI's
// --format plot flag. delta is accepted but not drawn: the chart shows
// no error bars.
func FormatHistogramHTML(h *Histogram, delta []float64, title string) *components.Page {
	labels := make([]string, len(h.Bins))
	items := make([]opts.BarData, len(h.Bins))

	for k, v := range h.Bins {
		labels[k] = fmt.Sprintf("%.3g", h.Params.BinLowerValue(k))
		items[k] = opts.BarData{Value: v}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "density"}),
	)

	bar.SetXAxis(labels).AddSeries("density", items)

	page := components.NewPage()
	page.AddCharts(bar)

	return page
}
