package plot

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/guptarohit/asciigraph"
)

// markers translates region marker styles to echarts symbols.
var markers = map[string]string{
	"o": "circle",
	"*": "pin",
	"+": "rect",
	"x": "roundRect",
	">": "arrow",
	"<": "triangle",
	"^": "triangle",
	"v": "diamond",
	"s": "rect",
	"d": "diamond",
}

func symbolFor(styles map[string]string, region string) string {
	if s, ok := markers[styles[region]]; ok {
		return s
	}
	return "circle"
}

func axisType(log bool) string {
	if log {
		return "log"
	}
	return "value"
}

func globalOptions(o Options) []charts.GlobalOpts {
	y := opts.YAxis{Name: o.YLabel, Type: axisType(o.Kind.LogY())}
	if o.YMin != nil {
		y.Min = *o.YMin
	}
	x := opts.XAxis{Name: o.XLabel}
	if !o.Kind.IsBar() {
		x.Type = axisType(o.Kind.LogX())
	}
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{PageTitle: o.Title, Width: "960px", Height: "540px"}),
		charts.WithTitleOpts(opts.Title{Title: o.Title}),
		charts.WithXAxisOpts(x),
		charts.WithYAxisOpts(y),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	}
}

// categories is the sorted union of x labels, used as bar categories.
func categories(lines []Line, o Options) []string {
	if len(o.XTickLabels) > 0 {
		return o.XTickLabels
	}
	xs := map[string]float64{}
	for _, l := range lines {
		for _, p := range l.Points {
			xs[p.XLabel] = p.X
		}
	}
	out := make([]string, 0, len(xs))
	for k := range xs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if xs[out[i]] != xs[out[j]] {
			return xs[out[i]] < xs[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// WriteHTML renders lines as an interactive echarts page.
func WriteHTML(w io.Writer, lines []Line, o Options) error {
	if len(lines) == 0 {
		return ErrNoPoints
	}
	if o.Kind.IsBar() {
		bar := charts.NewBar()
		bar.SetGlobalOptions(globalOptions(o)...)
		cats := categories(lines, o)
		bar.SetXAxis(cats)
		for _, l := range lines {
			byLabel := make(map[string]float64, len(l.Points))
			for _, p := range l.Points {
				byLabel[p.XLabel] = p.Y
			}
			data := make([]opts.BarData, len(cats))
			for i, c := range cats {
				if y, ok := byLabel[c]; ok {
					data[i] = opts.BarData{Value: y}
				} else {
					data[i] = opts.BarData{Value: "-"}
				}
			}
			bar.AddSeries(l.Label, data)
		}
		return render(w, bar)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(globalOptions(o)...)
	for _, l := range lines {
		sym := symbolFor(o.Styles, l.Region)
		data := make([]opts.LineData, len(l.Points))
		for i, p := range l.Points {
			data[i] = opts.LineData{Name: p.XLabel, Value: []interface{}{p.X, p.Y}, Symbol: sym}
		}
		line.AddSeries(l.Label, data)
	}
	return render(w, line)
}

func render(w io.Writer, chart components.Charter) error {
	page := components.NewPage()
	page.AddCharts(chart)
	return page.Render(w)
}

// SaveFigure writes <dir>/<figname>.html and <dir>/<figname>.svg.
func SaveFigure(dir string, lines []Line, o Options) ([]string, error) {
	if o.FigName == "" {
		return nil, fmt.Errorf("plot: figure name required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	htmlPath := filepath.Join(dir, o.FigName+".html")
	f, err := os.Create(htmlPath)
	if err != nil {
		return nil, err
	}
	if err := WriteHTML(f, lines, o); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	svgPath := filepath.Join(dir, o.FigName+".svg")
	if err := os.WriteFile(svgPath, []byte(SVG(lines, o, 800, 480)), 0644); err != nil {
		return nil, err
	}
	return []string{htmlPath, svgPath}, nil
}

// Preview renders lines as a terminal chart. Log kinds plot log10(y).
// Points are drawn in x order, one column per point.
func Preview(lines []Line, o Options, width, height int) string {
	var data [][]float64
	var legend []string
	for _, l := range lines {
		ys := make([]float64, 0, len(l.Points))
		for _, p := range l.Points {
			y := p.Y
			if o.Kind.LogY() {
				if y <= 0 {
					continue
				}
				y = math.Log10(y)
			}
			ys = append(ys, y)
		}
		if len(ys) == 0 {
			continue
		}
		if len(ys) == 1 {
			ys = append(ys, ys[0])
		}
		data = append(data, ys)
		legend = append(legend, l.Label)
	}
	if len(data) == 0 {
		return ""
	}
	caption := o.Title
	if o.Kind.LogY() {
		caption += " (log10)"
	}
	colors := make([]asciigraph.AnsiColor, len(data))
	for i := range colors {
		colors[i] = palette[i%len(palette)]
	}
	graph := asciigraph.PlotMany(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(colors...),
	)
	var sb strings.Builder
	sb.WriteString(graph)
	sb.WriteString("\n")
	for i, name := range legend {
		swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(strconv.Itoa(int(colors[i]))))
		sb.WriteString(swatch.Render("■") + " " + name + "\n")
	}
	return sb.String()
}

var palette = []asciigraph.AnsiColor{
	asciigraph.Blue, asciigraph.Red, asciigraph.Green, asciigraph.Yellow,
	asciigraph.Magenta, asciigraph.Cyan, asciigraph.Orange, asciigraph.Gray,
}
