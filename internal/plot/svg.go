package plot

import (
	"fmt"
	"html"
	"math"
	"strings"
)

var strokes = []string{"#1f77b4", "#d62728", "#2ca02c", "#ff7f0e", "#9467bd", "#17becf", "#8c564b", "#7f7f7f"}

// SVG draws lines as a static figure. Log axes are drawn in log10 space;
// non-positive values on a log axis are skipped. Bar kinds are drawn as
// lines over the category index.
func SVG(lines []Line, o Options, width, height int) string {
	logX := o.Kind.LogX()
	logY := o.Kind.LogY()
	cats := map[string]int{}
	if o.Kind.IsBar() {
		for i, c := range categories(lines, o) {
			cats[c] = i
		}
	}

	type xy struct{ X, Y float64 }
	paths := make([][]xy, len(lines))
	first := true
	var minX, maxX, minY, maxY float64
	for i, l := range lines {
		for _, p := range l.Points {
			x, y := p.X, p.Y
			if o.Kind.IsBar() {
				x = float64(cats[p.XLabel])
			} else if logX {
				if x <= 0 {
					continue
				}
				x = math.Log10(x)
			}
			if logY {
				if y <= 0 {
					continue
				}
				y = math.Log10(y)
			}
			if first {
				minX, maxX, minY, maxY = x, x, y, y
				first = false
			}
			minX, maxX = math.Min(minX, x), math.Max(maxX, x)
			minY, maxY = math.Min(minY, y), math.Max(maxY, y)
			paths[i] = append(paths[i], xy{x, y})
		}
	}
	if first {
		return ""
	}
	if o.YMin != nil {
		ymin := *o.YMin
		if logY && ymin > 0 {
			ymin = math.Log10(ymin)
		}
		if !logY || *o.YMin > 0 {
			minY = math.Min(minY, ymin)
		}
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	const margin = 40
	plotW := float64(width - 2*margin)
	plotH := float64(height - 2*margin)
	px := func(x float64) float64 { return margin + (x-minX)/rangeX*plotW }
	py := func(y float64) float64 { return margin + plotH - (y-minY)/rangeY*plotH }

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#ffffff"/>
<text x="%d" y="24" font-family="sans-serif" font-size="16" text-anchor="middle">%s</text>
<rect x="%d" y="%d" width="%.0f" height="%.0f" fill="none" stroke="#333333"/>
`, width, height, width, height, width/2, html.EscapeString(o.Title), margin, margin, plotW, plotH))
	if o.XLabel != "" {
		sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" font-family="sans-serif" font-size="12" text-anchor="middle">%s</text>
`, width/2, height-8, html.EscapeString(o.XLabel)))
	}
	if o.YLabel != "" {
		sb.WriteString(fmt.Sprintf(`<text x="12" y="%d" font-family="sans-serif" font-size="12" transform="rotate(-90 12 %d)" text-anchor="middle">%s</text>
`, height/2, height/2, html.EscapeString(o.YLabel)))
	}

	for i, pts := range paths {
		if len(pts) == 0 {
			continue
		}
		color := strokes[i%len(strokes)]
		sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="M`, color))
		for j, p := range pts {
			if j == 0 {
				sb.WriteString(fmt.Sprintf("%.1f,%.1f", px(p.X), py(p.Y)))
			} else {
				sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", px(p.X), py(p.Y)))
			}
		}
		sb.WriteString("\"/>\n")
		sb.WriteString(fmt.Sprintf("<g fill=\"%s\">\n", color))
		for _, p := range pts {
			sb.WriteString(fmt.Sprintf("<circle cx=\"%.1f\" cy=\"%.1f\" r=\"3\"/>\n", px(p.X), py(p.Y)))
		}
		sb.WriteString("</g>\n")
		sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" font-family="sans-serif" font-size="11" fill="%s">%s</text>
`, margin+8, margin+14*(i+1), color, html.EscapeString(lines[i].Label)))
	}

	sb.WriteString("</svg>")
	return sb.String()
}
