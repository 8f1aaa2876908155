// Package visualize renders the pipeline's finished tables as images. The
// pipeline only learns whether rendering succeeded.
package visualize

import (
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/cytofkit/cytofkit/errors"
)

// Visualizer draws images from finished results
type Visualizer interface {
	// Heatmap draws values with one row per row label and one column per column label
	Heatmap(path, title string, values mat.Matrix, rowLabels, colLabels []string) error
	// Scatter draws the first two columns of coords, coloured by group
	Scatter(path, title string, coords mat.Matrix, groups []string, axes [2]string) error
	// StackedBar draws one bar per sample stacked by category
	StackedBar(path, title string, percent mat.Matrix, samples, categories []string) error
}

// Renderer is a Visualizer backed by gonum/plot. The image format follows
// the file extension.
type Renderer struct {
	width, height vg.Length
}

// NewRenderer creates a renderer drawing images of the given size in inches
func NewRenderer(widthIn, heightIn float64) *Renderer {
	if widthIn <= 0 {
		widthIn = 8
	}
	if heightIn <= 0 {
		heightIn = 6
	}
	return &Renderer{width: vg.Length(widthIn) * vg.Inch, height: vg.Length(heightIn) * vg.Inch}
}

// heatGrid adapts a matrix to plotter.GridXYZ: columns along X, rows along Y
type heatGrid struct{ m mat.Matrix }

func (g heatGrid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}
func (g heatGrid) Z(c, r int) float64 { return g.m.At(r, c) }
func (g heatGrid) X(c int) float64    { return float64(c) }
func (g heatGrid) Y(r int) float64    { return float64(r) }

func (r *Renderer) Heatmap(path, title string, values mat.Matrix, rowLabels, colLabels []string) error {
	rows, cols := values.Dims()
	if rows == 0 || cols == 0 {
		return errors.DataStateErrorf("heatmap %s has no cells", path)
	}
	cm := moreland.SmoothBlueRed()
	cm.SetMin(0)
	cm.SetMax(1)

	p := plot.New()
	p.Title.Text = title
	p.Add(plotter.NewHeatMap(heatGrid{values}, cm.Palette(255)))
	p.X.Tick.Marker = plot.ConstantTicks(ticks(colLabels))
	p.Y.Tick.Marker = plot.ConstantTicks(ticks(rowLabels))
	return save(p, r.width, r.height, path)
}

func (r *Renderer) Scatter(path, title string, coords mat.Matrix, groups []string, axes [2]string) error {
	n, c := coords.Dims()
	if c < 2 {
		return errors.DataStateErrorf("scatter %s needs two coordinate columns, got %d", path, c)
	}
	if groups != nil && len(groups) != n {
		return errors.DataStateErrorf("scatter %s has %d groups for %d points", path, len(groups), n)
	}

	byGroup := make(map[string]plotter.XYs)
	for i := 0; i < n; i++ {
		g := ""
		if groups != nil {
			g = groups[i]
		}
		byGroup[g] = append(byGroup[g], plotter.XY{X: coords.At(i, 0), Y: coords.At(i, 1)})
	}
	names := make([]string, 0, len(byGroup))
	for g := range byGroup {
		names = append(names, g)
	}
	sort.Strings(names)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = axes[0]
	p.Y.Label.Text = axes[1]
	p.Legend.Top = true
	for i, g := range names {
		s, err := plotter.NewScatter(byGroup[g])
		if err != nil {
			return errors.Wrapf(err, "scatter group %q", g)
		}
		s.GlyphStyle.Color = plotutil.Color(i)
		s.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(s)
		if groups != nil {
			p.Legend.Add(g, s)
		}
	}
	return save(p, r.width, r.height, path)
}

func (r *Renderer) StackedBar(path, title string, percent mat.Matrix, samples, categories []string) error {
	rows, cols := percent.Dims()
	if rows != len(samples) || cols != len(categories) {
		return errors.DataStateErrorf("stacked bar %s is %dx%d but has %d samples and %d categories",
			path, rows, cols, len(samples), len(categories))
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Percentage (%)"
	p.Y.Min, p.Y.Max = 0, 100
	p.Legend.Top = true

	width := vg.Points(20)
	var below *plotter.BarChart
	for j, cat := range categories {
		vals := make(plotter.Values, rows)
		for i := range vals {
			vals[i] = percent.At(i, j)
		}
		bar, err := plotter.NewBarChart(vals, width)
		if err != nil {
			return errors.Wrapf(err, "bar for category %q", cat)
		}
		bar.Color = plotutil.Color(j)
		bar.LineStyle.Width = 0
		if below != nil {
			bar.StackOn(below)
		}
		p.Add(bar)
		p.Legend.Add(cat, bar)
		below = bar
	}
	p.NominalX(samples...)
	return save(p, r.width, r.height, path)
}

func ticks(labels []string) []plot.Tick {
	out := make([]plot.Tick, len(labels))
	for i, l := range labels {
		out[i] = plot.Tick{Value: float64(i), Label: l}
	}
	return out
}

func save(p *plot.Plot, w, h vg.Length, path string) error {
	if err := p.Save(w, h, path); err != nil {
		return errors.WrapIO(err, "failed to render %s", path)
	}
	return nil
}

// Nop draws nothing. Used when plots are disabled.
type Nop struct{}

func (Nop) Heatmap(string, string, mat.Matrix, []string, []string) error    { return nil }
func (Nop) Scatter(string, string, mat.Matrix, []string, [2]string) error   { return nil }
func (Nop) StackedBar(string, string, mat.Matrix, []string, []string) error { return nil }
