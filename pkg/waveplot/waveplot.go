// Package waveplot renders analysis result traces to image files.
package waveplot

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/pkg/errors"
)

// Render plots the named traces against the xKey column of a results map
// and writes the image to path. The format follows the file extension
// (.png, .svg, .pdf).
func Render(results map[string][]float64, xKey string, traces []string, title, path string) error {
	xs, ok := results[xKey]
	if !ok {
		return errors.Errorf("no %q column in results", xKey)
	}
	if len(traces) == 0 {
		return errors.New("no traces requested")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xKey
	p.Add(plotter.NewGrid())

	for i, name := range traces {
		ys, ok := results[name]
		if !ok {
			return errors.Errorf("no %q trace in results", name)
		}
		if len(ys) != len(xs) {
			return errors.Errorf("trace %q has %d points, %s has %d", name, len(ys), xKey, len(xs))
		}

		pts := make(plotter.XYs, len(xs))
		for j := range xs {
			pts[j].X = xs[j]
			pts[j].Y = ys[j]
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return errors.Wrapf(err, "building trace %q", name)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(name, line)
	}

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "saving plot to %s", path)
	}
	return nil
}
