// Package viz renders diagnostic PNG charts for optimizer runs and
// clustering results. The charts are tuning aids for operators and
// developers, not a reporting surface.
package viz

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/foundryline/plantsafe/internal/cluster"
	"github.com/foundryline/plantsafe/internal/monitoring"
	"github.com/foundryline/plantsafe/internal/telemetry"
)

var logf = monitoring.Prefixed("viz")

// FormatTimestamp renders t for use in plot directory names.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakeOutputDir builds a timestamped directory path for one plotting run.
// With a source file the layout is <base>/<file stem>/<timestamp>; without
// one it is <base>/run_<timestamp>.
func MakeOutputDir(baseDir, sourceFile string) string {
	ts := FormatTimestamp(time.Now())
	if sourceFile == "" {
		return filepath.Join(baseDir, "run_"+ts)
	}
	name := strings.TrimSuffix(filepath.Base(sourceFile), filepath.Ext(sourceFile))
	return filepath.Join(baseDir, name, ts)
}

// OptimizerTrace plots the best safety score after each hill climbing
// iteration. The input is Result.Trace from a run with RecordTrace set, so
// point zero is the initial score.
func OptimizerTrace(trace []float64, outPath string) error {
	if len(trace) < 2 {
		return fmt.Errorf("optimizer trace needs at least 2 points, got %d", len(trace))
	}

	p := plot.New()
	p.Title.Text = "Hill Climbing Score Trace"
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Safety Score"

	pts := make(plotter.XYs, len(trace))
	for i, score := range trace {
		pts[i] = plotter.XY{X: float64(i), Y: score}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("create trace line: %w", err)
	}
	line.Color = palette(1)[0]
	line.Width = vg.Points(1)
	p.Add(line)

	return save(p, 10*vg.Inch, 6*vg.Inch, outPath)
}

// ElbowCurve plots inertia against candidate cluster counts and marks the
// chosen k. The curve is Result.ElbowCurve from an auto-k clustering run; a
// chosen k absent from the curve is drawn without a marker.
func ElbowCurve(curve []cluster.KInertia, chosenK int, outPath string) error {
	if len(curve) == 0 {
		return fmt.Errorf("elbow curve is empty")
	}

	p := plot.New()
	p.Title.Text = "Elbow Curve"
	p.X.Label.Text = "Clusters (k)"
	p.Y.Label.Text = "Inertia"

	pts := make(plotter.XYs, len(curve))
	var chosen *plotter.XY
	for i, c := range curve {
		pts[i] = plotter.XY{X: float64(c.K), Y: c.Inertia}
		if c.K == chosenK {
			xy := pts[i]
			chosen = &xy
		}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("create elbow line: %w", err)
	}
	line.Color = palette(1)[0]
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("inertia", line)

	if chosen != nil {
		marker, err := plotter.NewScatter(plotter.XYs{*chosen})
		if err != nil {
			return fmt.Errorf("create elbow marker: %w", err)
		}
		marker.GlyphStyle.Shape = draw.CircleGlyph{}
		marker.GlyphStyle.Radius = vg.Points(4)
		marker.GlyphStyle.Color = color.RGBA{A: 255}
		p.Add(marker)
		p.Legend.Add(fmt.Sprintf("chosen k = %d", chosenK), marker)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return save(p, 8*vg.Inch, 6*vg.Inch, outPath)
}

// ClusterScatter plots readings on two raw-unit feature axes, colored by
// cluster, with flagged anomalies ringed. The readings must be the batch the
// result was built from so anomaly indexes line up.
func ClusterScatter(res *cluster.Result, readings []telemetry.SensorReading, xFeature, yFeature, outPath string) error {
	if res == nil || len(res.Groups) == 0 {
		return fmt.Errorf("cluster scatter needs a non-empty clustering result")
	}
	if len(readings) == 0 {
		return fmt.Errorf("cluster scatter needs readings")
	}

	groupPos := make(map[int]int, len(res.Groups))
	for i, g := range res.Groups {
		groupPos[g.ID] = i
	}
	anomalous := make(map[int]bool, len(res.Anomalies))
	for _, a := range res.Anomalies {
		anomalous[a.SensorIndex] = true
	}

	byGroup := make([]plotter.XYs, len(res.Groups))
	var rings plotter.XYs
	for i, r := range readings {
		vec, err := r.Vector([]string{xFeature, yFeature})
		if err != nil {
			return fmt.Errorf("reading %d: %w", i, err)
		}
		asg, err := res.Assign(r)
		if err != nil {
			return fmt.Errorf("reading %d: %w", i, err)
		}
		pos, ok := groupPos[asg.ClusterID]
		if !ok {
			return fmt.Errorf("reading %d: assigned to unknown cluster %d", i, asg.ClusterID)
		}
		xy := plotter.XY{X: vec[0], Y: vec[1]}
		byGroup[pos] = append(byGroup[pos], xy)
		if anomalous[i] {
			rings = append(rings, xy)
		}
	}

	p := plot.New()
	p.Title.Text = "Sensor Clusters"
	p.X.Label.Text = xFeature
	p.Y.Label.Text = yFeature

	colors := palette(len(res.Groups))
	for gi, pts := range byGroup {
		if len(pts) == 0 {
			continue
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("create cluster %d scatter: %w", res.Groups[gi].ID, err)
		}
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(3)
		s.GlyphStyle.Color = colors[gi]
		p.Add(s)
		p.Legend.Add(fmt.Sprintf("cluster %d", res.Groups[gi].ID), s)
	}
	if len(rings) > 0 {
		ringed, err := plotter.NewScatter(rings)
		if err != nil {
			return fmt.Errorf("create anomaly rings: %w", err)
		}
		ringed.GlyphStyle.Shape = draw.RingGlyph{}
		ringed.GlyphStyle.Radius = vg.Points(6)
		ringed.GlyphStyle.Color = color.RGBA{A: 255}
		p.Add(ringed)
		p.Legend.Add("anomaly", ringed)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return save(p, 8*vg.Inch, 8*vg.Inch, outPath)
}

// save creates the parent directory and writes the plot. The image format
// follows the file extension.
func save(p *plot.Plot, w, h vg.Length, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("create plot directory: %w", err)
	}
	if err := p.Save(w, h, outPath); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	logf("wrote %s", outPath)
	return nil
}

// palette spreads n distinguishable colors around the hue wheel.
func palette(n int) []color.Color {
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		colors[i] = hslToRGB(hue, 0.7, 0.5)
	}
	return colors
}

// hslToRGB converts HSL values (each in [0,1]) to an opaque RGBA color.
func hslToRGB(h, s, l float64) color.RGBA {
	var r, g, b float64
	if s == 0 {
		r, g, b = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		r = hueToRGB(p, q, h+1.0/3.0)
		g = hueToRGB(p, q, h)
		b = hueToRGB(p, q, h-1.0/3.0)
	}
	return color.RGBA{
		R: uint8(r * 255),
		G: uint8(g * 255),
		B: uint8(b * 255),
		A: 255,
	}
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
