/*
NAME
  diag.go

DESCRIPTION
  diag.go implements the FESK receiver's diagnostics hook (§4.13): a
  Goertzel-magnitude history recorder and PNG plotter, used by
  cmd/fesk-rx to visualize a decode attempt after the fact. This is
  never run on the hot decode path (§5 forbids extra work inside the
  state machine's inner loops); it re-analyzes a buffer the caller has
  already decoded (or failed to decode), purely for observability.

AUTHOR
  David Sutton <davidsutton@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package diag provides offline diagnostics for a FESK decode attempt:
// a per-window tone-magnitude history and a PNG plotter, surfacing the
// observability hook spec.md §9 calls for around acquisition failures
// and tolerated pilot gaps.
package diag

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ausocean/fesk/tone"
)

// Sample is one analysis window's worth of tone energy, timestamped
// relative to the start of the buffer it was taken from.
type Sample struct {
	TimestampMs float64
	Magnitudes  [3]float64
	Symbol      int
	Confidence  float64
}

// defaultWindowMs mirrors tone.Detector's default analysis window, so
// the diagnostic trace lines up with what the streaming detector saw.
const defaultWindowMs = 27.0

// CollectSamples re-runs a parametric Goertzel bank over buffer at the
// detector's usual window/hop cadence, recording all three tone
// magnitudes per window (not just the arg-max one the streaming
// detector keeps), for later plotting.
func CollectSamples(buffer []float32, sampleRateHz int, tones [3]float64) []Sample {
	if sampleRateHz <= 0 {
		return nil
	}
	winLen := int(defaultWindowMs * float64(sampleRateHz) / 1000)
	if winLen < 4 {
		winLen = 4
	}
	hop := winLen / 8
	if hop < 1 {
		hop = 1
	}

	var out []Sample
	for start := 0; start+winLen <= len(buffer); start += hop {
		chunk := make([]float64, winLen)
		for i, s := range buffer[start : start+winLen] {
			chunk[i] = float64(s)
		}
		mags := tone.Magnitudes(chunk, tones, float64(sampleRateHz), tone.Parametric, tone.Hamming)

		var sum float64
		best := 0
		for i, m := range mags {
			sum += m
			if m > mags[best] {
				best = i
			}
		}
		var conf float64
		if sum > 0 {
			conf = mags[best] / sum
		}

		out = append(out, Sample{
			TimestampMs: float64(start) * 1000 / float64(sampleRateHz),
			Magnitudes:  mags,
			Symbol:      best,
			Confidence:  conf,
		})
	}
	return out
}

// toneLabel names trit k's tone for the plot legend.
func toneLabel(k int) string {
	switch k {
	case 0:
		return "tone 0"
	case 1:
		return "tone 1"
	default:
		return "tone 2"
	}
}

// PlotMagnitudes renders the three tone magnitudes in history over
// time to a PNG at path, one line per tone, so acquisition failures
// and noisy stretches of a recording can be inspected visually.
func PlotMagnitudes(history []Sample, path string) error {
	if len(history) == 0 {
		return errors.New("diag: no samples to plot")
	}

	p := plot.New()
	p.Title.Text = "FESK tone magnitudes"
	p.X.Label.Text = "time (ms)"
	p.Y.Label.Text = "magnitude"

	for k := 0; k < 3; k++ {
		pts := make(plotter.XYs, len(history))
		for i, s := range history {
			pts[i].X = s.TimestampMs
			pts[i].Y = s.Magnitudes[k]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return errors.Wrapf(err, "could not build line for %s", toneLabel(k))
		}
		line.Color = plotter.DefaultLineStyle.Color
		line.Dashes = plotDashes(k)
		p.Add(line)
		p.Legend.Add(toneLabel(k), line)
	}

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrap(err, "could not save plot")
	}
	return nil
}

// plotDashes gives each tone's line a distinct dash pattern so the
// three series remain distinguishable in a black-and-white render.
func plotDashes(k int) []vg.Length {
	switch k {
	case 0:
		return nil
	case 1:
		return []vg.Length{vg.Points(4), vg.Points(2)}
	default:
		return []vg.Length{vg.Points(1), vg.Points(2)}
	}
}
