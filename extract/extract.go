/*
NAME
  extract.go

DESCRIPTION
  extract.go implements the fallback symbol extractor: a grid search
  over tone-frequency triplet, symbol period and start time, used when
  the streaming preamble/sync detector cannot lock onto a degraded
  recording.

AUTHOR
  David Sutton <davidsutton@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package extract implements the non-realtime fallback symbol
// extractor used when the streaming tone/sync detectors fail to
// acquire a frame.
package extract

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"

	"github.com/ausocean/fesk/codec/pcm"
	"github.com/ausocean/fesk/receiver/config"
	"github.com/ausocean/fesk/tone"
)

// permutations enumerates the six ways a detector's arg-max tone
// index (0, 1, 2) might correspond to a transmitted trit; the grid
// search cannot assume the mapping, per spec.md §4.4.
var permutations = [6][3]int{
	{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
}

// Candidate is a scored grid-search result: the tone triplet, symbol
// period and start time it was evaluated at, the best-scoring
// tone-index-to-trit mapping, and the decoded trit sequence under
// that mapping.
type Candidate struct {
	Tones       [3]float64
	PeriodMs    float64
	StartMs     float64
	Mapping     [3]int
	Score       float64
	Symbols     []int
	Confidences []float64
}

// defaultMaxSymbols is the "decode up to 90 symbols" figure §4.4
// names.
const defaultMaxSymbols = 90

// windowFraction and its floor set the analysis window per symbol
// slot: window_fraction · period, floored at 40ms.
const (
	windowFraction   = 0.6
	minWindowMs      = 40.0
)

// Search performs the three-dimensional grid search of spec.md §4.4:
// tone-frequency triplet × symbol period × start time. tones is the
// candidate triplet list (nominal plus any harmonic/coarse-scan
// variants); periodsMs and startOffsetsMs are the symbol-period and
// start-time search lists (the configured AdaptiveTiming values);
// baseStartMs anchors the start-time search (e.g. the result of
// FindTransmissionStart). maxSymbols caps how many symbols are
// decoded per grid point; 0 means defaultMaxSymbols.
func Search(samples []float32, sampleRateHz int, tones [][3]float64, periodsMs, startOffsetsMs []float64, baseStartMs float64, maxSymbols int) (Candidate, bool) {
	if maxSymbols <= 0 {
		maxSymbols = defaultMaxSymbols
	}

	var best Candidate
	found := false

	for _, triplet := range tones {
		for _, period := range periodsMs {
			windowMs := period * windowFraction
			if windowMs < minWindowMs {
				windowMs = minWindowMs
			}
			det := tone.NewDetector(triplet, sampleRateHz)
			det.WindowMs = windowMs

			for _, offset := range startOffsetsMs {
				start := baseStartMs + offset
				dets := det.ExtractSymbols(samples, start, period, maxSymbols)
				if len(dets) == 0 {
					continue
				}
				cand, ok := scoreBestMapping(dets, triplet, period, start)
				if !ok {
					continue
				}
				if !found || better(cand, best) {
					best, found = cand, true
				}
			}
		}
	}

	return best, found
}

// better implements §4.4's tie-break: higher score wins; ties go to
// the earlier start time.
func better(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.StartMs < b.StartMs
}

// scoreBestMapping scores dets under each of the six tone-index-to-
// trit permutations and returns the best-scoring one.
func scoreBestMapping(dets []tone.Detection, triplet [3]float64, periodMs, startMs float64) (Candidate, bool) {
	if len(dets) == 0 {
		return Candidate{}, false
	}

	var best Candidate
	bestScore := -1.0
	for _, perm := range permutations {
		symbols := make([]int, len(dets))
		confs := make([]float64, len(dets))
		for i, d := range dets {
			symbols[i] = perm[d.Symbol]
			confs[i] = d.Confidence
		}
		score := score(symbols, confs)
		if score > bestScore {
			bestScore = score
			best = Candidate{
				Tones:       triplet,
				PeriodMs:    periodMs,
				StartMs:     startMs,
				Mapping:     perm,
				Score:       score,
				Symbols:     symbols,
				Confidences: confs,
			}
		}
	}
	return best, true
}

// score implements spec.md §4.4's scoring formula:
// 0.5·(preamble_ratio + sync_ratio) · (0.5 + mean_confidence_above_min_conf).
func score(symbols []int, confs []float64) float64 {
	preambleRatio := matchRatio(symbols, config.PreambleBits, 0)
	syncRatio := matchRatio(symbols, config.Barker13, len(config.PreambleBits))
	meanConf := meanAboveThreshold(confs, tone.DefaultMinConfidence)
	return 0.5 * (preambleRatio + syncRatio) * (0.5 + meanConf)
}

// matchRatio returns the fraction of pattern that the symbols
// starting at offset match, or 0 if symbols does not reach far enough
// to cover the whole pattern.
func matchRatio(symbols, pattern []int, offset int) float64 {
	if offset+len(pattern) > len(symbols) {
		return 0
	}
	matches := 0
	for i, want := range pattern {
		bit, valid := tritToBit(symbols[offset+i])
		if valid && bit == want {
			matches++
		}
	}
	return float64(matches) / float64(len(pattern))
}

// tritToBit maps a trit to the preamble/Barker-13 1/0 alphabet; trit
// 1 never appears in either pattern and is reported invalid.
func tritToBit(trit int) (bit int, valid bool) {
	switch trit {
	case 2:
		return 1, true
	case 0:
		return 0, true
	default:
		return 0, false
	}
}

func meanAboveThreshold(confs []float64, threshold float64) float64 {
	var kept []float64
	for _, c := range confs {
		if c > threshold {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return 0
	}
	return stat.Mean(kept, nil)
}

// refineStepRatio and refineSteps implement §4.4's optional
// refinement: re-center each slot's window within ±4·(2% of period),
// in refineSteps increments each side.
const (
	refineStepRatio = 0.02
	refineSteps     = 4
)

// Refine re-centers each symbol slot of cand within ±4·(2% of period)
// to maximize its confidence, then rescans the decoded sequence under
// the same mapping and returns the updated candidate. This is
// spec.md §4.4's optional refinement pass; callers run it only on
// candidates promising enough to be worth the extra search.
func Refine(cand Candidate, samples []float32, sampleRateHz int) Candidate {
	windowMs := cand.PeriodMs * windowFraction
	if windowMs < minWindowMs {
		windowMs = minWindowMs
	}
	det := tone.NewDetector(cand.Tones, sampleRateHz)
	det.WindowMs = windowMs

	maxOffsetMs := refineSteps * refineStepRatio * cand.PeriodMs
	stepMs := maxOffsetMs / refineSteps

	symbols := append([]int(nil), cand.Symbols...)
	confs := append([]float64(nil), cand.Confidences...)

	for i := range symbols {
		nominalMid := cand.StartMs + (float64(i)+0.5)*cand.PeriodMs
		bestConf := confs[i]
		bestSymbol := symbols[i]
		for step := -refineSteps; step <= refineSteps; step++ {
			if step == 0 {
				continue
			}
			mid := nominalMid + float64(step)*stepMs
			dets := det.ExtractSymbols(samples, mid-cand.PeriodMs/2, cand.PeriodMs, 1)
			if len(dets) != 1 {
				continue
			}
			mapped := cand.Mapping[dets[0].Symbol]
			if dets[0].Confidence > bestConf {
				bestConf = dets[0].Confidence
				bestSymbol = mapped
			}
		}
		symbols[i] = bestSymbol
		confs[i] = bestConf
	}

	out := cand
	out.Symbols = symbols
	out.Confidences = confs
	out.Score = score(symbols, confs)
	return out
}

// CoarseToneCandidates proposes an alternative tone-frequency triplet
// by locating the strongest FFT spectral peak within marginHz of each
// nominal tone, for §4.4 step 1's "coarse frequency candidate scan."
// It always includes nominal itself, so callers can search both
// unconditionally.
func CoarseToneCandidates(samples []float32, sampleRateHz int, nominal [3]float64, marginHz float64) [][3]float64 {
	candidates := [][3]float64{nominal}
	if len(samples) < 8 {
		return candidates
	}

	floats := make([]float64, len(samples))
	for i, s := range samples {
		floats[i] = float64(s)
	}
	spectrum := fft.FFTReal(floats)
	n := len(spectrum)
	if n < 2 {
		return candidates
	}

	binOf := func(f float64) int {
		return int(math.Round(f * float64(n) / float64(sampleRateHz)))
	}

	var alt [3]float64
	changed := false
	for i, f := range nominal {
		lo, hi := binOf(f-marginHz), binOf(f+marginHz)
		if lo < 1 {
			lo = 1
		}
		if hi >= n/2 {
			hi = n/2 - 1
		}
		if hi < lo {
			alt[i] = f
			continue
		}
		bestBin, bestMag := lo, cmplx.Abs(spectrum[lo])
		for b := lo + 1; b <= hi; b++ {
			if mag := cmplx.Abs(spectrum[b]); mag > bestMag {
				bestMag, bestBin = mag, b
			}
		}
		alt[i] = float64(bestBin) * float64(sampleRateHz) / float64(n)
		if alt[i] != f {
			changed = true
		}
	}
	if changed {
		candidates = append(candidates, alt)
	}
	return candidates
}

// Prefilter bandpasses samples around tones before the grid search
// runs, improving the detector's signal-to-noise ratio on degraded
// recordings (§4.4's optional pre-filtering step, adapted from
// codec/pcm.NewBandpassAroundTones). The result has the same length as
// samples and is aligned with it sample for sample.
func Prefilter(samples []float32, sampleRateHz int, tones [3]float64, marginHz float64, taps int) ([]float32, error) {
	buf := pcm.FromFloat32(samples, uint(sampleRateHz))
	filter, err := pcm.NewBandpassAroundTones(tones[:], marginHz, buf.Format, taps)
	if err != nil {
		return nil, err
	}
	filtered, err := filter.Apply(buf)
	if err != nil {
		return nil, err
	}
	out, err := pcm.ToFloat32(pcm.Buffer{Format: buf.Format, Data: filtered})
	if err != nil {
		return nil, err
	}
	// The full convolution is longer than the input by the filter length
	// minus one; skip the symmetric filter's group delay at the front and
	// drop the tail.
	delay := (len(out) - len(samples)) / 2
	return out[delay : delay+len(samples)], nil
}
