/*
NAME
  extract_test.go

DESCRIPTION
  extract_test.go tests the fallback grid-search extractor against a
  synthetic preamble+sync burst.

AUTHOR
  David Sutton <davidsutton@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package extract

import (
	"math"
	"testing"

	"github.com/ausocean/fesk/receiver/config"
)

const sampleRate = 44100

func tritsFromBits(bits []int) []int {
	out := make([]int, len(bits))
	for i, b := range bits {
		out[i] = config.BitToTrit(b)
	}
	return out
}

// synthesize renders symbols (trits, which also double as tone
// indices here) as a continuous tone burst, periodMs per symbol, at
// the given tone triplet.
func synthesize(symbols []int, tones [3]float64, periodMs float64) []float32 {
	samplesPerSymbol := int(periodMs * sampleRate / 1000)
	out := make([]float32, 0, samplesPerSymbol*len(symbols))
	for _, s := range symbols {
		f := tones[s]
		for n := 0; n < samplesPerSymbol; n++ {
			v := 0.8 * math.Sin(2*math.Pi*f*float64(n)/sampleRate)
			out = append(out, float32(v))
		}
	}
	return out
}

func TestSearchFindsExactBurst(t *testing.T) {
	tones := [3]float64{2400, 3000, 3600}
	const periodMs = 100.0

	symbols := append(tritsFromBits(config.PreambleBits), tritsFromBits(config.Barker13)...)
	samples := synthesize(symbols, tones, periodMs)

	cand, ok := Search(samples, sampleRate, [][3]float64{tones}, []float64{periodMs}, []float64{0}, 0, 25)
	if !ok {
		t.Fatal("expected Search to find a candidate")
	}
	if cand.Mapping != [3]int{0, 1, 2} {
		t.Errorf("expected identity mapping, got %v", cand.Mapping)
	}
	if cand.Score < 0.8 {
		t.Errorf("expected a high score for an exact burst, got %v", cand.Score)
	}
}

func TestSearchPrefersCorrectPeriod(t *testing.T) {
	tones := [3]float64{2400, 3000, 3600}
	const periodMs = 100.0

	symbols := append(tritsFromBits(config.PreambleBits), tritsFromBits(config.Barker13)...)
	samples := synthesize(symbols, tones, periodMs)

	cand, ok := Search(samples, sampleRate, [][3]float64{tones}, []float64{80, 100, 120}, []float64{0}, 0, 25)
	if !ok {
		t.Fatal("expected Search to find a candidate")
	}
	if cand.PeriodMs != periodMs {
		t.Errorf("expected the grid search to prefer the true symbol period %v, got %v", periodMs, cand.PeriodMs)
	}
}

func TestMatchRatioPerfect(t *testing.T) {
	symbols := tritsFromBits(config.PreambleBits)
	if r := matchRatio(symbols, config.PreambleBits, 0); r != 1 {
		t.Errorf("expected perfect match ratio 1, got %v", r)
	}
}

func TestMatchRatioShortInput(t *testing.T) {
	if r := matchRatio([]int{0, 2}, config.PreambleBits, 0); r != 0 {
		t.Errorf("expected 0 for input shorter than pattern, got %v", r)
	}
}

func TestCoarseToneCandidatesIncludesNominal(t *testing.T) {
	tones := [3]float64{2400, 3000, 3600}
	samples := synthesize([]int{0, 1, 2, 0, 1, 2}, tones, 100)

	cands := CoarseToneCandidates(samples, sampleRate, tones, 150)
	if len(cands) == 0 || cands[0] != tones {
		t.Fatalf("expected nominal triplet to always be included first, got %v", cands)
	}
}

func TestPrefilterPreservesLength(t *testing.T) {
	tones := [3]float64{2400, 3000, 3600}
	samples := synthesize([]int{0, 1, 2}, tones, 100)

	out, err := Prefilter(samples, sampleRate, tones, 200, 200)
	if err != nil {
		t.Fatalf("Prefilter failed: %v", err)
	}
	if len(out) != len(samples) {
		t.Errorf("expected filtered output to keep the same sample count, got %d want %d", len(out), len(samples))
	}
}

func TestRefineDoesNotLowerScore(t *testing.T) {
	tones := [3]float64{2400, 3000, 3600}
	const periodMs = 100.0
	symbols := append(tritsFromBits(config.PreambleBits), tritsFromBits(config.Barker13)...)
	samples := synthesize(symbols, tones, periodMs)

	cand, ok := Search(samples, sampleRate, [][3]float64{tones}, []float64{periodMs}, []float64{0}, 0, 25)
	if !ok {
		t.Fatal("expected Search to find a candidate")
	}
	refined := Refine(cand, samples, sampleRate)
	if refined.Score < cand.Score-0.01 {
		t.Errorf("expected refinement to not significantly lower the score: before=%v after=%v", cand.Score, refined.Score)
	}
}
