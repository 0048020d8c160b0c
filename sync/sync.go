/*
NAME
  sync.go

DESCRIPTION
  sync.go locates the start of a FESK frame: the 12-symbol alternating
  preamble used to acquire timing, followed by the 13-symbol Barker
  sync word that precisely marks the frame boundary.

AUTHOR
  David Sutton <davidsutton@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package sync implements the preamble and Barker-13 sync-word
// detectors that acquire frame timing for the FESK receiver.
package sync

import (
	"gonum.org/v1/gonum/stat"

	"github.com/ausocean/fesk/receiver/config"
	"github.com/ausocean/fesk/tone"
)

// Acceptance thresholds, named after spec.md §4.3.
const (
	PreambleMinMatches  = 9  // of 12
	PreambleMinConf     = 0.4
	SyncMaxErrors       = 2  // of 13
	SyncMinConf         = 0.5
	minDeltaRatio       = 0.25
	maxDeltaRatio       = 2.0
	minSymbolPeriodMs   = 50.0
	maxSymbolPeriodMs   = 200.0
)

// symbolToBit maps a received trit to the 1/0 alphabet the preamble
// and Barker-13 patterns are expressed in. Trit 1 never appears in
// the preamble/sync alphabet; it is reported invalid and always
// scores as a mismatch.
func symbolToBit(symbol int) (bit int, valid bool) {
	switch symbol {
	case 2:
		return 1, true
	case 0:
		return 0, true
	default:
		return 0, false
	}
}

// Lock is the result of a successful preamble acceptance: the locked
// frame start time and estimated symbol period.
type Lock struct {
	FrameStartMs   float64
	SymbolPeriodMs float64
	Matches        int
	AvgConfidence  float64
}

// PreambleScanner maintains the sliding 12-symbol window spec.md
// §4.3 describes and reports a Lock as soon as the window matches.
type PreambleScanner struct {
	window         []tone.Detection
	nominalPeriodMs float64
}

// NewPreambleScanner returns a scanner that estimates symbol period
// around nominalPeriodMs (the configured symbol duration).
func NewPreambleScanner(nominalPeriodMs float64) *PreambleScanner {
	return &PreambleScanner{nominalPeriodMs: nominalPeriodMs}
}

// Reset clears the scanner's window, discarding any partial match.
func (s *PreambleScanner) Reset() {
	s.window = s.window[:0]
}

// Feed appends a new detection to the sliding window and reports a
// Lock if the last 12 detections now match the preamble.
func (s *PreambleScanner) Feed(d tone.Detection) (Lock, bool) {
	s.window = append(s.window, d)
	if len(s.window) > len(config.PreambleBits) {
		s.window = s.window[len(s.window)-len(config.PreambleBits):]
	}
	if len(s.window) < len(config.PreambleBits) {
		return Lock{}, false
	}

	matches, avgConf := scorePattern(s.window, config.PreambleBits)
	if matches < PreambleMinMatches || avgConf < PreambleMinConf {
		return Lock{}, false
	}

	return Lock{
		FrameStartMs:   s.window[0].TimestampMs,
		SymbolPeriodMs: estimatePeriod(s.window, s.nominalPeriodMs),
		Matches:        matches,
		AvgConfidence:  avgConf,
	}, true
}

// SyncResult reports the outcome of a completed 13-symbol Barker
// window evaluation.
type SyncResult struct {
	OK            bool
	Errors        int
	AvgConfidence float64
}

// SyncScanner buffers the 13 symbols following a preamble lock and
// evaluates them against the Barker-13 word exactly once, per
// spec.md §4.3's "buffer the next 13 symbols."
type SyncScanner struct {
	window []tone.Detection
}

// NewSyncScanner returns an empty sync scanner.
func NewSyncScanner() *SyncScanner {
	return &SyncScanner{}
}

// Reset clears the buffered window.
func (s *SyncScanner) Reset() {
	s.window = s.window[:0]
}

// Feed appends a detection to the buffer. decided is false until
// exactly 13 symbols have been buffered; once decided is true, result
// reports whether the Barker-13 word matched within tolerance.
func (s *SyncScanner) Feed(d tone.Detection) (result SyncResult, decided bool) {
	s.window = append(s.window, d)
	if len(s.window) < len(config.Barker13) {
		return SyncResult{}, false
	}

	errCount, avgConf := scoreMismatches(s.window[:len(config.Barker13)], config.Barker13)
	return SyncResult{
		OK:            errCount <= SyncMaxErrors && avgConf >= SyncMinConf,
		Errors:        errCount,
		AvgConfidence: avgConf,
	}, true
}

// scorePattern counts how many symbols in window match the
// corresponding bit of pattern, and returns the mean confidence over
// window.
func scorePattern(window []tone.Detection, pattern []int) (matches int, avgConf float64) {
	var sumConf float64
	for i, d := range window {
		bit, valid := symbolToBit(d.Symbol)
		if valid && bit == pattern[i] {
			matches++
		}
		sumConf += d.Confidence
	}
	if len(window) > 0 {
		avgConf = sumConf / float64(len(window))
	}
	return matches, avgConf
}

// scoreMismatches is scorePattern's complement: the number of symbols
// that do NOT match pattern (an invalid trit always counts as a
// mismatch), which is the natural quantity for Barker-13's
// "at most 2 bit errors" acceptance rule.
func scoreMismatches(window []tone.Detection, pattern []int) (errors int, avgConf float64) {
	matches, avgConf := scorePattern(window, pattern)
	return len(window) - matches, avgConf
}

// estimatePeriod computes the mean of inter-symbol timestamp deltas
// that fall within [0.25x, 2x] of nominalMs, clamped to
// [minSymbolPeriodMs, maxSymbolPeriodMs], per spec.md §4.3.
func estimatePeriod(window []tone.Detection, nominalMs float64) float64 {
	var deltas []float64
	for i := 1; i < len(window); i++ {
		d := window[i].TimestampMs - window[i-1].TimestampMs
		if d >= minDeltaRatio*nominalMs && d <= maxDeltaRatio*nominalMs {
			deltas = append(deltas, d)
		}
	}
	mean := nominalMs
	if len(deltas) > 0 {
		mean = stat.Mean(deltas, nil)
	}
	return clamp(mean, minSymbolPeriodMs, maxSymbolPeriodMs)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
