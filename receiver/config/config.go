/*
NAME
  config.go

DESCRIPTION
  config.go defines the compile-time frame constants of the FESK wire
  format and the runtime Config consumed by the tone, sync, extract
  and receiver packages.

AUTHOR
  David Sutton <davidsutton@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package config defines the FESK frame constants and the runtime
// Config consumed throughout the receiver.
package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/ausocean/utils/logging"
)

// Frame constants. These are bit-exact with the transmitter and must
// never be derived from Config; they describe the wire format itself,
// not a deployment choice.
const (
	// PilotIntervalTrits is the data-trit cadence at which a pilot pair
	// is inserted on the wire (§3: one pilot pair after every 64 data
	// trits).
	PilotIntervalTrits = 64

	// LFSRSeed is the 9-bit scrambler state at the start of every
	// frame (header and payload).
	LFSRSeed uint16 = 0x1FF

	// CRCPoly and CRCInit parameterize the CRC-16/CCITT check run over
	// the descrambled payload.
	CRCPoly uint16 = 0x1021
	CRCInit uint16 = 0xFFFF

	// MinPayloadLen and MaxPayloadLen bound the big-endian payload
	// length header (§3's payload_length ∈ [1, 64]).
	MinPayloadLen = 1
	MaxPayloadLen = 64
)

// PreambleBits is the 12-bit alternating acquisition pattern, 1/0
// form (1→trit 2, 0→trit 0).
var PreambleBits = []int{1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0}

// Barker13 is the 13-bit sync word, 1/0 form (1→trit 2, 0→trit 0).
var Barker13 = []int{1, 1, 1, 1, 1, 0, 0, 1, 1, 0, 1, 0, 1}

// PilotSequence is the trit pair inserted every PilotIntervalTrits
// data trits.
var PilotSequence = [2]int{0, 2}

// BitToTrit maps a preamble/Barker-13 bit to its on-air trit.
func BitToTrit(bit int) int {
	if bit == 1 {
		return 2
	}
	return 0
}

// Config holds the runtime-selectable parameters of a decoder
// instance: the sample rate/symbol-period pairing, the tone
// frequencies, pilot cadence, the fallback extractor's adaptive
// timing search space, and the ambient fields a real deployment needs
// (logger, chunking bounds, sync-loss tolerance).
type Config struct {
	// SampleRateHz is the PCM sample rate this Config is valid for.
	// Only 8000 and 44100 are recognized; see Validate.
	SampleRateHz int

	// SymbolDurationS is the nominal duration of one trit on the air.
	SymbolDurationS float64

	// ToneFrequenciesHz is the triplet of tone frequencies carrying
	// trits 0, 1, 2 respectively.
	ToneFrequenciesHz [3]float64

	// PilotIntervalTrits is the data-trit cadence at which a pilot
	// pair is expected. Defaults to config.PilotIntervalTrits.
	PilotIntervalTrits int

	// AdaptiveTiming configures the fallback grid-search extractor
	// (§4.4): the symbol periods and start-time offsets it searches
	// when the streaming detector fails to lock.
	AdaptiveTiming AdaptiveTiming

	// MaxChunks bounds process_stream's run length (§5's "maximum
	// chunk count"); 0 means config.Default's 300 chunks (30s of
	// audio at the default 100ms chunk size).
	MaxChunks int

	// ChunkMs is the chunk size process_stream feeds to ProcessAudio.
	ChunkMs int

	// SyncLostSymbols bounds the run of non-committed symbol periods
	// in Payload phase before the state machine reports SyncLost
	// (§7); 0 means config.Default's 20 symbol periods.
	SyncLostSymbols int

	// Logger receives receiver.Decoder's debug events; the tone, sync
	// and extract packages do not log. A nil Logger is a silent no-op.
	Logger logging.Logger
}

// AdaptiveTiming is the fallback extractor's search space (§6's
// "adaptive_timing" configuration option).
type AdaptiveTiming struct {
	EnableAdaptive    bool
	SymbolDurationsMs []float64
	TimingOffsetsMs   []float64
}

// defaultAdaptiveTiming is the grid of symbol periods §4.4 names
// explicitly.
func defaultAdaptiveTiming() AdaptiveTiming {
	return AdaptiveTiming{
		EnableAdaptive:    true,
		SymbolDurationsMs: []float64{80, 85, 90, 93.75, 100, 105, 110, 120},
		TimingOffsetsMs:   []float64{0, 0.5, 1, 1.5, 2},
	}
}

// Default returns the 44100 Hz / 100 ms configuration, the receiver's
// default pairing (spec.md §9's open question resolution: 44100 Hz is
// the default, 8000 Hz is opt-in via Legacy8k, and Validate rejects
// any other pairing rather than guessing between them).
func Default() Config {
	return Config{
		SampleRateHz:       44100,
		SymbolDurationS:    0.1,
		ToneFrequenciesHz:  [3]float64{2400, 3000, 3600},
		PilotIntervalTrits: PilotIntervalTrits,
		AdaptiveTiming:     defaultAdaptiveTiming(),
		MaxChunks:          300,
		ChunkMs:            100,
		SyncLostSymbols:    20,
	}
}

// Legacy8k returns the 8000 Hz / 93.75 ms configuration for legacy
// streams (spec.md §6's configurable symbol_duration_s of 0.09375).
func Legacy8k() Config {
	c := Default()
	c.SampleRateHz = 8000
	c.SymbolDurationS = 0.09375
	return c
}

// SymbolDurationMs returns SymbolDurationS in milliseconds.
func (c Config) SymbolDurationMs() float64 {
	return c.SymbolDurationS * 1000
}

// SymbolPeriod returns SymbolDurationS as a time.Duration.
func (c Config) SymbolPeriod() time.Duration {
	return time.Duration(c.SymbolDurationS * float64(time.Second))
}

// Validate rejects any sample-rate/symbol-duration pairing other than
// the two named in spec.md §9 ({44100, 0.1} or {8000, 0.09375}), and
// checks the remaining fields for obviously unusable values. It
// aggregates every problem found, in the style of device.MultiError,
// rather than stopping at the first.
func (c Config) Validate() error {
	var errs []error

	switch {
	case c.SampleRateHz == 44100 && c.SymbolDurationS == 0.1:
	case c.SampleRateHz == 8000 && c.SymbolDurationS == 0.09375:
	default:
		errs = append(errs, errors.Errorf(
			"unsupported sample_rate_hz/symbol_duration_s pairing: %d Hz / %v s; "+
				"use config.Default() (44100/0.1) or config.Legacy8k() (8000/0.09375)",
			c.SampleRateHz, c.SymbolDurationS))
	}

	for i, f := range c.ToneFrequenciesHz {
		if f <= 0 {
			errs = append(errs, errors.Errorf("tone_frequencies_hz[%d] must be positive, got %v", i, f))
		}
	}
	if c.ToneFrequenciesHz[0] == c.ToneFrequenciesHz[1] ||
		c.ToneFrequenciesHz[1] == c.ToneFrequenciesHz[2] ||
		c.ToneFrequenciesHz[0] == c.ToneFrequenciesHz[2] {
		errs = append(errs, errors.New("tone_frequencies_hz must be three distinct frequencies"))
	}

	if c.PilotIntervalTrits <= 0 {
		errs = append(errs, errors.New("pilot_interval_trits must be positive"))
	}
	if c.MaxChunks < 0 {
		errs = append(errs, errors.New("max_chunks must not be negative"))
	}
	if c.ChunkMs <= 0 {
		errs = append(errs, errors.New("chunk_ms must be positive"))
	}
	if c.SyncLostSymbols < 0 {
		errs = append(errs, errors.New("sync_lost_symbols must not be negative"))
	}

	if len(errs) == 0 {
		return nil
	}
	return MultiError(errs)
}

// MultiError aggregates multiple validation errors, adapted from
// device.MultiError.
type MultiError []error

func (me MultiError) Error() string {
	if len(me) == 0 {
		panic("config: invalid use of MultiError")
	}
	return fmt.Sprintf("%v", []error(me))
}

// Normalized fills in the defaults for any zero-valued ambient field
// (MaxChunks, ChunkMs, SyncLostSymbols, PilotIntervalTrits) without
// touching the sample-rate/tone fields, so a caller may build a
// Config literal with just the fields it cares about.
func (c Config) Normalized() Config {
	d := Default()
	if c.PilotIntervalTrits == 0 {
		c.PilotIntervalTrits = d.PilotIntervalTrits
	}
	if c.MaxChunks == 0 {
		c.MaxChunks = d.MaxChunks
	}
	if c.ChunkMs == 0 {
		c.ChunkMs = d.ChunkMs
	}
	if c.SyncLostSymbols == 0 {
		c.SyncLostSymbols = d.SyncLostSymbols
	}
	return c
}
