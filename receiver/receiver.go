/*
NAME
  receiver.go

DESCRIPTION
  receiver.go implements the three-phase FESK decoder state machine
  (§4.5): Searching, Sync and Payload, driving the tone detector and
  the preamble/sync scanners, committing symbols by weighted vote
  during Payload phase, and attempting frame assembly after every new
  committed trit.

AUTHOR
  David Sutton <davidsutton@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package receiver implements the FESK decoder: the phase state
// machine, pilot removal, canonical base-3 conversion, LFSR
// descrambling, CRC-16/CCITT verification and frame assembly.
package receiver

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ausocean/fesk/receiver/config"
	"github.com/ausocean/fesk/sync"
	"github.com/ausocean/fesk/tone"
)

// Phase is one of the three decoder states.
type Phase int

const (
	Searching Phase = iota
	Sync
	Payload
)

func (p Phase) String() string {
	switch p {
	case Searching:
		return "Searching"
	case Sync:
		return "Sync"
	case Payload:
		return "Payload"
	default:
		return "Unknown"
	}
}

// candidate is a buffered tone detection awaiting a symbol-commit
// decision in Payload phase.
type candidate struct {
	trit       int
	confidence float64
	timestamp  float64
}

// candidateWindowMs bounds how long a candidate is kept before being
// pruned (§4.5 step 1: "≤300ms of recent candidates").
const candidateWindowMs = 300.0

// commitWindowMs bounds how far from "now" a candidate may be and
// still enter the weighted vote (§4.5 step 2).
const commitWindowMs = 120.0

// Decoder holds all state for one FESK decode attempt. It is not
// safe for concurrent use; each instance owns its buffers
// exclusively, per the concurrency model's "no shared resources"
// guarantee.
type Decoder struct {
	cfg config.Config

	phase    Phase
	detector *tone.Detector

	preambleScanner *sync.PreambleScanner
	syncScanner     *sync.SyncScanner

	lockedPeriodMs float64
	phaseEntryMs   float64

	trits               []int
	dataTritCount       int
	candidates          []candidate
	commitsDone         int
	nonCommittedPeriods int
	pilotGapsTolerated  int

	elapsedMs   float64
	chunkCount  int
	lastAnomaly string
}

// NewDecoder constructs a Decoder. cfg is normalized so ambient fields
// left at their zero value fall back to config.Default()'s choices.
func NewDecoder(cfg config.Config) *Decoder {
	cfg = cfg.Normalized()
	d := &Decoder{cfg: cfg}
	d.detector = tone.NewDetector(cfg.ToneFrequenciesHz, cfg.SampleRateHz)
	d.resetAcquisition()
	return d
}

// resetAcquisition clears phase-scoped state (used on Barker-13
// rejection, SyncLost in Payload phase, and successful emit) without touching the
// elapsed-time/chunk-count bookkeeping that Reset clears.
func (d *Decoder) resetAcquisition() {
	d.phase = Searching
	d.preambleScanner = sync.NewPreambleScanner(d.cfg.SymbolDurationMs())
	d.syncScanner = sync.NewSyncScanner()
	d.lockedPeriodMs = d.cfg.SymbolDurationMs()
	d.phaseEntryMs = d.elapsedMs
	d.trits = d.trits[:0]
	d.dataTritCount = 0
	d.candidates = d.candidates[:0]
	d.commitsDone = 0
	d.nonCommittedPeriods = 0
}

// Reset clears all decoder state, including elapsed time, chunk
// count, tolerated pilot gaps and the last anomaly, per spec.md §6's
// "reset() — clears all state".
func (d *Decoder) Reset() {
	d.elapsedMs = 0
	d.chunkCount = 0
	d.pilotGapsTolerated = 0
	d.lastAnomaly = ""
	d.resetAcquisition()
}

func (d *Decoder) logDebug(msg string, keyvals ...interface{}) {
	if d.cfg.Logger != nil {
		d.cfg.Logger.Debug(msg, keyvals...)
	}
}

// ProcessAudio feeds one chunk of mono Float32 PCM through the
// decoder, returning a Frame if one was assembled during this chunk.
//
// The detector emits several overlapping tone decisions per symbol
// period (hop = window/8); every phase decimates these to one
// committed symbol per symbol_period (§4.5's majority vote) before
// acting on it; §4.3's preamble/Barker-13 scanners and §4.10's frame
// assembler all see one decision per symbol, never the raw detection
// stream.
func (d *Decoder) ProcessAudio(chunk []float32, sampleRateHz int) (*Frame, bool) {
	d.chunkCount++
	startMs := d.elapsedMs
	detections := d.detector.Detect(chunk, startMs)
	d.elapsedMs += float64(len(chunk)) * 1000 / float64(sampleRateHz)

	for _, det := range detections {
		d.candidates = append(d.candidates, candidate{
			trit:       det.Symbol,
			confidence: det.Confidence,
			timestamp:  det.TimestampMs,
		})
	}

	return d.advance()
}

// advance commits every symbol-period boundary that has been crossed
// since the last call and drives whatever the current phase does with
// a newly committed symbol: feed the preamble scanner (Searching),
// feed the Barker-13 scanner (Sync), or accumulate a trit and attempt
// frame assembly (Payload). The committing period is d.lockedPeriodMs,
// which starts at the nominal symbol duration and is refined once the
// preamble locks, so the same decimation loop serves all three
// phases.
func (d *Decoder) advance() (*Frame, bool) {
	for {
		period := d.lockedPeriodMs
		if period <= 0 {
			period = d.cfg.SymbolDurationMs()
		}
		boundary := d.phaseEntryMs + period*float64(d.commitsDone+1)
		if d.elapsedMs < boundary {
			return nil, false
		}
		d.pruneCandidates(boundary)
		trit, confidence, ok := d.commitSymbol(boundary)
		d.commitsDone++

		switch d.phase {
		case Searching:
			if !ok {
				continue
			}
			det := tone.Detection{Symbol: trit, Confidence: confidence, TimestampMs: boundary}
			if lock, locked := d.preambleScanner.Feed(det); locked {
				d.lockedPeriodMs = lock.SymbolPeriodMs
				d.phase = Sync
				d.syncScanner.Reset()
				d.phaseEntryMs = boundary
				d.commitsDone = 0
			}

		case Sync:
			if !ok {
				continue
			}
			det := tone.Detection{Symbol: trit, Confidence: confidence, TimestampMs: boundary}
			result, decided := d.syncScanner.Feed(det)
			if !decided {
				continue
			}
			if result.OK {
				d.phase = Payload
				d.trits = d.trits[:0]
				d.dataTritCount = 0
				d.commitsDone = 0
				d.nonCommittedPeriods = 0
				d.phaseEntryMs = boundary
			} else {
				d.lastAnomaly = "SyncLost"
				d.resetAcquisition()
			}

		case Payload:
			if !ok {
				d.nonCommittedPeriods++
				if d.nonCommittedPeriods > d.cfg.SyncLostSymbols {
					d.lastAnomaly = "SyncLost"
					d.resetAcquisition()
				}
				continue
			}
			d.nonCommittedPeriods = 0

			d.trits = append(d.trits, trit)
			d.dataTritCount++
			if d.dataTritCount%config.PilotIntervalTrits == 0 {
				d.logDebug("expecting pilot pair", "dataTritCount", d.dataTritCount)
			}

			frame, _, pilotGaps, err := assembleFrame(d.trits, d.cfg.PilotIntervalTrits)
			d.pilotGapsTolerated = pilotGaps
			if err == nil {
				d.resetAcquisition()
				return &frame, true
			}
			switch {
			case err == ErrNeedMoreData:
				// Keep collecting; not terminal.
			default:
				d.lastAnomaly = "InvalidLength"
				// Not terminal either: keep collecting trits, per §4.10's
				// error policy.
			}
		}
	}
}

// commitSymbol implements §4.5's weighted-vote commit rule, falling
// back to the single highest-confidence candidate in the current
// window if no candidate qualifies for the vote. The returned
// confidence is the winning trit's share of the total vote weight (or
// the fallback candidate's own confidence), suitable for feeding
// straight into a tone.Detection for the preamble/sync scanners.
func (d *Decoder) commitSymbol(now float64) (trit int, confidence float64, ok bool) {
	weights := [3]float64{}
	var total float64
	any := false
	for _, c := range d.candidates {
		age := now - c.timestamp
		if age < 0 {
			age = -age
		}
		if age > commitWindowMs {
			continue
		}
		w := math.Pow(c.confidence, 1.5) * math.Exp(-age/40)
		weights[c.trit] += w
		total += w
		any = true
	}
	if any {
		best, bestW := 0, weights[0]
		for i := 1; i < 3; i++ {
			if weights[i] > bestW {
				best, bestW = i, weights[i]
			}
		}
		if bestW > 0 {
			conf := 1.0
			if total > 0 {
				conf = bestW / total
			}
			return best, conf, true
		}
	}

	bestIdx, bestConf := -1, -1.0
	for i, c := range d.candidates {
		if c.confidence > bestConf {
			bestIdx, bestConf = i, c.confidence
		}
	}
	if bestIdx < 0 {
		return 0, 0, false
	}
	return d.candidates[bestIdx].trit, d.candidates[bestIdx].confidence, true
}

// pruneCandidates drops candidates older than candidateWindowMs
// relative to now.
func (d *Decoder) pruneCandidates(now float64) {
	kept := d.candidates[:0]
	for _, c := range d.candidates {
		if now-c.timestamp <= candidateWindowMs {
			kept = append(kept, c)
		}
	}
	d.candidates = kept
}

// ProcessStream chunks buffer at chunkMs and drives ProcessAudio until
// a valid frame is produced or the buffer (bounded by cfg.MaxChunks,
// when positive) is exhausted. If the streaming pass produces no frame,
// whether or not it acquired a lock, it falls back to the non-realtime
// grid-search extractor (§4.4) over the whole buffer before giving up, per §2:
// "its output substitutes (2)+(3) and feeds (5) directly."
func (d *Decoder) ProcessStream(buffer []float32, sampleRateHz int, chunkMs int) (*Frame, bool) {
	if chunkMs <= 0 {
		chunkMs = d.cfg.ChunkMs
	}
	samplesPerChunk := chunkMs * sampleRateHz / 1000
	if samplesPerChunk <= 0 {
		samplesPerChunk = len(buffer)
	}

	chunks := 0
	for offset := 0; offset < len(buffer); offset += samplesPerChunk {
		if d.cfg.MaxChunks > 0 && chunks >= d.cfg.MaxChunks {
			break
		}
		end := offset + samplesPerChunk
		if end > len(buffer) {
			end = len(buffer)
		}
		frame, ok := d.ProcessAudio(buffer[offset:end], sampleRateHz)
		chunks++
		if ok {
			return frame, true
		}
	}

	if frame, ok := d.runFallbackExtractor(buffer, sampleRateHz); ok {
		d.resetAcquisition()
		return frame, true
	}

	d.lastAnomaly = "AcquisitionFailure"
	return nil, false
}

// FindTransmissionStart computes per-10ms-window RMS energy over
// buffer and returns the timestamp, in ms, of the first window whose
// RMS exceeds energyThreshold.
func FindTransmissionStart(buffer []float32, sampleRateHz int, energyThreshold float64) (float64, bool) {
	windowSamples := sampleRateHz / 100
	if windowSamples <= 0 {
		return 0, false
	}
	sq := make([]float64, windowSamples)
	for start := 0; start+windowSamples <= len(buffer); start += windowSamples {
		for i, s := range buffer[start : start+windowSamples] {
			sq[i] = float64(s) * float64(s)
		}
		rms := math.Sqrt(stat.Mean(sq, nil))
		if rms > energyThreshold {
			return float64(start) * 1000 / float64(sampleRateHz), true
		}
	}
	return 0, false
}

// Progress summarizes decode state for observability, per spec.md
// §6's get_progress().
type Progress struct {
	Phase              Phase
	TritCount          int
	ProgressPercent    float64
	EstimatedComplete  bool
	PilotGapsTolerated int
	LastAnomaly        string
}

// Progress reports the decoder's current state. When enough trits
// have accumulated to read the header, it estimates completion
// percentage against the declared payload length.
func (d *Decoder) Progress() Progress {
	p := Progress{
		Phase:              d.phase,
		TritCount:          len(d.trits),
		PilotGapsTolerated: d.pilotGapsTolerated,
		LastAnomaly:        d.lastAnomaly,
	}
	if d.phase != Payload || len(d.trits) == 0 {
		return p
	}

	data, _ := RemovePilots(d.trits, d.cfg.PilotIntervalTrits)
	raw := TritsToBytes(data, 0)
	if len(raw) < headerLen+1 {
		return p
	}
	lfsr := NewLFSR()
	header := lfsr.Bytes(raw[:headerLen])
	payloadLength := int(header[0])<<8 | int(header[1])
	if payloadLength < config.MinPayloadLen || payloadLength > config.MaxPayloadLen {
		return p
	}

	totalBytes := headerLen + payloadLength + crcLen
	p.ProgressPercent = math.Min(100, 100*float64(len(raw))/float64(totalBytes))
	p.EstimatedComplete = len(raw) >= totalBytes
	return p
}
