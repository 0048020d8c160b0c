/*
NAME
  receiver_test.go

DESCRIPTION
  receiver_test.go drives the full streaming decode path end to end:
  synthesized PCM audio carrying a known preamble+sync+payload trit
  sequence through Decoder.ProcessStream, plus FindTransmissionStart
  and Reset/Progress behavior (spec.md §8's timing-acquisition
  scenarios and §6's decoder surface).

AUTHOR
  David Sutton <davidsutton@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package receiver

import (
	"math"
	"testing"

	"github.com/ausocean/fesk/receiver/config"
)

// preambleSyncPrefix is spec.md §8's assumed preamble+sync trit
// prefix: the 12-symbol alternating preamble followed by Barker-13.
var preambleSyncPrefix = []int{
	2, 0, 2, 0, 2, 0, 2, 0, 2, 0, 2, 0,
	2, 2, 2, 2, 2, 0, 0, 2, 2, 0, 2, 0, 2,
}

// synthesizeTrits renders one symbol-period burst per trit at the
// tone frequency it selects, sampled at sampleRateHz, and returns the
// concatenated mono Float32 buffer.
func synthesizeTrits(trits []int, tones [3]float64, sampleRateHz int, periodMs float64) []float32 {
	samplesPerSymbol := int(periodMs * float64(sampleRateHz) / 1000)
	out := make([]float32, 0, len(trits)*samplesPerSymbol)
	for _, trit := range trits {
		freq := tones[trit]
		for i := 0; i < samplesPerSymbol; i++ {
			t := float64(i) / float64(sampleRateHz)
			out = append(out, float32(0.8*math.Sin(2*math.Pi*freq*t)))
		}
	}
	return out
}

func TestProcessStreamRecoversScenario1Frame(t *testing.T) {
	cfg := config.Default()
	trits := append(append([]int(nil), preambleSyncPrefix...), scenario1Trits...)
	audio := synthesizeTrits(trits, cfg.ToneFrequenciesHz, cfg.SampleRateHz, cfg.SymbolDurationMs())

	d := NewDecoder(cfg)
	frame, ok := d.ProcessStream(audio, cfg.SampleRateHz, cfg.ChunkMs)
	if !ok || frame == nil {
		t.Fatal("ProcessStream did not recover a frame from synthesized audio")
	}
	if string(frame.Payload) != "test" {
		t.Errorf("Payload = %q, want %q", frame.Payload, "test")
	}
	if frame.CRC != 0x1FC6 {
		t.Errorf("CRC = 0x%04X, want 0x1FC6", frame.CRC)
	}
	if !frame.IsValid {
		t.Error("IsValid = false, want true")
	}
}

func TestProcessStreamNoSignalReturnsFalse(t *testing.T) {
	cfg := config.Default()
	cfg.MaxChunks = 20 // Keep the silent run short; this is only testing non-acquisition.
	silence := make([]float32, cfg.SampleRateHz) // 1s of silence.

	d := NewDecoder(cfg)
	frame, ok := d.ProcessStream(silence, cfg.SampleRateHz, cfg.ChunkMs)
	if ok || frame != nil {
		t.Fatalf("expected no frame from silence, got %+v", frame)
	}
}

// TestFindTransmissionStartSkipsLeadingSilence is spec.md §8's
// "recording with 400ms of initial silence" scenario: the detected
// start must land in [300, 500]ms.
func TestFindTransmissionStartSkipsLeadingSilence(t *testing.T) {
	const sampleRateHz = 44100
	silenceMs := 400.0
	silenceSamples := int(silenceMs * sampleRateHz / 1000)

	silence := make([]float32, silenceSamples)
	tone := synthesizeTrits([]int{2, 0, 2, 0}, [3]float64{2400, 3000, 3600}, sampleRateHz, 100)
	buffer := append(silence, tone...)

	startMs, ok := FindTransmissionStart(buffer, sampleRateHz, 0.01)
	if !ok {
		t.Fatal("expected FindTransmissionStart to find the transmission")
	}
	if startMs < 300 || startMs > 500 {
		t.Errorf("startMs = %v, want in [300, 500]", startMs)
	}
}

func TestFindTransmissionStartAllSilenceReturnsFalse(t *testing.T) {
	buffer := make([]float32, 44100)
	if _, ok := FindTransmissionStart(buffer, 44100, 0.01); ok {
		t.Error("expected FindTransmissionStart to report nothing found in pure silence")
	}
}

func TestDecoderResetClearsProgressAndPhase(t *testing.T) {
	cfg := config.Default()
	trits := append(append([]int(nil), preambleSyncPrefix...), scenario1Trits...)
	audio := synthesizeTrits(trits, cfg.ToneFrequenciesHz, cfg.SampleRateHz, cfg.SymbolDurationMs())

	d := NewDecoder(cfg)
	if _, ok := d.ProcessStream(audio, cfg.SampleRateHz, cfg.ChunkMs); !ok {
		t.Fatal("setup: expected a frame before testing Reset")
	}

	// A successful emit already resets acquisition; Reset should also
	// clear the ambient bookkeeping a fresh Decoder starts with.
	d.Reset()
	p := d.Progress()
	if p.Phase != Searching {
		t.Errorf("Phase after Reset = %v, want Searching", p.Phase)
	}
	if p.TritCount != 0 {
		t.Errorf("TritCount after Reset = %d, want 0", p.TritCount)
	}
	if p.PilotGapsTolerated != 0 {
		t.Errorf("PilotGapsTolerated after Reset = %d, want 0", p.PilotGapsTolerated)
	}
	if p.LastAnomaly != "" {
		t.Errorf("LastAnomaly after Reset = %q, want empty", p.LastAnomaly)
	}
}

func TestDecoderProgressReflectsSearchingPhase(t *testing.T) {
	d := NewDecoder(config.Default())
	p := d.Progress()
	if p.Phase != Searching {
		t.Errorf("Phase of a fresh Decoder = %v, want Searching", p.Phase)
	}
	if p.ProgressPercent != 0 {
		t.Errorf("ProgressPercent of a fresh Decoder = %v, want 0", p.ProgressPercent)
	}
}
