/*
NAME
  wavfile.go

DESCRIPTION
  wavfile.go implements WAVFile, a file-backed Source adapted from the
  teacher's device/file package: it decodes an entire WAV or FLAC
  recording up front via codec/wav, then streams it back in
  fixed-size mono float32 chunks, optionally looping back to the start
  once exhausted (§4.11's WAV/FLAC collaborator feeding a Source).

AUTHOR
  David Sutton <davidsutton@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ausocean/fesk/codec/wav"
	"github.com/ausocean/utils/logging"
)

// WAVFileConfig configures a WAVFile source.
type WAVFileConfig struct {
	// Path is the location of the WAV or FLAC recording to decode.
	// FLAC is selected by a ".flac" extension; anything else is
	// decoded as canonical RIFF/WAVE PCM.
	Path string

	// Loop, when true, restarts playback from the beginning once the
	// decoded buffer is exhausted instead of returning io.EOF.
	Loop bool

	// ChunkMs is the size, in milliseconds, of each chunk Next
	// returns. Defaults to 100ms.
	ChunkMs int
}

// WAVFile is a Source backed by a decoded WAV/FLAC file, adapted from
// the teacher's file.AVFile.
type WAVFile struct {
	l   logging.Logger
	cfg WAVFileConfig
	set bool

	mu           sync.Mutex
	samples      []float32
	sampleRateHz int
	pos          int
	isRunning    bool
}

// NewWAVFile returns a WAVFile that logs through l.
func NewWAVFile(l logging.Logger) *WAVFile { return &WAVFile{l: l} }

// NewWAVFileWith returns a WAVFile already configured with cfg, so Set
// need not be called before Start.
func NewWAVFileWith(l logging.Logger, cfg WAVFileConfig) *WAVFile {
	return &WAVFile{l: l, cfg: cfg, set: true}
}

// Name returns the source's name.
func (f *WAVFile) Name() string { return "WAVFile" }

// Set configures f with cfg, to be applied on the next Start.
func (f *WAVFile) Set(cfg WAVFileConfig) error {
	f.cfg = cfg
	f.set = true
	return nil
}

// Start decodes the configured file in full and resets playback to
// its beginning.
func (f *WAVFile) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.set {
		return errors.New("WAVFile has not been set with config")
	}

	r, err := os.Open(f.cfg.Path)
	if err != nil {
		return fmt.Errorf("could not open audio file: %w", err)
	}
	defer r.Close()

	var samples []float32
	var rate int
	if strings.EqualFold(filepath.Ext(f.cfg.Path), ".flac") {
		samples, rate, err = wav.DecodeFLAC(r)
	} else {
		samples, rate, err = wav.Decode(r)
	}
	if err != nil {
		return fmt.Errorf("could not decode audio file: %w", err)
	}

	f.samples = samples
	f.sampleRateHz = rate
	f.pos = 0
	f.isRunning = true
	return nil
}

// Stop halts playback; subsequent Next calls return io.EOF.
func (f *WAVFile) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isRunning = false
	return nil
}

// IsRunning reports whether Start has been called and Stop has not.
func (f *WAVFile) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isRunning
}

// Next returns the next chunk of decoded mono float32 PCM, looping
// back to the start of the file if Loop is set, or returning io.EOF
// once the decoded buffer is exhausted.
func (f *WAVFile) Next() ([]float32, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.isRunning {
		if f.samples != nil {
			return nil, f.sampleRateHz, io.EOF
		}
		return nil, 0, errors.New("WAVFile is not started")
	}

	chunkMs := f.cfg.ChunkMs
	if chunkMs <= 0 {
		chunkMs = 100
	}
	n := chunkMs * f.sampleRateHz / 1000
	if n <= 0 {
		n = len(f.samples)
	}

	if f.pos >= len(f.samples) {
		if !f.cfg.Loop {
			return nil, f.sampleRateHz, io.EOF
		}
		if f.l != nil {
			f.l.Info("looping input file")
		}
		f.pos = 0
	}

	end := f.pos + n
	if end > len(f.samples) {
		end = len(f.samples)
	}
	chunk := f.samples[f.pos:end]
	f.pos = end
	return chunk, f.sampleRateHz, nil
}
