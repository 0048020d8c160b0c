/*
NAME
  source.go

DESCRIPTION
  source.go defines Source, the PCM input collaborator contract
  adapted from the teacher's device.AVDevice (§4.12, §6): something
  that can be started, stopped, and polled for successive chunks of
  mono float32 PCM. Mic (mic.go) and WAVFile (wavfile.go) are its two
  implementations.

AUTHOR
  David Sutton <davidsutton@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package source provides PCM input collaborators for the FESK
// receiver: a live microphone source and a WAV/FLAC file source, both
// producing the mono float32 boundary format spec.md §6 requires.
package source

import "fmt"

// Source is a configurable audio input from which mono float32 PCM
// chunks can be obtained, adapted from device.AVDevice and trimmed to
// the audio-only contract this receiver needs: no Set(config.Config)
// (each implementation has its own config type), and Next returns
// samples directly instead of raw bytes through io.Reader, since every
// caller in this repo wants float32 PCM, never an opaque byte stream.
type Source interface {
	// Name returns a human-readable name for logging.
	Name() string

	// Start begins producing audio. It may only be called once per
	// instance.
	Start() error

	// Stop ends production; subsequent Next calls return io.EOF once
	// buffered data is drained.
	Stop() error

	// IsRunning reports whether Start has been called and Stop has
	// not.
	IsRunning() bool

	// Next returns the next chunk of mono float32 PCM in [-1, 1]
	// together with the sample rate it was captured or decoded at.
	Next() ([]float32, int, error)
}

// MultiError aggregates multiple configuration errors, adapted from
// device.MultiError: a Source's Setup may fall back to defaults for
// several bad fields at once and wants to report all of them.
type MultiError []error

func (me MultiError) Error() string {
	if len(me) == 0 {
		panic("source: invalid use of MultiError")
	}
	return fmt.Sprintf("%v", []error(me))
}
