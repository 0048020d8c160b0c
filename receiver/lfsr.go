/*
NAME
  lfsr.go

DESCRIPTION
  lfsr.go implements the 9-bit Fibonacci LFSR scrambler/descrambler
  (§4.8). Scrambling is its own inverse: running the same LFSR from
  the same seed over scrambled data recovers the original bytes.

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

import "github.com/ausocean/fesk/receiver/config"

// LFSR is the 9-bit scrambler state. The zero value is not usable;
// construct with NewLFSR so the state starts at the wire seed.
type LFSR struct {
	state uint16
}

// NewLFSR returns an LFSR initialized to the wire seed (0x1FF).
func NewLFSR() *LFSR {
	return &LFSR{state: config.LFSRSeed}
}

// Byte scrambles or descrambles a single byte, advancing the LFSR's
// state by 8 steps, LSB first.
func (l *LFSR) Byte(in byte) byte {
	var out byte
	for i := uint(0); i < 8; i++ {
		lfsrBit := byte(l.state & 1)
		inBit := (in >> i) & 1
		out |= (inBit ^ lfsrBit) << i

		feedback := ((l.state >> 8) ^ (l.state >> 4)) & 1
		l.state = ((l.state << 1) | feedback) & 0x1FF
	}
	return out
}

// Bytes scrambles or descrambles data as one continuous run, in the
// order given, and returns a new slice.
func (l *LFSR) Bytes(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = l.Byte(b)
	}
	return out
}
