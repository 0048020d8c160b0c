/*
NAME
  crc_test.go

DESCRIPTION
  crc_test.go tests CRC-16/CCITT determinism and bit-sensitivity
  (spec.md §8's "CRC is deterministic... flipping any bit of B changes
  crc(B)").

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

import "testing"

func TestCRC16CCITTKnownVector(t *testing.T) {
	// "test" is the descrambled payload of spec.md §8 scenario 1; its
	// CRC is 0x1FC6.
	payload := []byte("test")
	got := CRC16CCITT(payload)
	want := uint16(0x1FC6)
	if got != want {
		t.Errorf("CRC16CCITT(%q) = 0x%04X, want 0x%04X", payload, got, want)
	}
}

func TestCRC16CCITTDeterministic(t *testing.T) {
	data := []byte("deterministic payload")
	a := CRC16CCITT(data)
	b := CRC16CCITT(data)
	if a != b {
		t.Errorf("CRC not deterministic: %04X != %04X", a, b)
	}
}

func TestCRC16CCITTBitFlipChangesCRC(t *testing.T) {
	data := []byte("four56")
	base := CRC16CCITT(data)
	for byteIdx := range data {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), data...)
			flipped[byteIdx] ^= 1 << bit
			if got := CRC16CCITT(flipped); got == base {
				t.Errorf("flipping byte %d bit %d did not change CRC", byteIdx, bit)
			}
		}
	}
}
