/*
NAME
  base3.go

DESCRIPTION
  base3.go converts between ternary symbol sequences and bytes using
  a plain, unpadded canonical base-3 big-integer fold (§4.7), plus the
  inverse used by tests and by transmission-side tooling. math/big is
  used here as a justified exception: no arbitrary-precision integer
  library appears anywhere in the retrieval pack, and this conversion
  is inherently unbounded in width.

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

import "math/big"

var big3 = big.NewInt(3)

// TritsToBytes folds trits (each 0, 1 or 2) into a single big integer
// V, via V ← 3V + t for each trit in order, then returns V's minimal
// big-endian byte representation. If V is zero the result is a single
// zero byte rather than an empty slice. If minBytes is greater than
// zero, the result is left-zero-padded to that width; the frame
// assembler does not use this, since the wire format's "Convert to
// bytes" step is the plain canonical form, but callers converting
// fixed-width fields (such as a known payload length) can ask for it.
func TritsToBytes(trits []int, minBytes int) []byte {
	v := new(big.Int)
	for _, t := range trits {
		v.Mul(v, big3)
		v.Add(v, big.NewInt(int64(t)))
	}

	raw := v.Bytes()
	if len(raw) == 0 {
		raw = []byte{0}
	}
	if minBytes > 0 && len(raw) < minBytes {
		padded := make([]byte, minBytes)
		copy(padded[minBytes-len(raw):], raw)
		return padded
	}
	return raw
}

// BytesToTrits is the inverse of TritsToBytes: it treats data as a
// big-endian big integer and returns its base-3 digits, most
// significant first, using exactly tritCount digits (left-padded with
// zero trits if necessary). It exists for round-trip testing and for
// transmit-side tooling; the receiver's decode path never calls it.
func BytesToTrits(data []byte, tritCount int) []int {
	v := new(big.Int).SetBytes(data)
	trits := make([]int, tritCount)
	rem := new(big.Int)
	for i := tritCount - 1; i >= 0; i-- {
		v.DivMod(v, big3, rem)
		trits[i] = int(rem.Int64())
	}
	return trits
}
