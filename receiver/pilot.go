/*
NAME
  pilot.go

DESCRIPTION
  pilot.go removes periodic pilot symbols from a decoded trit stream
  (§4.6), tolerating a missing pilot pair at an expected boundary
  rather than aborting the frame.

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

// RemovePilots strips pilot symbol pairs from trits, which are
// expected every intervalTrits data trits (counting only data trits,
// not the pilots themselves). A pilot boundary that does not carry
// the expected (0, 2) pair is tolerated: the two trits at that
// position are treated as data and the gap is counted in pilotGaps,
// rather than failing the frame outright, since dropped pilots are a
// noise artifact rather than a framing error.
func RemovePilots(trits []int, intervalTrits int) (data []int, pilotGaps int) {
	if intervalTrits <= 0 {
		return append([]int(nil), trits...), 0
	}

	data = make([]int, 0, len(trits))
	i := 0
	dataCount := 0
	for i < len(trits) {
		if dataCount > 0 && dataCount%intervalTrits == 0 && i+1 < len(trits) &&
			trits[i] == config.PilotSequence[0] && trits[i+1] == config.PilotSequence[1] {
			i += 2
			continue
		}
		if dataCount > 0 && dataCount%intervalTrits == 0 {
			pilotGaps++
		}
		data = append(data, trits[i])
		dataCount++
		i++
	}
	return data, pilotGaps
}
