/*
NAME
  crc.go

DESCRIPTION
  crc.go computes CRC-16/CCITT over recovered payload bytes (§4.9).

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

// CRC16CCITT computes CRC-16/CCITT (polynomial 0x1021, initial value
// 0xFFFF, no final XOR, MSB-first bit processing) over data. No
// CRC-16 library appears anywhere in the retrieval pack, so this is
// hand-rolled, grounded on the same bit-at-a-time MSB-first shape as
// other_examples' crc16CCITTFalse reference implementation.
func CRC16CCITT(data []byte) uint16 {
	crc := config.CRCInit
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ config.CRCPoly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
