/*
NAME
  frame.go

DESCRIPTION
  frame.go assembles a validated Frame from an accumulated trit buffer
  (§4.10): pilot removal, canonical base-3 conversion, header parse,
  descrambling, and CRC check.

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
	"github.com/pkg/errors"

	"github.com/ausocean/fesk/receiver/config"
)

// Frame is a validated header+payload+CRC triple recovered from a
// trit stream.
type Frame struct {
	PayloadLength int
	Payload       []byte
	CRC           uint16
	IsValid       bool
}

// ErrNeedMoreData indicates the trit buffer does not yet hold enough
// bytes to finish assembling a frame; the caller should keep
// accumulating trits and try again.
var ErrNeedMoreData = errors.New("fesk: need more data")

// ErrInvalidLength indicates the descrambled header's payload_length
// field falls outside [1, 64].
var ErrInvalidLength = errors.New("fesk: invalid payload length")

const headerLen = 2
const crcLen = 2

// assembleFrame implements spec.md §4.10's algorithm over rawTrits,
// the trit buffer accumulated since end-of-sync. It returns the
// assembled frame, the number of data trits (post pilot-removal) that
// were consumed, the number of pilot gaps tolerated during removal,
// and an error. ErrNeedMoreData and ErrInvalidLength are not
// terminal: per the error policy, the caller keeps collecting trits
// and retries rather than aborting acquisition.
func assembleFrame(rawTrits []int, pilotIntervalTrits int) (Frame, int, int, error) {
	data, pilotGaps := RemovePilots(rawTrits, pilotIntervalTrits)

	raw := TritsToBytes(data, 0)
	if len(raw) < headerLen+1 {
		return Frame{}, len(data), pilotGaps, ErrNeedMoreData
	}

	lfsr := NewLFSR()
	header := lfsr.Bytes(raw[:headerLen])
	payloadLength := int(header[0])<<8 | int(header[1])

	if payloadLength < config.MinPayloadLen || payloadLength > config.MaxPayloadLen {
		return Frame{}, len(data), pilotGaps, errors.Wrapf(ErrInvalidLength, "payload_length=%d", payloadLength)
	}

	total := headerLen + payloadLength + crcLen
	if len(raw) < total {
		return Frame{}, len(data), pilotGaps, ErrNeedMoreData
	}

	payload := lfsr.Bytes(raw[headerLen : headerLen+payloadLength])
	receivedCRC := uint16(raw[headerLen+payloadLength])<<8 | uint16(raw[headerLen+payloadLength+1])
	computedCRC := CRC16CCITT(payload)

	return Frame{
		PayloadLength: payloadLength,
		Payload:       payload,
		CRC:           receivedCRC,
		IsValid:       receivedCRC == computedCRC,
	}, len(data), pilotGaps, nil
}
