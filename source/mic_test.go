/*
NAME
  mic_test.go

DESCRIPTION
  mic_test.go tests the Mic source. TestMicIsRunning is skipped in
  environments without a recording device, consistent with the
  teacher's device/alsa test.

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
	"bytes"
	"strconv"
	"testing"
	"time"

	"github.com/ausocean/utils/logging"
)

func TestMicIsRunning(t *testing.T) {
	const dur = 250 * time.Millisecond

	l := logging.New(logging.Debug, &bytes.Buffer{}, true) // Discard logs.
	d := NewMic(l)

	err := d.Setup(MicConfig{
		SampleRateHz: 1000,
		Channels:     1,
		BitDepth:     16,
		RecPeriodS:   1,
	})
	switch err := err.(type) {
	case nil:
	case MultiError:
		t.Logf("errors from configuring mic: %s", err.Error())
	default:
		t.Skip(err)
	}

	if err := d.Start(); err != nil {
		t.Fatalf("could not start mic: %v", err)
	}

	time.Sleep(dur)

	if !d.IsRunning() {
		t.Error("mic isn't running, when it should be")
	}

	if err := d.Stop(); err != nil {
		t.Error(err)
	}

	time.Sleep(dur)

	if d.IsRunning() {
		t.Error("mic is running, when it should not be")
	}
}

var powerTests = []struct {
	in  int
	out int
}{
	{36, 32},
	{47, 32},
	{3, 4},
	{46, 32},
	{7, 8},
	{2, 2},
	{757, 512},
	{2464, 2048},
	{18980, 16384},
	{70000, 65536},
	{8192, 8192},
	{2048, 2048},
	{65536, 65536},
	{-2048, 1},
	{-127, 1},
	{-1, 1},
	{0, 1},
	{1, 2},
}

func TestNearestPowerOfTwo(t *testing.T) {
	for _, tt := range powerTests {
		t.Run(strconv.Itoa(tt.in), func(t *testing.T) {
			v := nearestPowerOfTwo(tt.in)
			if v != tt.out {
				t.Errorf("got %v, want %v", v, tt.out)
			}
		})
	}
}
