/*
NAME
  decode.go

DESCRIPTION
  decode.go implements the WAV/FLAC collaborator contract: reading a
  canonical RIFF/WAVE or FLAC audio file into the normalized mono
  float32 buffer the FESK receiver consumes, and an optional
  normalization pass that scales a buffer toward a target peak.

AUTHOR
  David Sutton <davidsutton@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package wav

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/mewkiz/flac"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	govaudio "github.com/go-audio/audio"
	govwav "github.com/go-audio/wav"

	"github.com/ausocean/fesk/codec/pcm"
)

// Gain describes the effect of a Normalize pass, so callers can log or
// surface the applied gain alongside pre/post peak and RMS levels.
type Gain struct {
	Applied  float64
	PrePeak  float64
	PostPeak float64
	PreRMS   float64
	PostRMS  float64
}

// Decode reads canonical RIFF/WAVE PCM from r and returns normalized
// mono float32 samples in [-1, 1] together with the file's sample
// rate, downmixing stereo input via codec/pcm.StereoToMono first. This
// implements the WAV collaborator contract of the FESK receiver spec.
func Decode(r io.Reader) (samples []float32, sampleRateHz int, err error) {
	rs, err := asReadSeeker(r)
	if err != nil {
		return nil, 0, err
	}

	d := govwav.NewDecoder(rs)
	if !d.IsValidFile() {
		return nil, 0, errors.New("not a valid wav file")
	}
	ibuf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, errors.Wrap(err, "could not read wav pcm buffer")
	}
	return decodeIntBuffer(ibuf)
}

// DecodeFLAC reads a FLAC-compressed recording from r and returns
// normalized mono float32 samples in [-1, 1] together with the file's
// sample rate, for recordings captured in lossless-compressed form.
// Only the first channel of a multi-channel stream is kept.
func DecodeFLAC(r io.Reader) (samples []float32, sampleRateHz int, err error) {
	stream, err := flac.Parse(r)
	if err != nil {
		return nil, 0, errors.Wrap(err, "could not parse flac stream")
	}
	rate := int(stream.Info.SampleRate)

	var ints []int
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, errors.Wrap(err, "could not parse flac frame")
		}
		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			ints = append(ints, int(frame.Subframes[0].Samples[i]))
		}
	}

	ibuf := &govaudio.IntBuffer{
		Format:         &govaudio.Format{SampleRate: rate, NumChannels: 1}, // Only subframe 0 was collected.
		Data:           ints,
		SourceBitDepth: int(stream.Info.BitsPerSample),
	}
	return decodeIntBuffer(ibuf)
}

// decodeIntBuffer downmixes and normalizes a go-audio IntBuffer into
// the receiver's mono float32 boundary format (spec §6).
func decodeIntBuffer(ibuf *govaudio.IntBuffer) ([]float32, int, error) {
	depth := ibuf.SourceBitDepth
	if depth == 0 {
		depth = 16
	}
	raw, err := intsToS16LE(ibuf.Data, depth)
	if err != nil {
		return nil, 0, err
	}

	buf := pcm.Buffer{
		Format: pcm.BufferFormat{
			SFormat:  pcm.S16_LE,
			Rate:     uint(ibuf.Format.SampleRate),
			Channels: uint(ibuf.Format.NumChannels),
		},
		Data: raw,
	}
	mono, err := pcm.StereoToMono(buf)
	if err != nil {
		return nil, 0, errors.Wrap(err, "could not downmix to mono")
	}
	floats, err := pcm.ToFloat32(mono)
	if err != nil {
		return nil, 0, errors.Wrap(err, "could not convert to float32")
	}
	return floats, ibuf.Format.SampleRate, nil
}

// intsToS16LE rescales samples of the given bit depth to 16-bit and
// packs them little-endian, so downstream code always deals in S16_LE.
func intsToS16LE(samples []int, bitDepth int) ([]byte, error) {
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, errors.Errorf("unsupported source bit depth %d", bitDepth)
	}
	shift := bitDepth - 16
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		var v int
		if shift > 0 {
			v = s >> uint(shift)
		} else if shift < 0 {
			v = s << uint(-shift)
		} else {
			v = s
		}
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(int16(v)))
	}
	return out, nil
}

// asReadSeeker adapts an io.Reader to an io.ReadSeeker, buffering the
// entire stream in memory if necessary. Files and *bytes.Reader pass
// through unchanged.
func asReadSeeker(r io.Reader) (io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "could not buffer audio stream")
	}
	return bytes.NewReader(b), nil
}

// Normalize scales samples so that their peak magnitude reaches
// targetPeak, bounded by maxGain, and reports the applied gain and
// pre/post peak/RMS levels (spec §6's "optional normalization pass").
func Normalize(samples []float32, targetPeak, maxGain float64) ([]float32, Gain) {
	prePeak, preRMS := peakRMS(samples)

	gain := maxGain
	if prePeak > 0 {
		gain = targetPeak / prePeak
		if gain > maxGain {
			gain = maxGain
		}
	}
	if gain < 0 {
		gain = 0
	}

	out := make([]float32, len(samples))
	for i, v := range samples {
		scaled := float64(v) * gain
		if scaled > 1 {
			scaled = 1
		} else if scaled < -1 {
			scaled = -1
		}
		out[i] = float32(scaled)
	}

	postPeak, postRMS := peakRMS(out)
	return out, Gain{
		Applied:  gain,
		PrePeak:  prePeak,
		PostPeak: postPeak,
		PreRMS:   preRMS,
		PostRMS:  postRMS,
	}
}

// peakRMS returns the peak absolute magnitude and RMS level of samples.
func peakRMS(samples []float32) (peak, rms float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	sq := make([]float64, len(samples))
	for i, v := range samples {
		m := math.Abs(float64(v))
		if m > peak {
			peak = m
		}
		sq[i] = float64(v) * float64(v)
	}
	rms = math.Sqrt(stat.Mean(sq, nil))
	return peak, rms
}
