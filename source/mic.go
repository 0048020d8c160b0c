/*
NAME
  mic.go

DESCRIPTION
  mic.go implements Mic, a live-microphone Source adapted from the
  teacher's device/alsa package: it captures raw PCM from an ALSA
  input device into a ring buffer on a background goroutine, then
  downmixes/resamples each captured chunk before it enters the ring
  buffer and converts it to mono float32 on demand in Next, so
  the FESK decoder can run against a live microphone, not just
  pre-recorded files (§4.12).

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
	"sync"
	"time"

	yalsa "github.com/yobert/alsa"

	"github.com/ausocean/fesk/codec/pcm"
	"github.com/ausocean/utils/logging"
	"github.com/ausocean/utils/pool"
)

const (
	rbTimeout     = 100 * time.Millisecond
	rbNextTimeout = 2000 * time.Millisecond
	rbLen         = 200
	pbSize        = 11520000         // 60 seconds of S16_LE mono pcm data at 96kHz.
	longRecLength = 10 * time.Second // Longer record period to minimise skips between recordings.
)

// "running" means the input goroutine is reading from the ALSA device and writing to the ringbuffer.
// "paused" means the input routine is sleeping until unpaused or stopped.
// "stopped" means the input routine is stopped and the ALSA device is closed.
const (
	running = iota + 1
	paused
	stopped
)

const (
	defaultSampleRate = 44100
	defaultBitDepth   = 16
	defaultChannels   = 1
	defaultRecPeriod  = 0.5
)

// Configuration field errors.
var (
	errInvalidSampleRate = errors.New("invalid sample rate, defaulting")
	errInvalidChannels   = errors.New("invalid number of channels, defaulting")
	errInvalidBitDepth   = errors.New("invalid bitdepth, defaulting")
	errInvalidRecPeriod  = errors.New("invalid record period, defaulting")
)

// MicConfig parameterizes a Mic: the target mono float32 sample rate
// the FESK decoder expects, the capture bit depth, and the recording
// period the ring buffer is chunked at.
type MicConfig struct {
	SampleRateHz int
	Channels     uint
	BitDepth     uint
	RecPeriodS   float64
	Title        string // ALSA device title; empty selects the first recording device found.
}

// Mic captures live audio from an ALSA input device and exposes it as
// mono float32 chunks for the FESK decoder. It implements Source.
type Mic struct {
	l      logging.Logger
	mode   uint8
	mu     sync.Mutex
	title  string
	dev    *yalsa.Device
	pb     pcm.Buffer   // Raw audio straight from ALSA.
	buf    *pool.Buffer // Ring buffer of formatted audio ready to be read.
	MicConfig
}

// NewMic returns a Mic that logs through l.
func NewMic(l logging.Logger) *Mic { return &Mic{l: l} }

// Name returns the source's name.
func (d *Mic) Name() string { return "Mic" }

// Setup validates c, defaulting any unusable field and collecting the
// defaulting decisions into a MultiError, then opens the ALSA device
// and starts the background capture goroutine in a paused state.
func (d *Mic) Setup(c MicConfig) error {
	var errs MultiError
	if c.SampleRateHz <= 0 {
		errs = append(errs, errInvalidSampleRate)
		c.SampleRateHz = defaultSampleRate
	}
	if c.Channels <= 0 {
		errs = append(errs, errInvalidChannels)
		c.Channels = defaultChannels
	}
	if c.BitDepth <= 0 {
		errs = append(errs, errInvalidBitDepth)
		c.BitDepth = defaultBitDepth
	}
	if c.RecPeriodS <= 0 {
		errs = append(errs, errInvalidRecPeriod)
		c.RecPeriodS = defaultRecPeriod
	}
	d.MicConfig = c
	d.title = c.Title

	if err := d.open(); err != nil {
		return fmt.Errorf("failed to open mic: %w", err)
	}

	ab := d.dev.NewBufferDuration(longRecLength)
	sf, err := pcm.SFFromString(ab.Format.SampleFormat.String())
	if err != nil {
		return fmt.Errorf("unable to get sample format from string: %w", err)
	}
	d.pb = pcm.Buffer{
		Format: pcm.BufferFormat{
			SFormat:  sf,
			Channels: uint(ab.Format.Channels),
			Rate:     uint(ab.Format.Rate),
		},
		Data: ab.Data,
	}

	cs := pcm.DataSize(uint(d.pb.Format.Rate), d.pb.Format.Channels, d.BitDepth, d.RecPeriodS)
	d.buf = pool.NewBuffer(rbLen, cs, rbTimeout)
	pool.MaxAlloc(pbSize * 2)

	d.mode = paused
	go d.input()

	if len(errs) != 0 {
		return errs
	}
	return nil
}

// Start begins recording audio into the ring buffer.
func (d *Mic) Start() error {
	d.mu.Lock()
	mode := d.mode
	d.mu.Unlock()
	switch mode {
	case paused:
		d.mu.Lock()
		d.mode = running
		d.mu.Unlock()
		return nil
	case stopped:
		return errors.New("mic is stopped")
	case running:
		return nil
	default:
		return fmt.Errorf("invalid mode: %d", mode)
	}
}

// Stop stops recording audio and closes the device. Once stopped, a
// Mic cannot be restarted.
func (d *Mic) Stop() error {
	d.mu.Lock()
	d.mode = stopped
	d.mu.Unlock()
	return nil
}

// IsRunning reports whether Start has been called and Stop has not.
func (d *Mic) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode == running
}

// open opens the recording device with the configured title. If title
// is empty, the first recording device found is used.
func (d *Mic) open() error {
	if d.dev != nil {
		d.l.Debug("closing device", "title", d.title)
		d.dev.Close()
		d.dev = nil
	}

	d.l.Debug("opening sound card")
	cards, err := yalsa.OpenCards()
	if err != nil {
		return err
	}
	defer yalsa.CloseCards(cards)

	d.l.Debug("finding audio device")
	for _, card := range cards {
		devices, err := card.Devices()
		if err != nil {
			continue
		}
		for _, dev := range devices {
			if dev.Type != yalsa.PCM || !dev.Record {
				continue
			}
			if dev.Title == d.title || d.title == "" {
				d.dev = dev
				break
			}
		}
	}
	if d.dev == nil {
		return errors.New("no ALSA recording device found")
	}

	d.l.Debug("opening ALSA device", "title", d.dev.Title)
	if err := d.dev.Open(); err != nil {
		return err
	}

	channels, err := d.dev.NegotiateChannels(int(d.Channels))
	if err != nil && d.Channels == 1 {
		d.l.Info("device is unable to record in mono, trying stereo", "error", err)
		channels, err = d.dev.NegotiateChannels(2)
	}
	if err != nil {
		return fmt.Errorf("device is unable to record with requested number of channels: %w", err)
	}
	d.l.Debug("alsa device channels set", "channels", channels)

	// Try to negotiate a rate divisible by the wanted rate, so a
	// later resample is exact.
	var rates = [8]int{8000, 16000, 32000, 44100, 48000, 88200, 96000, 192000}
	var rate int
	foundRate := false
	for _, r := range rates {
		if r < d.SampleRateHz {
			continue
		}
		if r%d.SampleRateHz == 0 {
			rate, err = d.dev.NegotiateRate(r)
			if err == nil {
				foundRate = true
				d.l.Debug("alsa device sample rate set", "rate", rate)
				break
			}
		}
	}
	if !foundRate {
		d.l.Warning("unable to sample at requested rate, default used", "rateRequested", d.SampleRateHz)
		rate, err = d.dev.NegotiateRate(defaultSampleRate)
		if err != nil {
			return err
		}
		d.l.Debug("alsa device sample rate set", "rate", rate)
	}

	var aFmt yalsa.FormatType
	switch d.BitDepth {
	case 16:
		aFmt = yalsa.S16_LE
	case 32:
		aFmt = yalsa.S32_LE
	default:
		return fmt.Errorf("unsupported sample bits %v", d.BitDepth)
	}
	devFmt, err := d.dev.NegotiateFormat(aFmt)
	if err != nil {
		return err
	}
	var bitdepth int
	switch devFmt {
	case yalsa.S16_LE:
		bitdepth = 16
	case yalsa.S32_LE:
		bitdepth = 32
	default:
		return fmt.Errorf("unsupported sample bits %v", d.BitDepth)
	}
	d.l.Debug("alsa device bit depth set", "bitdepth", bitdepth)

	const wantPeriod = 0.05 // seconds; a sensible low-ish latency period.
	bytesPerSecond := rate * channels * (bitdepth / 8)
	wantPeriodSize := int(float64(bytesPerSecond) * wantPeriod)
	periodSize, err := d.dev.NegotiatePeriodSize(nearestPowerOfTwo(wantPeriodSize))
	if err != nil {
		return err
	}
	d.l.Debug("alsa device period size set", "periodsize", periodSize)

	bufSize, err := d.dev.NegotiateBufferSize(periodSize * 4)
	if err != nil {
		return err
	}
	d.l.Debug("alsa device buffer size set", "buffersize", bufSize)

	if err := d.dev.Prepare(); err != nil {
		return err
	}
	d.l.Debug("successfully negotiated device params")
	return nil
}

// input continuously records audio and writes formatted chunks to the
// ring buffer, re-opening the device and retrying if ALSA errors out.
func (d *Mic) input() {
	ch := make(chan []byte, int(5*60/d.RecPeriodS))
	go d.chunkingRead(ch)

	goodCount, badCount := 0, 0
	ticker := time.NewTicker(time.Duration(d.RecPeriodS * float64(time.Second)))

	for {
		d.mu.Lock()
		mode := d.mode
		d.mu.Unlock()
		switch mode {
		case paused:
			time.Sleep(time.Duration(d.RecPeriodS * float64(time.Second)))
			continue
		case stopped:
			if d.dev != nil {
				d.l.Debug("closing ALSA device", "title", d.title)
				d.dev.Close()
				d.dev = nil
			}
			if err := d.buf.Close(); err != nil {
				d.l.Error("unable to close pool buffer", "error", err)
			}
			return
		}

		<-ticker.C
		timeout := time.NewTimer(time.Duration(d.RecPeriodS * float64(time.Second)))
		select {
		case d.pb.Data = <-ch:
		case <-timeout.C:
			continue
		}

		formatted := d.formatBuffer()
		n, err := d.buf.Write(formatted.Data)
		switch err {
		case nil:
			goodCount++
			d.l.Debug("wrote audio to ringbuffer", "length", n, "full chunks", d.buf.Len())
		case pool.ErrDropped:
			badCount++
			d.l.Warning("old audio data overwritten", "full chunks", d.buf.Len())
		default:
			badCount++
			d.l.Error("unexpected ringbuffer error", "error", err.Error())
		}
		_ = badCount
	}
}

// chunkingRead reads continuously from the ALSA device in long
// sections and chunks them at RecPeriodS onto ch.
func (d *Mic) chunkingRead(ch chan []byte) {
	cs := pcm.DataSize(uint(d.pb.Format.Rate), d.pb.Format.Channels, d.BitDepth, d.RecPeriodS)
	for {
		buf := d.dev.NewBufferDuration(time.Minute)
		if err := d.dev.Read(buf.Data); err != nil {
			d.l.Debug("read failed", "error", err.Error())
			if err := d.open(); err != nil {
				d.l.Fatal("reopening device failed", "error", err.Error())
				return
			}
			continue
		}
		go chunkingSender(buf.Data, cs, ch)
	}
}

func chunkingSender(buf []byte, size int, ch chan []byte) {
	for i := 0; i < len(buf); i += size {
		end := i + size
		if end > len(buf) {
			end = len(buf)
		}
		ch <- buf[i:end]
	}
}

// formatBuffer downmixes/resamples the raw ALSA buffer to the
// configured target channel count and sample rate.
func (d *Mic) formatBuffer() pcm.Buffer {
	formatted := d.pb
	if d.pb.Format.Channels != d.Channels && d.pb.Format.Channels == 2 && d.Channels == 1 {
		var err error
		formatted, err = pcm.StereoToMono(d.pb)
		if err != nil {
			d.l.Error("channel conversion failed", "error", err.Error())
			return d.pb
		}
	}
	if formatted.Format.Rate != uint(d.SampleRateHz) {
		var err error
		formatted, err = pcm.Resample(formatted, uint(d.SampleRateHz))
		if err != nil {
			d.l.Error("rate conversion failed", "error", err.Error())
			return d.pb
		}
	}
	return formatted
}

// Next reads the next ring-buffer chunk and converts it to mono
// float32, implementing Source.
func (d *Mic) Next() ([]float32, int, error) {
	chunk, err := d.buf.Next(rbNextTimeout)
	if err != nil {
		switch err {
		case io.EOF:
			return nil, d.SampleRateHz, io.EOF
		case pool.ErrTimeout:
			return nil, d.SampleRateHz, pool.ErrTimeout
		default:
			return nil, d.SampleRateHz, err
		}
	}
	defer chunk.Close()

	b := pcm.Buffer{
		Format: pcm.BufferFormat{SFormat: pcm.S16_LE, Rate: uint(d.SampleRateHz), Channels: 1},
		Data:   chunk.Bytes(),
	}
	floats, err := pcm.ToFloat32(b)
	if err != nil {
		return nil, d.SampleRateHz, err
	}
	return floats, d.SampleRateHz, nil
}

// nearestPowerOfTwo finds the nearest power of two to n, rounding up
// on ties. Negative or zero n returns 1; n == 1 returns 2.
// Source: https://stackoverflow.com/a/45859570
func nearestPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}
	if n == 1 {
		return 2
	}
	v := n
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	x := v >> 1
	if (v - n) > (n - x) {
		return x
	}
	return v
}
