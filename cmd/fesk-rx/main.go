/*
NAME
  main.go

DESCRIPTION
  fesk-rx is the FESK receiver's command-line driver (component 15): decode a
  single WAV/FLAC file, watch a directory for new recordings, or
  listen on a live microphone, printing the recovered payload (and
  optionally a tone-magnitude diagnostic plot) for each acquisition.

AUTHOR
  David Sutton <davidsutton@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package main is fesk-rx, the FESK receiver's command-line driver.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/fsnotify/fsnotify"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/fesk/codec/wav"
	"github.com/ausocean/fesk/diag"
	"github.com/ausocean/fesk/receiver"
	"github.com/ausocean/fesk/receiver/config"
	"github.com/ausocean/fesk/source"
	"github.com/ausocean/utils/logging"
)

// Logging configuration, in the style of cmd/looper and cmd/speaker.
const (
	logMaxSizeMB = 100
	logMaxBackup = 5
	logMaxAgeDay = 28
)

// yieldThresholdSamples bounds how large a buffer processBuffer can
// chew through before yielding to the scheduler between chunks (§5's
// "latency accommodation, not a concurrency requirement").
const yieldThresholdSamples = 44100 * 5 // 5s of audio at 44.1kHz.

func main() {
	inputPath := flag.String("input", "", "Path to a WAV/FLAC file to decode once.")
	watchDir := flag.String("watch", "", "Directory to watch for new .wav/.flac files to decode.")
	useMic := flag.Bool("mic", false, "Decode from the live microphone instead of a file.")
	legacy := flag.Bool("legacy", false, "Use the legacy 8000Hz/93.75ms configuration instead of the 44100Hz/100ms default.")
	logPath := flag.String("log", "", "Path to a rotating log file; stderr only if empty.")
	plotPath := flag.String("plot", "", "Path to write a tone-magnitude diagnostic PNG after each decode attempt.")
	daemonMode := flag.Bool("daemon", false, "Notify systemd readiness/watchdog when run under systemd (implies -mic).")
	verbose := flag.Bool("v", false, "Enable debug logging.")
	flag.Parse()

	level := logging.Info
	if *verbose {
		level = logging.Debug
	}
	var w io.Writer = os.Stderr
	if *logPath != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   *logPath,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackup,
			MaxAge:     logMaxAgeDay,
		})
	}
	l := logging.New(level, w, true)

	cfg := config.Default()
	if *legacy {
		cfg = config.Legacy8k()
	}
	cfg.Logger = l

	switch {
	case *useMic || *daemonMode:
		runMic(cfg, l, *plotPath, *daemonMode)
	case *watchDir != "":
		runWatch(cfg, l, *watchDir, *plotPath)
	case *inputPath != "":
		if err := decodeFile(cfg, l, *inputPath, *plotPath); err != nil {
			l.Error("decode failed", "path", *inputPath, "error", err.Error())
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "fesk-rx: one of -input, -watch or -mic is required")
		flag.Usage()
		os.Exit(2)
	}
}

// decodeFile decodes a single WAV/FLAC file and prints the result.
func decodeFile(cfg config.Config, l logging.Logger, path, plotPath string) error {
	samples, sampleRateHz, err := readAudioFile(path)
	if err != nil {
		return fmt.Errorf("could not read audio file: %w", err)
	}
	l.Info("decoding file", "path", path, "samples", len(samples), "sampleRateHz", sampleRateHz)

	d := receiver.NewDecoder(cfg)
	frame, ok := processBuffer(d, samples, sampleRateHz, cfg.ChunkMs)
	reportFrame(l, path, frame, ok)

	if plotPath != "" {
		writePlot(l, samples, sampleRateHz, cfg, plotPath)
	}
	if !ok {
		return fmt.Errorf("no valid frame acquired")
	}
	return nil
}

// runWatch decodes every new .wav/.flac file dropped into dir.
func runWatch(cfg config.Config, l logging.Logger, dir, plotPath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.Fatal("could not create file watcher", "error", err.Error())
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		l.Fatal("could not watch directory", "dir", dir, "error", err.Error())
	}
	l.Info("watching directory for new recordings", "dir", dir)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isAudioFile(event.Name) {
				continue
			}
			l.Info("new recording detected", "path", event.Name)
			if err := decodeFile(cfg, l, event.Name, plotPath); err != nil {
				l.Warning("decode failed", "path", event.Name, "error", err.Error())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.Error("watcher error", "error", err.Error())
		}
	}
}

// runMic decodes continuously from the live microphone, notifying
// systemd of readiness and watchdog liveness when daemonMode is set.
func runMic(cfg config.Config, l logging.Logger, plotPath string, daemonMode bool) {
	mic := source.NewMic(l)
	if err := mic.Setup(source.MicConfig{SampleRateHz: cfg.SampleRateHz, Channels: 1, BitDepth: 16, RecPeriodS: 0.5}); err != nil {
		if _, ok := err.(source.MultiError); !ok {
			l.Fatal("could not set up microphone", "error", err.Error())
		}
		l.Warning("microphone configured with defaults", "error", err.Error())
	}
	if err := mic.Start(); err != nil {
		l.Fatal("could not start microphone", "error", err.Error())
	}
	defer mic.Stop()

	if daemonMode {
		if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			l.Warning("systemd readiness notify failed", "error", err.Error())
		} else if ok {
			l.Debug("systemd readiness notified")
		}
	}

	var history []diag.Sample
	d := receiver.NewDecoder(cfg)
	watchdog := time.NewTicker(10 * time.Second)
	defer watchdog.Stop()

	for {
		select {
		case <-watchdog.C:
			if !daemonMode {
				continue
			}
			if ok, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				l.Warning("systemd watchdog notify failed", "error", err.Error())
			} else if ok {
				l.Debug("systemd watchdog pinged")
			}
		default:
		}

		chunk, sampleRateHz, err := mic.Next()
		if err != nil {
			l.Warning("microphone read failed", "error", err.Error())
			continue
		}
		if plotPath != "" {
			history = append(history, diag.CollectSamples(chunk, sampleRateHz, cfg.ToneFrequenciesHz)...)
		}

		frame, ok := d.ProcessAudio(chunk, sampleRateHz)
		if !ok {
			continue
		}
		reportFrame(l, "mic", frame, true)
		if plotPath != "" {
			if err := diag.PlotMagnitudes(history, plotPath); err != nil {
				l.Warning("could not write diagnostic plot", "error", err.Error())
			}
			history = nil
		}
	}
}

// processBuffer decodes samples. Buffers of up to yieldThresholdSamples
// go through ProcessStream; larger ones are fed chunk by chunk through
// ProcessAudio, yielding to the scheduler every 50 chunks (§5's latency
// accommodation, not a correctness dependency). The larger-buffer path
// applies neither the MaxChunks bound nor ProcessStream's fallback
// extractor.
func processBuffer(d *receiver.Decoder, samples []float32, sampleRateHz, chunkMs int) (*receiver.Frame, bool) {
	if len(samples) <= yieldThresholdSamples {
		return d.ProcessStream(samples, sampleRateHz, chunkMs)
	}

	samplesPerChunk := chunkMs * sampleRateHz / 1000
	if samplesPerChunk <= 0 {
		samplesPerChunk = len(samples)
	}
	for offset := 0; offset < len(samples); offset += samplesPerChunk {
		end := offset + samplesPerChunk
		if end > len(samples) {
			end = len(samples)
		}
		if frame, ok := d.ProcessAudio(samples[offset:end], sampleRateHz); ok {
			return frame, true
		}
		if offset%(samplesPerChunk*50) == 0 {
			runtime.Gosched()
		}
	}
	return nil, false
}

// reportFrame prints a decode outcome to stdout.
func reportFrame(l logging.Logger, source string, frame *receiver.Frame, ok bool) {
	if !ok || frame == nil {
		fmt.Printf("%s: no frame acquired\n", source)
		return
	}
	fmt.Printf("%s: payload_length=%d crc=0x%04X valid=%v payload=%q\n",
		source, frame.PayloadLength, frame.CRC, frame.IsValid, string(frame.Payload))
	l.Info("frame decoded", "source", source, "payloadLength", frame.PayloadLength, "valid", frame.IsValid)
}

// writePlot re-analyzes samples for a diagnostic tone-magnitude PNG.
func writePlot(l logging.Logger, samples []float32, sampleRateHz int, cfg config.Config, plotPath string) {
	history := diag.CollectSamples(samples, sampleRateHz, cfg.ToneFrequenciesHz)
	if err := diag.PlotMagnitudes(history, plotPath); err != nil {
		l.Warning("could not write diagnostic plot", "error", err.Error())
		return
	}
	l.Info("wrote diagnostic plot", "path", plotPath)
}

// readAudioFile dispatches to codec/wav's WAV or FLAC decoder based on
// file extension.
func readAudioFile(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".flac") {
		return wav.DecodeFLAC(f)
	}
	return wav.Decode(f)
}

// isAudioFile reports whether path looks like a recording fesk-rx
// knows how to decode.
func isAudioFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".flac":
		return true
	default:
		return false
	}
}
