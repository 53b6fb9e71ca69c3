package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cbegin/dmperf-go"
	"github.com/cbegin/dmperf-go/internal/logging"
	"github.com/cbegin/dmperf-go/internal/synth"
)

type config struct {
	dir        string
	segment    string
	next       string
	transition string
	at         float64
	soundFont  string
	sampleRate int
	seconds    float64
	wavPath    string
	smfPath    string
	seed       int64
	volume     float64
	reverb     float64
	chorus     bool
	logLevel   string
}

func main() {
	var cfg config
	flag.StringVar(&cfg.dir, "dir", ".", "directory holding segments, styles and collections")
	flag.StringVar(&cfg.segment, "segment", "", "segment to play")
	flag.StringVar(&cfg.next, "next", "", "segment to transition to after -at seconds")
	flag.StringVar(&cfg.transition, "transition", "measure", "transition boundary: immediate|grid|beat|measure")
	flag.Float64Var(&cfg.at, "at", 4, "seconds into playback to queue -next")
	flag.StringVar(&cfg.soundFont, "soundfont", "", "SoundFont for general MIDI instruments (default: built-in FM)")
	flag.IntVar(&cfg.sampleRate, "sample-rate", 44100, "output sample rate")
	flag.Float64Var(&cfg.seconds, "seconds", 0, "stop after N seconds (0 = until the segments end; required with -wav)")
	flag.StringVar(&cfg.wavPath, "wav", "", "render offline to a WAV file instead of the audio device")
	flag.StringVar(&cfg.smfPath, "smf", "", "record channel messages to a standard MIDI file")
	flag.Int64Var(&cfg.seed, "seed", 0, "random seed for pattern selection (0 = time based)")
	flag.Float64Var(&cfg.volume, "volume", 1.0, "master volume scalar")
	flag.Float64Var(&cfg.reverb, "reverb", 0.18, "master reverb mix 0..1")
	flag.BoolVar(&cfg.chorus, "chorus", false, "enable master chorus")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	flag.Parse()

	logger, err := logging.New(os.Stderr, cfg.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("dmplay failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	if cfg.segment == "" {
		return fmt.Errorf("-segment is required")
	}
	timing, err := dmperf.ParseTiming(cfg.transition)
	if err != nil {
		return err
	}
	offline := cfg.wavPath != ""
	if offline && cfg.seconds <= 0 {
		return fmt.Errorf("-wav needs -seconds")
	}

	opts := []dmperf.PlayerOption{
		dmperf.WithDirectory(cfg.dir),
		dmperf.WithLogger(logger),
		dmperf.WithReverb(float32(cfg.reverb)),
		dmperf.WithChorus(cfg.chorus),
	}
	if cfg.seed != 0 {
		opts = append(opts, dmperf.WithSeed(cfg.seed))
	}
	if cfg.soundFont != "" {
		data, err := os.ReadFile(cfg.soundFont)
		if err != nil {
			return err
		}
		opts = append(opts, dmperf.WithSoundFont(data))
	}
	var rec *synth.Recording
	if cfg.smfPath != "" {
		rec = synth.NewRecording(cfg.sampleRate)
		opts = append(opts, dmperf.WithRecording(rec))
	}
	if offline {
		opts = append(opts, dmperf.WithOffline())
	}

	pl, err := dmperf.NewPlayer(cfg.sampleRate, opts...)
	if err != nil {
		return err
	}
	pl.SetMasterVolume(cfg.volume)

	if offline {
		err = renderOffline(pl, cfg, timing)
	} else {
		err = playLive(pl, cfg, timing, logger)
	}
	if err != nil {
		return err
	}
	if rec != nil {
		if err := writeSMF(rec, cfg.smfPath); err != nil {
			return err
		}
		logger.Info("midi written", "path", cfg.smfPath, "tracks", rec.Tracks())
	}
	return nil
}

func renderOffline(pl *dmperf.Player, cfg config, timing dmperf.Timing) error {
	if _, err := pl.PlayFile(cfg.segment, dmperf.TimingImmediate); err != nil {
		return err
	}
	total := int(cfg.seconds * float64(cfg.sampleRate))
	var out []float32
	if cfg.next != "" {
		first := min(int(cfg.at*float64(cfg.sampleRate)), total)
		out = dmperf.RenderFrames(pl, first)
		if _, err := pl.PlayFile(cfg.next, timing); err != nil {
			return err
		}
		total -= first
	}
	out = append(out, dmperf.RenderFrames(pl, total)...)

	f, err := os.Create(cfg.wavPath)
	if err != nil {
		return err
	}
	if err := dmperf.WriteWAV(f, out, cfg.sampleRate, 2); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func playLive(pl *dmperf.Player, cfg config, timing dmperf.Timing, logger *slog.Logger) error {
	events := pl.Watch()
	go func() {
		for ev := range events {
			logger.Info("segment "+ev.Kind.String(), "segment", ev.Segment, "pulse", ev.Pulse, "tempo", pl.Tempo())
		}
	}()
	if _, err := pl.PlayFile(cfg.segment, dmperf.TimingImmediate); err != nil {
		return err
	}
	if cfg.next != "" {
		seg, err := pl.LoadSegment(cfg.next)
		if err != nil {
			return err
		}
		time.AfterFunc(time.Duration(cfg.at*float64(time.Second)), func() {
			if err := pl.Play(seg, timing); err != nil {
				logger.Error("transition failed", "err", err)
			}
		})
	}
	if cfg.seconds > 0 {
		time.AfterFunc(time.Duration(cfg.seconds*float64(time.Second)), func() {
			if err := pl.Stop(); err != nil {
				logger.Error("stop failed", "err", err)
			}
		})
	}
	pl.Wait()
	return pl.Stop()
}

func writeSMF(rec *synth.Recording, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := rec.WriteSMF(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
