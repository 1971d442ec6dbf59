package discord

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"layeh.com/gopus"
)

const (
	channels     = 2
	sampleRate   = 48000
	frameSize    = 960 // 20ms at 48kHz
	maxOpusBytes = frameSize * channels * 2
)

// AudioConfig configures the PCM to Opus pipeline.
type AudioConfig struct {
	FFmpegPath  string
	Volume      float64 // Linear gain applied to PCM samples
	BitrateKbps int
}

// frameEncoder encodes one PCM frame to Opus. *gopus.Encoder satisfies it.
type frameEncoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

// ffmpegArgs returns the arguments that decode mediaURL to raw s16le stereo PCM.
func ffmpegArgs(mediaURL string) []string {
	return []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-probesize", "25M",
		"-analyzeduration", "25M",
		"-i", mediaURL,
		"-vn",
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "warning",
		"pipe:1",
	}
}

// newEncoder creates an Opus encoder at the configured bitrate.
func newEncoder(cfg AudioConfig) (*gopus.Encoder, error) {
	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create opus encoder")
	}
	if cfg.BitrateKbps > 0 {
		enc.SetBitrate(cfg.BitrateKbps * 1000)
	}
	return enc, nil
}

// startFFmpeg launches ffmpeg for mediaURL and returns its PCM output.
func startFFmpeg(cfg AudioConfig, mediaURL string) (io.Reader, *exec.Cmd, *bytes.Buffer, error) {
	path := cfg.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}
	cmd := exec.Command(path, ffmpegArgs(mediaURL)...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "ffmpeg stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to start ffmpeg")
	}
	return stdout, cmd, stderr, nil
}

// source streams PCM frames as Opus packets until the input ends or Stop is called.
type source struct {
	pcm      io.Reader
	out      chan<- []byte
	speaking func(bool)
	enc      frameEncoder
	volume   float64

	kill func()       // Unblocks a pending read
	reap func() error // Waits for the decoder to exit

	paused   atomic.Bool
	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func newSource(pcm io.Reader, out chan<- []byte, speaking func(bool), enc frameEncoder, volume float64) *source {
	return &source{
		pcm:      pcm,
		out:      out,
		speaking: speaking,
		enc:      enc,
		volume:   volume,
		kill:     func() {},
		reap:     func() error { return nil },
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Pause holds back frames until Resume.
func (s *source) Pause() {
	if !s.paused.Swap(true) {
		s.speaking(false)
	}
}

// Resume continues a paused source.
func (s *source) Resume() {
	if s.paused.Swap(false) {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// Stop ends playback. The completion callback still fires once.
func (s *source) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.kill()
	})
}

func (s *source) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// run pumps frames and then calls onDone exactly once.
func (s *source) run(onDone func(error)) {
	err := s.pump()
	if err != nil {
		s.kill()
	}
	if werr := s.reap(); err == nil && werr != nil && !s.stopped() {
		err = werr
	}
	s.speaking(false)
	onDone(err)
}

func (s *source) pump() error {
	pcmBuf := make([]byte, frameSize*channels*2)
	samples := make([]int16, frameSize*channels)

	s.speaking(true)
	for {
		if !s.waitWhilePaused() {
			return nil
		}

		if _, err := io.ReadFull(s.pcm, pcmBuf); err != nil {
			if s.stopped() || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return errors.Wrap(err, "read error")
		}

		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
		}
		applyVolume(samples, s.volume)

		packet, err := s.enc.Encode(samples, frameSize, maxOpusBytes)
		if err != nil {
			return errors.Wrap(err, "encode error")
		}

		// A stopped source may already be replaced; never write after Stop.
		if s.stopped() {
			return nil
		}
		select {
		case s.out <- packet:
		case <-s.stop:
			return nil
		}
	}
}

// waitWhilePaused blocks while paused. Returns false once stopped.
func (s *source) waitWhilePaused() bool {
	waited := false
	for s.paused.Load() {
		waited = true
		select {
		case <-s.stop:
			return false
		case <-s.wake:
		}
	}
	if s.stopped() {
		return false
	}
	if waited {
		s.speaking(true)
	}
	return true
}

// applyVolume scales samples in place, clipping at the int16 range.
func applyVolume(samples []int16, volume float64) {
	if volume == 1 {
		return
	}
	for i, v := range samples {
		f := math.Round(float64(v) * volume)
		switch {
		case f > math.MaxInt16:
			f = math.MaxInt16
		case f < math.MinInt16:
			f = math.MinInt16
		}
		samples[i] = int16(f)
	}
}

// lastLine returns the last non-empty line of b, for error reports.
func lastLine(b *bytes.Buffer) string {
	if b == nil {
		return ""
	}
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// playURL starts streaming mediaURL to out. onDone fires once when the source ends.
func playURL(cfg AudioConfig, mediaURL string, out chan<- []byte, speaking func(bool), onDone func(error)) (*source, error) {
	enc, err := newEncoder(cfg)
	if err != nil {
		return nil, err
	}
	pcm, cmd, stderr, err := startFFmpeg(cfg, mediaURL)
	if err != nil {
		return nil, err
	}

	src := newSource(pcm, out, speaking, enc, cfg.Volume)
	src.kill = func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
	var reapOnce sync.Once
	src.reap = func() error {
		var werr error
		reapOnce.Do(func() {
			if err := cmd.Wait(); err != nil {
				werr = errors.Wrapf(err, "ffmpeg exited: %s", lastLine(stderr))
			}
		})
		return werr
	}

	go src.run(func(err error) {
		if err != nil {
			zlog.Warn().Err(err).Msg("audio: source ended with error")
		}
		onDone(err)
	})
	return src, nil
}
