// Package audio provides speaker playback and microphone input.
//
// Native PortAudio devices are compiled in with the "portaudio" build tag.
// Without it, playback goes through a command-line player and microphone
// input reports ErrUnavailable.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

var (
	// ErrUnavailable is returned when no device or player can be used.
	ErrUnavailable = errors.New("audio device unavailable")
	// ErrUnsupportedFormat is returned for clips a player cannot decode.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Player plays a complete clip and returns when playback ends.
type Player interface {
	Play(ctx context.Context, data []byte, format string) error
}

// CommandPlayer plays clips through the first available command-line player.
type CommandPlayer struct {
	// Preferred forces a player name (AUDIO_PLAYER); empty picks by platform.
	Preferred string

	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

// NewCommandPlayer returns a player that shells out to afplay, ffplay, paplay
// or aplay.
func NewCommandPlayer(preferred string) *CommandPlayer {
	return &CommandPlayer{
		Preferred: preferred,
		lookPath:  exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

func (p *CommandPlayer) candidates(format string) []string {
	if p.Preferred != "" {
		return []string{p.Preferred}
	}
	var names []string
	if runtime.GOOS == "darwin" {
		names = append(names, "afplay")
	}
	names = append(names, "ffplay", "mpg123")
	if format == "wav" {
		names = append(names, "paplay", "aplay")
	}
	return names
}

func playerArgs(name, file string) []string {
	switch name {
	case "ffplay":
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", file}
	case "mpg123":
		return []string{"-q", file}
	case "aplay":
		return []string{"-q", file}
	}
	return []string{file}
}

// Play implements Player.
func (p *CommandPlayer) Play(ctx context.Context, data []byte, format string) error {
	name := ""
	for _, c := range p.candidates(format) {
		if _, err := p.lookPath(c); err == nil {
			name = c
			break
		}
	}
	if name == "" {
		return ErrUnavailable
	}

	ext := format
	if ext == "" || ext == "unknown" {
		ext = "mp3"
	}
	f, err := os.CreateTemp("", "agrovision-*."+ext)
	if err != nil {
		return fmt.Errorf("create temp clip: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp clip: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp clip: %w", err)
	}

	if err := p.run(ctx, name, playerArgs(name, f.Name())...); err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

// PCM is decoded WAV audio.
type PCM struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// DecodeWAV reads a 16-bit PCM WAV clip.
func DecodeWAV(data []byte) (PCM, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return PCM{}, ErrUnsupportedFormat
	}
	var pcm PCM
	bits := 0
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 || binary.LittleEndian.Uint16(data[body:]) != 1 {
				return PCM{}, ErrUnsupportedFormat
			}
			pcm.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			pcm.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			bits = int(binary.LittleEndian.Uint16(data[body+14:]))
		case "data":
			if bits != 16 || pcm.Channels == 0 {
				return PCM{}, ErrUnsupportedFormat
			}
			pcm.Samples = BytesToInt16(data[body : body+size])
			return pcm, nil
		}
		off = body + size + size%2
	}
	return PCM{}, ErrUnsupportedFormat
}

// Int16ToBytes converts samples to little-endian PCM16.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToInt16 converts little-endian PCM16 to samples.
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
