//go:build portaudio

package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/Aditya-Ranjan1234/AgroVision/internal/capture"
)

// framesPerBuffer is 100ms at 16kHz.
const framesPerBuffer = 1600

// Microphone opens the default PortAudio input device.
type Microphone struct{}

// NewMicrophone returns the microphone device.
func NewMicrophone() *Microphone { return &Microphone{} }

// Open implements capture.Device.
func (*Microphone) Open(sampleRate int) (capture.Microphone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	in := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(in), in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	return &inputStream{stream: stream, in: in}, nil
}

type inputStream struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	in     []int16
}

func (s *inputStream) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil, ErrUnavailable
	}
	if err := s.stream.Read(); err != nil {
		return nil, fmt.Errorf("read input stream: %w", err)
	}
	return Int16ToBytes(s.in), nil
}

func (s *inputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	s.stream.Stop()
	err := s.stream.Close()
	s.stream = nil
	portaudio.Terminate()
	return err
}

// nativePlayer plays WAV clips on the default output device and hands other
// formats to a command-line player.
type nativePlayer struct {
	fallback Player
}

// NewPlayer returns the best available player.
func NewPlayer(preferred string) Player {
	cmd := NewCommandPlayer(preferred)
	if preferred != "" {
		return cmd
	}
	return &nativePlayer{fallback: cmd}
}

func (p *nativePlayer) Play(ctx context.Context, data []byte, format string) error {
	if format != "wav" {
		return p.fallback.Play(ctx, data, format)
	}
	pcm, err := DecodeWAV(data)
	if err != nil {
		return p.fallback.Play(ctx, data, format)
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	out := make([]int16, 960*pcm.Channels)
	stream, err := portaudio.OpenDefaultStream(0, pcm.Channels, float64(pcm.SampleRate), len(out)/pcm.Channels, out)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer stream.Stop()

	for off := 0; off < len(pcm.Samples); off += len(out) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(out, pcm.Samples[off:])
		clear(out[n:])
		if err := stream.Write(); err != nil {
			return fmt.Errorf("write output stream: %w", err)
		}
	}
	return nil
}
