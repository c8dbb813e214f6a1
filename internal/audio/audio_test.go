package audio

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aditya-Ranjan1234/AgroVision/internal/capture"
)

func TestCommandPlayerUnavailable(t *testing.T) {
	p := NewCommandPlayer("")
	p.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	err := p.Play(context.Background(), []byte("ID3"), "mp3")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCommandPlayerWritesClip(t *testing.T) {
	p := NewCommandPlayer("ffplay")
	p.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }

	var args []string
	var contents []byte
	p.run = func(_ context.Context, name string, a ...string) error {
		assert.Equal(t, "ffplay", name)
		args = a
		contents, _ = os.ReadFile(a[len(a)-1])
		return nil
	}

	require.NoError(t, p.Play(context.Background(), []byte("OggS-clip"), "ogg"))
	assert.Contains(t, args, "-autoexit")
	assert.Equal(t, "OggS-clip", string(contents))

	_, err := os.Stat(args[len(args)-1])
	assert.True(t, os.IsNotExist(err), "temp clip removed")
}

func TestCommandPlayerWavCandidates(t *testing.T) {
	p := NewCommandPlayer("")
	assert.Contains(t, p.candidates("wav"), "aplay")
	assert.NotContains(t, p.candidates("mp3"), "aplay")
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768}
	wav := capture.WrapPCMAsWAV(Int16ToBytes(samples), 22050, 1, 16)

	pcm, err := DecodeWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, 22050, pcm.SampleRate)
	assert.Equal(t, 1, pcm.Channels)
	assert.Equal(t, samples, pcm.Samples)
}

func TestDecodeWAVRejectsOtherFormats(t *testing.T) {
	_, err := DecodeWAV([]byte("ID3\x04 not a wav"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	eightBit := capture.WrapPCMAsWAV([]byte{1, 2, 3}, 8000, 1, 8)
	_, err = DecodeWAV(eightBit)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
