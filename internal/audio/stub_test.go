//go:build !portaudio

package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMicrophoneUnavailableWithoutPortAudio(t *testing.T) {
	_, err := NewMicrophone().Open(16000)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.IsType(t, &CommandPlayer{}, NewPlayer(""))
}
