//go:build !portaudio

package audio

import (
	"github.com/Aditya-Ranjan1234/AgroVision/internal/capture"
)

// Microphone is unavailable without the portaudio build tag.
type Microphone struct{}

// NewMicrophone returns the microphone device.
func NewMicrophone() *Microphone { return &Microphone{} }

// Open implements capture.Device.
func (*Microphone) Open(int) (capture.Microphone, error) {
	return nil, ErrUnavailable
}

// NewPlayer returns the best available player.
func NewPlayer(preferred string) Player {
	return NewCommandPlayer(preferred)
}
