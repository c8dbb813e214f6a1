// Package capture records voice input from a microphone and uploads it for
// transcription.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the lifecycle of a capture session.
type State int

const (
	Idle State = iota
	Recording
	Stopping
	Uploaded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	case Uploaded:
		return "uploaded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

var (
	// ErrAlreadyRecording is returned when another session holds the microphone.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrNotRecording is returned by Stop on a session that is not recording.
	ErrNotRecording = errors.New("not recording")
	// ErrEmptyRecording is returned when no audio was captured.
	ErrEmptyRecording = errors.New("no audio captured")
)

// recording guards the process-wide microphone.
var recording atomic.Bool

// Microphone is an open input device producing PCM16 little-endian chunks.
type Microphone interface {
	// Read blocks for the next chunk. It returns an error once the device is
	// closed or lost.
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Device opens microphones.
type Device interface {
	Open(sampleRate int) (Microphone, error)
}

// Transcriber turns a WAV recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Config describes the captured audio format.
type Config struct {
	SampleRate int
}

// Session is one voice recording.
type Session struct {
	ID string

	cfg    Config
	log    zerolog.Logger
	mic    Microphone
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	state   State
	buf     bytes.Buffer
	readErr error
	err     error

	releaseOnce sync.Once
}

// Start acquires the microphone and begins recording. Only one session may
// record at a time.
func Start(ctx context.Context, dev Device, cfg Config, log zerolog.Logger) (*Session, error) {
	if !recording.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRecording
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}

	mic, err := dev.Open(cfg.SampleRate)
	if err != nil {
		recording.Store(false)
		return nil, fmt.Errorf("open microphone: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:     uuid.NewString(),
		cfg:    cfg,
		log:    log,
		mic:    mic,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  Recording,
	}
	s.log = log.With().Str("session", s.ID).Logger()
	go s.collect(ctx)

	s.log.Debug().Int("sample_rate", cfg.SampleRate).Msg("recording started")
	return s, nil
}

// IsRecording reports whether any session currently holds the microphone.
func IsRecording() bool {
	return recording.Load()
}

func (s *Session) collect(ctx context.Context) {
	defer close(s.done)
	for {
		chunk, err := s.mic.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.mu.Lock()
				s.readErr = err
				s.mu.Unlock()
				s.log.Warn().Err(err).Msg("microphone read failed")
			}
			return
		}
		s.mu.Lock()
		s.buf.Write(chunk)
		s.mu.Unlock()
	}
}

// release closes the device and frees the process-wide guard. Safe to call
// from every exit path.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		s.cancel()
		if err := s.mic.Close(); err != nil {
			s.log.Debug().Err(err).Msg("close microphone")
		}
		<-s.done
		recording.Store(false)
	})
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure, if the session failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Size returns the number of PCM bytes captured so far.
func (s *Session) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// Stop ends the recording, releases the microphone and returns the captured
// audio as WAV.
func (s *Session) Stop() ([]byte, error) {
	s.mu.Lock()
	if s.state != Recording {
		s.mu.Unlock()
		return nil, ErrNotRecording
	}
	s.state = Stopping
	s.mu.Unlock()

	s.release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil && s.buf.Len() == 0 {
		return nil, s.failLocked(fmt.Errorf("microphone: %w", s.readErr))
	}
	if s.buf.Len() == 0 {
		return nil, s.failLocked(ErrEmptyRecording)
	}
	return WrapPCMAsWAV(s.buf.Bytes(), s.cfg.SampleRate, 1, 16), nil
}

// Finish stops the recording and uploads it. On success the session is
// Uploaded and the transcript is returned; there is no retry on failure.
func (s *Session) Finish(ctx context.Context, t Transcriber) (string, error) {
	defer s.release()

	wav, err := s.Stop()
	if err != nil {
		return "", err
	}

	text, err := t.Transcribe(ctx, wav)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return "", s.failLocked(fmt.Errorf("transcribe: %w", err))
	}

	s.mu.Lock()
	s.state = Uploaded
	s.mu.Unlock()
	s.log.Debug().Int("bytes", len(wav)).Int("chars", len(text)).Msg("recording transcribed")
	return text, nil
}

// Abort discards the recording and releases the microphone.
func (s *Session) Abort() {
	s.mu.Lock()
	if s.state == Recording || s.state == Stopping {
		s.state = Idle
		s.buf.Reset()
	}
	s.mu.Unlock()
	s.release()
}

func (s *Session) failLocked(err error) error {
	s.state = Failed
	s.err = err
	s.log.Warn().Err(err).Msg("capture failed")
	return err
}
