package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMic struct {
	chunks chan []byte
	closed chan struct{}
	once   sync.Once
	closes int
	mu     sync.Mutex
}

func newFakeMic() *fakeMic {
	return &fakeMic{chunks: make(chan []byte, 16), closed: make(chan struct{})}
}

func (m *fakeMic) Read(ctx context.Context) ([]byte, error) {
	select {
	case c := <-m.chunks:
		return c, nil
	case <-m.closed:
		return nil, errors.New("device closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *fakeMic) Close() error {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *fakeMic) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

type fakeDevice struct {
	mic *fakeMic
	err error
}

func (d *fakeDevice) Open(int) (Microphone, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.mic, nil
}

type fakeTranscriber struct {
	text string
	err  error
	got  []byte
}

func (f *fakeTranscriber) Transcribe(_ context.Context, wav []byte) (string, error) {
	f.got = wav
	return f.text, f.err
}

func startSession(t *testing.T, mic *fakeMic) *Session {
	t.Helper()
	s, err := Start(context.Background(), &fakeDevice{mic: mic}, Config{SampleRate: 16000}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(s.Abort)
	return s
}

func waitForBytes(t *testing.T, s *Session, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Size() >= n }, time.Second, 5*time.Millisecond)
}

func TestRecordAndUpload(t *testing.T) {
	mic := newFakeMic()
	s := startSession(t, mic)
	assert.Equal(t, Recording, s.State())
	assert.True(t, IsRecording())

	mic.chunks <- []byte{1, 0, 2, 0}
	mic.chunks <- []byte{3, 0}
	waitForBytes(t, s, 6)

	tr := &fakeTranscriber{text: "how much water for rice"}
	text, err := s.Finish(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, "how much water for rice", text)
	assert.Equal(t, Uploaded, s.State())
	assert.False(t, IsRecording())
	assert.Equal(t, 1, mic.closeCount())

	require.Len(t, tr.got, wavHeaderSize+6)
	assert.Equal(t, "RIFF", string(tr.got[0:4]))
	assert.Equal(t, []byte{1, 0, 2, 0, 3, 0}, tr.got[wavHeaderSize:])
}

func TestSecondSessionRejected(t *testing.T) {
	s := startSession(t, newFakeMic())

	_, err := Start(context.Background(), &fakeDevice{mic: newFakeMic()}, Config{}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrAlreadyRecording)

	s.Abort()
	other, err := Start(context.Background(), &fakeDevice{mic: newFakeMic()}, Config{}, zerolog.Nop())
	require.NoError(t, err)
	other.Abort()
}

func TestUploadFailureReleasesMicrophone(t *testing.T) {
	mic := newFakeMic()
	s := startSession(t, mic)
	mic.chunks <- []byte{1, 0}
	waitForBytes(t, s, 2)

	_, err := s.Finish(context.Background(), &fakeTranscriber{err: errors.New("503")})
	require.Error(t, err)
	assert.Equal(t, Failed, s.State())
	assert.ErrorContains(t, s.Err(), "transcribe")
	assert.Equal(t, 1, mic.closeCount())
	assert.False(t, IsRecording())
}

func TestEmptyRecordingFails(t *testing.T) {
	mic := newFakeMic()
	s := startSession(t, mic)

	tr := &fakeTranscriber{text: "unused"}
	_, err := s.Finish(context.Background(), tr)
	assert.ErrorIs(t, err, ErrEmptyRecording)
	assert.Equal(t, Failed, s.State())
	assert.Nil(t, tr.got)
	assert.False(t, IsRecording())
}

func TestOpenFailureFreesGuard(t *testing.T) {
	_, err := Start(context.Background(), &fakeDevice{err: errors.New("permission denied")}, Config{}, zerolog.Nop())
	require.ErrorContains(t, err, "permission denied")
	assert.False(t, IsRecording())
}

func TestAbortDiscards(t *testing.T) {
	mic := newFakeMic()
	s := startSession(t, mic)
	mic.chunks <- []byte{1, 0}
	waitForBytes(t, s, 2)

	s.Abort()
	s.Abort()
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, 0, s.Size())
	assert.Equal(t, 1, mic.closeCount())

	_, err := s.Stop()
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestWrapPCMAsWAVHeader(t *testing.T) {
	wav := WrapPCMAsWAV(make([]byte, 100), 16000, 1, 16)
	require.Len(t, wav, 144)
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(136), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, uint32(100), binary.LittleEndian.Uint32(wav[40:44]))
}
