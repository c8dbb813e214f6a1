package chat

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession() *Session {
	return NewSession(zerolog.Nop())
}

func TestSendEchoesAndOpensReply(t *testing.T) {
	s := newSession()
	h, err := s.Send("  When should I sow wheat?  ")
	require.NoError(t, err)

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "When should I sow wheat?", msgs[0].Content)
	assert.Equal(t, Pending, msgs[0].State)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, Streaming, msgs[1].State)

	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, msgs[1].ID, cur.ID)

	s.Accepted(h)
	assert.Equal(t, Finalized, s.Messages()[0].State)
}

func TestSendRejectsBlank(t *testing.T) {
	_, err := newSession().Send("   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestCumulativeChunksLeaveOneMessage(t *testing.T) {
	s := newSession()
	h, _ := s.Send("hi")

	for _, chunk := range []string{"H", "He", "Hello"} {
		assert.True(t, s.OnChunk(h, chunk))
	}
	text, speak := s.OnComplete(h, "")

	assert.True(t, speak)
	assert.Equal(t, "Hello", text)
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.Equal(t, Finalized, msgs[1].State)
	assert.Equal(t, Finalized, msgs[0].State)
	_, ok := s.Current()
	assert.False(t, ok)
}

func TestOverlappingSendsKeepTheirOwnReplies(t *testing.T) {
	s := newSession()
	first, _ := s.Send("first question")
	s.OnChunk(first, "Fir")
	second, _ := s.Send("second question")

	cur, _ := s.Current()
	r2, _ := s.Reply(second)
	assert.Equal(t, r2.ID, cur.ID, "current stream follows the latest send")

	s.OnChunk(first, "First answer")
	s.OnChunk(second, "Second")
	s.OnComplete(second, "Second answer")
	s.OnComplete(first, "")

	r1, _ := s.Reply(first)
	r2, _ = s.Reply(second)
	assert.Equal(t, "First answer", r1.Content)
	assert.Equal(t, "Second answer", r2.Content)
	assert.NotEqual(t, r1.ID, r2.ID)
	assert.Equal(t, 4, s.Len())
	assert.Equal(t, 0, s.InFlight())
}

func TestChunksAfterCompletionIgnored(t *testing.T) {
	s := newSession()
	h, _ := s.Send("q")
	s.OnComplete(h, "done")

	assert.False(t, s.OnChunk(h, "late"))
	assert.False(t, s.OnChunk(Handle("nope"), "x"))
	r, _ := s.Reply(h)
	assert.Equal(t, "done", r.Content)
}

func TestErrorWithoutTextBecomesSystemMessage(t *testing.T) {
	s := newSession()
	h, _ := s.Send("q")
	s.OnError(h, errors.New("/chat: 500 model offline"))

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleSystem, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "model offline")
	assert.Equal(t, 0, s.InFlight())
}

func TestErrorKeepsPartialReply(t *testing.T) {
	s := newSession()
	h, _ := s.Send("q")
	s.OnChunk(h, "Partial")
	s.OnError(h, errors.New("connection reset"))

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Partial", msgs[1].Content)
	assert.Error(t, msgs[1].Err)
}

func TestAudioLifecycle(t *testing.T) {
	s := newSession()
	h, _ := s.Send("q")

	assert.False(t, s.RequestAudio(h), "not before completion")
	s.OnComplete(h, "Irrigate at dusk.")

	require.True(t, s.RequestAudio(h))
	r, _ := s.Reply(h)
	assert.Equal(t, AudioRequested, r.State)

	require.True(t, s.AudioReady(h))
	require.True(t, s.AudioDone(h))
	r, _ = s.Reply(h)
	assert.Equal(t, Finalized, r.State)
}

func TestAudioFailureKeepsText(t *testing.T) {
	s := newSession()
	h, _ := s.Send("q")
	s.OnComplete(h, "Irrigate at dusk.")
	s.RequestAudio(h)

	require.True(t, s.AudioFailed(h, errors.New("tts down")))
	r, _ := s.Reply(h)
	assert.Equal(t, AudioFailed, r.State)
	assert.Equal(t, "Irrigate at dusk.", r.Content)
	assert.Equal(t, 2, s.Len(), "no chat error is added")
}

func TestEmptyReplyIsNotSpoken(t *testing.T) {
	s := newSession()
	h, _ := s.Send("q")
	_, speak := s.OnComplete(h, "  ")
	assert.False(t, speak)
}
