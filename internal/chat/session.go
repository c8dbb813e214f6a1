// Package chat holds the conversation shown in the chat panel and routes
// streamed replies to the message that asked for them.
package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Role is who wrote a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// State is the lifecycle of a message.
type State int

const (
	Pending State = iota
	Streaming
	Finalized
	AudioRequested
	AudioPlaying
	AudioFailed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Streaming:
		return "streaming"
	case Finalized:
		return "finalized"
	case AudioRequested:
		return "audio-requested"
	case AudioPlaying:
		return "audio-playing"
	case AudioFailed:
		return "audio-failed"
	}
	return "unknown"
}

// Handle identifies one request/response exchange.
type Handle string

// ErrEmptyMessage is returned when sending blank text.
var ErrEmptyMessage = errors.New("empty message")

// Message is one entry in the conversation.
type Message struct {
	ID      string
	Role    Role
	Content string
	State   State
	Err     error
	At      time.Time
}

type exchange struct {
	user  *Message
	reply *Message
	done  bool
}

// Session is the ordered conversation plus the in-flight exchanges.
type Session struct {
	messages  []*Message
	exchanges map[Handle]*exchange
	current   *Message
	now       func() time.Time
	log       zerolog.Logger
}

// NewSession creates an empty conversation.
func NewSession(log zerolog.Logger) *Session {
	return &Session{
		exchanges: make(map[Handle]*exchange),
		now:       time.Now,
		log:       log,
	}
}

func (s *Session) add(role Role, content string, state State) *Message {
	m := &Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
		State:   state,
		At:      s.now(),
	}
	s.messages = append(s.messages, m)
	return m
}

// Send echoes text as a pending user message and opens an assistant message
// in Streaming state bound to the returned handle.
func (s *Session) Send(text string) (Handle, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	h := Handle(uuid.NewString())
	ex := &exchange{
		user:  s.add(RoleUser, text, Pending),
		reply: s.add(RoleAssistant, "", Streaming),
	}
	s.exchanges[h] = ex
	s.current = ex.reply
	s.log.Debug().Str("handle", string(h)).Int("in_flight", s.InFlight()).Msg("chat sent")
	return h, nil
}

// Accepted marks the request as taken by the server.
func (s *Session) Accepted(h Handle) {
	if ex, ok := s.exchanges[h]; ok && ex.user.State == Pending {
		ex.user.State = Finalized
	}
}

// OnChunk replaces the bound reply with the cumulative text received so far.
// It reports whether the handle was known and still streaming.
func (s *Session) OnChunk(h Handle, text string) bool {
	ex, ok := s.exchanges[h]
	if !ok || ex.done {
		s.log.Debug().Str("handle", string(h)).Msg("chunk for unknown stream")
		return false
	}
	s.Accepted(h)
	ex.reply.Content = text
	return true
}

// OnComplete finalizes the reply. It returns the text to hand to speech
// synthesis, or false when there is nothing to speak.
func (s *Session) OnComplete(h Handle, final string) (string, bool) {
	ex, ok := s.exchanges[h]
	if !ok || ex.done {
		return "", false
	}
	s.Accepted(h)
	if final != "" {
		ex.reply.Content = final
	}
	ex.reply.State = Finalized
	ex.done = true
	if s.current == ex.reply {
		s.current = nil
	}
	text := strings.TrimSpace(ex.reply.Content)
	return text, text != ""
}

// OnError finalizes the exchange and reports err as a system message. Any
// partial reply text stays visible.
func (s *Session) OnError(h Handle, err error) {
	ex, ok := s.exchanges[h]
	if !ok || ex.done {
		return
	}
	ex.done = true
	ex.user.State = Finalized
	ex.reply.State = Finalized
	ex.reply.Err = err
	if s.current == ex.reply {
		s.current = nil
	}
	if ex.reply.Content == "" {
		s.remove(ex.reply)
	}
	s.System("Error: " + err.Error())
}

func (s *Session) remove(m *Message) {
	for i, cur := range s.messages {
		if cur == m {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// System appends an informational message.
func (s *Session) System(text string) {
	s.add(RoleSystem, text, Finalized)
}

// RequestAudio marks the reply as waiting for synthesized speech.
func (s *Session) RequestAudio(h Handle) bool {
	return s.setAudio(h, Finalized, AudioRequested)
}

// AudioReady marks the reply as playing.
func (s *Session) AudioReady(h Handle) bool {
	return s.setAudio(h, AudioRequested, AudioPlaying)
}

// AudioDone returns the reply to Finalized when playback ends.
func (s *Session) AudioDone(h Handle) bool {
	return s.setAudio(h, AudioPlaying, Finalized)
}

// AudioFailed marks synthesis or playback as failed. The text stays visible.
func (s *Session) AudioFailed(h Handle, err error) bool {
	ex, ok := s.exchanges[h]
	if !ok || (ex.reply.State != AudioRequested && ex.reply.State != AudioPlaying) {
		return false
	}
	ex.reply.State = AudioFailed
	ex.reply.Err = err
	return true
}

func (s *Session) setAudio(h Handle, from, to State) bool {
	ex, ok := s.exchanges[h]
	if !ok || !ex.done || ex.reply.State != from {
		return false
	}
	ex.reply.State = to
	ex.reply.Err = nil
	return true
}

// Reply returns a copy of the assistant message bound to h.
func (s *Session) Reply(h Handle) (Message, bool) {
	ex, ok := s.exchanges[h]
	if !ok {
		return Message{}, false
	}
	return *ex.reply, true
}

// Current returns the reply being filled by the most recent in-flight
// request.
func (s *Session) Current() (Message, bool) {
	if s.current == nil {
		return Message{}, false
	}
	return *s.current, true
}

// InFlight counts exchanges still streaming.
func (s *Session) InFlight() int {
	n := 0
	for _, ex := range s.exchanges {
		if !ex.done {
			n++
		}
	}
	return n
}

// Messages returns copies of all messages in order.
func (s *Session) Messages() []Message {
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = *m
	}
	return out
}

// Len returns the number of messages.
func (s *Session) Len() int { return len(s.messages) }
