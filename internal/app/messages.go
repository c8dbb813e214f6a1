package app

import (
	"encoding/json"
	"time"

	"github.com/Aditya-Ranjan1234/AgroVision/internal/capture"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/channel"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/chat"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/collab"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/db"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/frames"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/state"
)

// ChannelEventMsg wraps an event pulled from the live channel.
type ChannelEventMsg struct {
	Event channel.Event
}

// ChannelClosedMsg is sent when the event stream ends.
type ChannelClosedMsg struct{}

// ChannelStartErrorMsg is sent when the channel could not be started.
type ChannelStartErrorMsg struct {
	Err error
}

// FrameDecodedMsg carries a finished frame decode.
type FrameDecodedMsg struct {
	Result frames.Result
}

// AlertExpireMsg removes one alert when its TTL elapses. ExpiresAt names the
// instance the timer was started for.
type AlertExpireMsg struct {
	ID        string
	ExpiresAt time.Time
}

// ToastExpireMsg dismisses one toast.
type ToastExpireMsg struct {
	ID int
}

// NotifyResultMsg reports the outcome of a desktop notification.
type NotifyResultMsg struct {
	Err error
}

// AlertsSeededMsg carries the alert history fetched over HTTP at startup.
type AlertsSeededMsg struct {
	Alerts []json.RawMessage
	Err    error
}

// TickMsg drives the alert sweep and frame staleness badges.
type TickMsg struct {
	Now time.Time
}

// LocationLoadedMsg carries the persisted location read at startup.
type LocationLoadedMsg struct {
	Location *db.SavedLocation
	Err      error
}

// LocationDetectedMsg carries an IP geolocation guess.
type LocationDetectedMsg struct {
	Geo collab.GeoLocation
	Err error
}

// LocationSavedMsg is sent once a location has been persisted.
type LocationSavedMsg struct {
	Location state.Location
	Err      error
}

// WeatherMsg carries current conditions for the saved location.
type WeatherMsg struct {
	Weather collab.Weather
	Err     error
}

// AdviceMsg carries farming advice for the current weather.
type AdviceMsg struct {
	Advice string
	Err    error
}

// chatOpenedMsg is sent when the server accepted a chat request.
type chatOpenedMsg struct {
	Handle chat.Handle
	Stream *collab.ChatStream
}

// ChatChunkMsg carries the cumulative reply text for one exchange.
type ChatChunkMsg struct {
	Handle chat.Handle
	Text   string

	stream *collab.ChatStream
}

func chatChunk(h chat.Handle, text string, stream *collab.ChatStream) ChatChunkMsg {
	return ChatChunkMsg{Handle: h, Text: text, stream: stream}
}

// ChatDoneMsg ends one exchange.
type ChatDoneMsg struct {
	Handle chat.Handle
	Text   string
}

// ChatErrorMsg fails one exchange.
type ChatErrorMsg struct {
	Handle chat.Handle
	Err    error
}

// SpeechReadyMsg carries synthesized audio for a reply.
type SpeechReadyMsg struct {
	Handle chat.Handle
	Audio  collab.Audio
}

// SpeechFailedMsg reports a synthesis failure.
type SpeechFailedMsg struct {
	Handle chat.Handle
	Err    error
}

// PlaybackDoneMsg is sent when a reply finished playing.
type PlaybackDoneMsg struct {
	Handle chat.Handle
	Err    error
}

// CaptureStartedMsg is sent when the microphone opened (or failed to).
type CaptureStartedMsg struct {
	Session *capture.Session
	Err     error
}

// TranscriptMsg carries the text of a voice recording.
type TranscriptMsg struct {
	Text string
	Err  error
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}
