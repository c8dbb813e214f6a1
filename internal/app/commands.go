package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/Aditya-Ranjan1234/AgroVision/internal/alerts"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/audio"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/capture"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/channel"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/chat"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/collab"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/db"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/frames"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/state"
)

const (
	transientErrorTimeout = 5 * time.Second
	toastTimeout          = 8 * time.Second
	tickInterval          = time.Second
)

// startChannelCmd starts the connection loop and reads the first event.
func startChannelCmd(ctx context.Context, mgr *channel.Manager) tea.Cmd {
	return func() tea.Msg {
		if err := mgr.Connect(ctx); err != nil {
			return ChannelStartErrorMsg{Err: err}
		}
		return readEventCmd(mgr.Events())()
	}
}

// readEventCmd pulls the next event from the channel.
func readEventCmd(events <-chan channel.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return ChannelClosedMsg{}
		}
		return ChannelEventMsg{Event: ev}
	}
}

// retryChannelCmd restarts a Failed channel.
func retryChannelCmd(ctx context.Context, mgr *channel.Manager) tea.Cmd {
	return func() tea.Msg {
		if err := mgr.Retry(ctx); err != nil {
			return ChannelStartErrorMsg{Err: err}
		}
		return nil
	}
}

// decodeFrameCmd decodes a frame off the event loop.
func decodeFrameCmd(job frames.Job) tea.Cmd {
	return func() tea.Msg {
		return FrameDecodedMsg{Result: frames.Decode(job)}
	}
}

// expireAlertCmd schedules the removal of one inserted alert.
func expireAlertCmd(a alerts.Alert) tea.Cmd {
	return tea.Tick(a.ExpiresAt.Sub(a.InsertedAt), func(time.Time) tea.Msg {
		return AlertExpireMsg{ID: string(a.ID), ExpiresAt: a.ExpiresAt}
	})
}

func toastExpireCmd(id int) tea.Cmd {
	return tea.Tick(toastTimeout, func(time.Time) tea.Msg {
		return ToastExpireMsg{ID: id}
	})
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg{Now: t}
	})
}

// notifyCmd rings and shows a desktop notification for a high alert.
func notifyCmd(ctx context.Context, n alerts.Notifier, a alerts.Alert) tea.Cmd {
	return func() tea.Msg {
		return NotifyResultMsg{Err: n.Notify(ctx, a)}
	}
}

// logAlertCmd appends an alert to the local alert log.
func logAlertCmd(store *db.Store, a alerts.Alert, log zerolog.Logger) tea.Cmd {
	return func() tea.Msg {
		rec := db.AlertRecord{
			ID:         string(a.ID),
			Message:    a.Message,
			Severity:   a.Severity,
			Type:       a.Type,
			CameraID:   string(a.CameraID),
			Confidence: a.Confidence,
			Timestamp:  a.Timestamp,
			ReceivedAt: a.InsertedAt,
		}
		if err := store.AppendAlert(rec); err != nil {
			log.Warn().Err(err).Str("id", rec.ID).Msg("append alert log")
		}
		return nil
	}
}

// seedAlertsCmd fetches recent alerts before the channel delivers its
// baseline.
func seedAlertsCmd(ctx context.Context, client *collab.Client, limit int) tea.Cmd {
	return func() tea.Msg {
		raw, err := client.RecentAlerts(ctx, limit)
		return AlertsSeededMsg{Alerts: raw, Err: err}
	}
}

// loadLocationCmd reads the persisted location.
func loadLocationCmd(store *db.Store) tea.Cmd {
	return func() tea.Msg {
		if store == nil {
			return LocationLoadedMsg{}
		}
		loc, err := store.Location()
		return LocationLoadedMsg{Location: loc, Err: err}
	}
}

func detectLocationCmd(ctx context.Context, client *collab.Client) tea.Cmd {
	return func() tea.Msg {
		geo, err := client.DetectLocation(ctx)
		return LocationDetectedMsg{Geo: geo, Err: err}
	}
}

// saveLocationCmd persists loc and publishes it to the shared store.
func saveLocationCmd(store *db.Store, shared *state.Store, loc state.Location) tea.Cmd {
	return func() tea.Msg {
		if store != nil {
			err := store.SaveLocation(db.SavedLocation{Lat: loc.Lat, Lon: loc.Lon, Name: loc.Name})
			if err != nil {
				return LocationSavedMsg{Location: loc, Err: err}
			}
		}
		if err := shared.SetLocation(loc); err != nil {
			return LocationSavedMsg{Location: loc, Err: err}
		}
		return LocationSavedMsg{Location: loc}
	}
}

func weatherCmd(ctx context.Context, client *collab.Client, loc state.Location) tea.Cmd {
	return func() tea.Msg {
		w, err := client.Weather(ctx, loc.Lat, loc.Lon)
		return WeatherMsg{Weather: w, Err: err}
	}
}

func adviceCmd(ctx context.Context, client *collab.Client, w collab.Weather, loc state.Location) tea.Cmd {
	return func() tea.Msg {
		advice, err := client.Advice(ctx, w, collab.Place{Lat: loc.Lat, Lon: loc.Lon, Name: loc.Name})
		return AdviceMsg{Advice: advice, Err: err}
	}
}

// openChatCmd posts a chat message and returns once the response started.
func openChatCmd(ctx context.Context, client *collab.Client, h chat.Handle, text string) tea.Cmd {
	return func() tea.Msg {
		stream, err := client.OpenChat(ctx, text)
		if err != nil {
			return ChatErrorMsg{Handle: h, Err: err}
		}
		return chatOpenedMsg{Handle: h, Stream: stream}
	}
}

// readChunkCmd reads the next chunk of one reply stream.
func readChunkCmd(h chat.Handle, stream *collab.ChatStream) tea.Cmd {
	return func() tea.Msg {
		text, err := stream.Next()
		switch {
		case errors.Is(err, io.EOF):
			return ChatDoneMsg{Handle: h, Text: text}
		case err != nil:
			stream.Close()
			return ChatErrorMsg{Handle: h, Err: err}
		}
		return chatChunk(h, text, stream)
	}
}

// chatReplyCmd uses the non-streaming endpoint.
func chatReplyCmd(ctx context.Context, client *collab.Client, h chat.Handle, text string) tea.Cmd {
	return func() tea.Msg {
		reply, err := client.Chat(ctx, text)
		if err != nil {
			return ChatErrorMsg{Handle: h, Err: err}
		}
		return ChatDoneMsg{Handle: h, Text: reply.Response}
	}
}

func synthesizeCmd(ctx context.Context, client *collab.Client, h chat.Handle, text string) tea.Cmd {
	return func() tea.Msg {
		clip, err := client.Synthesize(ctx, text)
		if err != nil {
			return SpeechFailedMsg{Handle: h, Err: err}
		}
		return SpeechReadyMsg{Handle: h, Audio: clip}
	}
}

func playCmd(ctx context.Context, player audio.Player, h chat.Handle, clip collab.Audio) tea.Cmd {
	return func() tea.Msg {
		return PlaybackDoneMsg{Handle: h, Err: player.Play(ctx, clip.Data, clip.Format)}
	}
}

func startCaptureCmd(ctx context.Context, dev capture.Device, cfg capture.Config, log zerolog.Logger) tea.Cmd {
	return func() tea.Msg {
		s, err := capture.Start(ctx, dev, cfg, log)
		return CaptureStartedMsg{Session: s, Err: err}
	}
}

func finishCaptureCmd(ctx context.Context, s *capture.Session, client *collab.Client) tea.Cmd {
	return func() tea.Msg {
		text, err := s.Finish(ctx, client)
		if err != nil {
			return TranscriptMsg{Err: fmt.Errorf("voice input: %w", err)}
		}
		return TranscriptMsg{Text: text}
	}
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(transientErrorTimeout, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}
