package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/Aditya-Ranjan1234/AgroVision/internal/alerts"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/audio"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/capture"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/channel"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/chat"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/collab"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/config"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/db"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/frames"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/metrics"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/state"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/ui"
)

// PanelFocus tracks which panel has keyboard focus.
type PanelFocus int

const (
	FocusDashboard PanelFocus = iota
	FocusChat
)

type locationPhase int

const (
	locationLoading locationPhase = iota
	locationPrompt
	locationReady
)

// toast is a transient alert banner. Toasts are not capped.
type toast struct {
	id    int
	alert alerts.Alert
}

// Deps are the collaborators the dashboard drives. Store, Channel, Notifier,
// Player, Mic and Metrics may be nil.
type Deps struct {
	Config   *config.Config
	State    *state.Store
	Store    *db.Store
	Channel  *channel.Manager
	Client   *collab.Client
	Notifier alerts.Notifier
	Player   audio.Player
	Mic      capture.Device
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
}

// Model is the root bubbletea model for the AgroVision dashboard.
type Model struct {
	ctx context.Context
	cfg *config.Config
	log zerolog.Logger

	// Connection
	channel     *channel.Manager
	connState   string
	connAttempt int
	connMax     int
	connDetail  string

	// Shared state and collaborators
	shared  *state.Store
	store   *db.Store
	client  *collab.Client
	metrics *metrics.Metrics

	// Feeds
	frames       *frames.Pipeline
	alerts       *alerts.Pipeline
	toasts       []toast
	nextToast    int
	notifier     alerts.Notifier
	notifyWarned bool
	lastSweep    time.Time
	now          time.Time

	// Chat
	chat       *chat.Session
	chatInput  textinput.Model
	chatView   viewport.Model
	chatFollow bool
	player     audio.Player
	speak      bool

	// Voice input
	mic          capture.Device
	recorder     *capture.Session
	transcribing bool
	voiceStatus  string
	micWarned    bool

	// Location, weather and advice
	locPhase       locationPhase
	locInput       textinput.Model
	locError       string
	detecting      bool
	location       state.Location
	hasLocation    bool
	weather        *collab.Weather
	weatherErr     string
	weatherLoading bool
	advice         string
	adviceErr      string
	adviceLoading  bool

	spinner spinner.Model

	// UI state
	focus  PanelFocus
	width  int
	height int

	// Errors
	errorMessage   string
	errorTransient bool
}

// New creates the dashboard model.
func New(ctx context.Context, deps Deps) Model {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	shared := deps.State
	if shared == nil {
		shared = state.New()
	}

	var frameOpts []frames.Option
	var alertOpts []alerts.Option
	if deps.Metrics != nil {
		frameOpts = append(frameOpts, frames.WithRecorder(deps.Metrics))
		alertOpts = append(alertOpts, alerts.WithRecorder(deps.Metrics))
	}

	chatInput := textinput.New()
	chatInput.Placeholder = "Ask about your crops..."
	chatInput.Prompt = "> "
	chatInput.CharLimit = 1000

	locInput := textinput.New()
	locInput.Placeholder = "18.5204, 73.8567, Pune"
	locInput.Prompt = "Location: "
	locInput.CharLimit = 120
	locInput.Width = 50

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ui.SpinnerStyle

	return Model{
		ctx:       ctx,
		cfg:       cfg,
		log:       deps.Log,
		channel:   deps.Channel,
		connState: channel.Disconnected.String(),
		connMax:   cfg.Channel.MaxAttempts,
		shared:    shared,
		store:     deps.Store,
		client:    deps.Client,
		metrics:   deps.Metrics,
		frames: frames.NewPipeline(frames.Config{
			Width:      cfg.Frames.Width,
			Height:     cfg.Frames.Height,
			StaleAfter: cfg.Frames.StaleAfter,
		}, shared, deps.Log.With().Str("component", "frames").Logger(), frameOpts...),
		alerts: alerts.NewPipeline(alerts.Config{
			Capacity: cfg.Alerts.Capacity,
			TTL:      cfg.Alerts.TTL,
		}, alerts.NewCooldown(cfg.Alerts.Cooldown), deps.Log.With().Str("component", "alerts").Logger(), alertOpts...),
		notifier:   deps.Notifier,
		chat:       chat.NewSession(deps.Log.With().Str("component", "chat").Logger()),
		chatInput:  chatInput,
		chatView:   viewport.New(40, 10),
		chatFollow: true,
		player:     deps.Player,
		speak:      cfg.Chat.Speak,
		mic:        deps.Mic,
		locPhase:   locationLoading,
		locInput:   locInput,
		spinner:    sp,
		focus:      FocusDashboard,
		now:        time.Now(),
	}
}

// Init loads the saved location, seeds alerts and starts the live channel.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{loadLocationCmd(m.store), tickCmd(), m.spinner.Tick}
	if m.client != nil && m.cfg.Alerts.SeedLimit > 0 {
		cmds = append(cmds, seedAlertsCmd(m.ctx, m.client, m.cfg.Alerts.SeedLimit))
	}
	if m.channel != nil {
		cmds = append(cmds, startChannelCmd(m.ctx, m.channel))
	}
	return tea.Batch(cmds...)
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChat()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ChannelEventMsg:
		cmd := m.handleEvent(msg.Event)
		// Continue reading events from the channel
		var next tea.Cmd
		if m.channel != nil {
			next = readEventCmd(m.channel.Events())
		}
		return m, tea.Batch(cmd, next)

	case ChannelClosedMsg:
		m.connState = channel.Disconnected.String()
		return m, nil

	case ChannelStartErrorMsg:
		m.log.Warn().Err(msg.Err).Msg("channel start failed")
		cmd := m.setTransientError("Connection: " + msg.Err.Error())
		return m, cmd

	case FrameDecodedMsg:
		m.frames.Apply(msg.Result)
		return m, nil

	case AlertExpireMsg:
		m.alerts.Expire(msg.ID, msg.ExpiresAt)
		return m, nil

	case ToastExpireMsg:
		for i, t := range m.toasts {
			if t.id == msg.ID {
				m.toasts = append(m.toasts[:i], m.toasts[i+1:]...)
				break
			}
		}
		return m, nil

	case TickMsg:
		m.now = msg.Now
		if msg.Now.Sub(m.lastSweep) >= m.cfg.Alerts.SweepPeriod {
			m.lastSweep = msg.Now
			if removed := m.alerts.Sweep(msg.Now); len(removed) > 0 {
				m.log.Debug().Strs("ids", removed).Msg("swept expired alerts")
			}
		}
		return m, tickCmd()

	case NotifyResultMsg:
		if errors.Is(msg.Err, alerts.ErrNotificationsUnsupported) && !m.notifyWarned {
			m.notifyWarned = true
			cmd := m.setTransientError("Desktop notifications are not available on this system")
			return m, cmd
		}
		if msg.Err != nil {
			m.log.Debug().Err(msg.Err).Msg("notification failed")
		}
		return m, nil

	case AlertsSeededMsg:
		if msg.Err != nil {
			m.log.Warn().Err(msg.Err).Msg("seed alerts")
			return m, nil
		}
		cmd := tea.Batch(m.alertCmds(m.alerts.OnInitialData(msg.Alerts), false)...)
		return m, cmd

	case LocationLoadedMsg:
		if msg.Err != nil {
			m.log.Warn().Err(msg.Err).Msg("load saved location")
		}
		if msg.Location == nil {
			cmd := m.openLocationPrompt()
			return m, cmd
		}
		loc := state.Location{Lat: msg.Location.Lat, Lon: msg.Location.Lon, Name: msg.Location.Name}
		if err := m.shared.SetLocation(loc); err != nil {
			m.log.Warn().Err(err).Msg("saved location is invalid")
			cmd := m.openLocationPrompt()
			return m, cmd
		}
		cmd := m.useLocation(loc)
		return m, cmd

	case LocationDetectedMsg:
		m.detecting = false
		if msg.Err != nil {
			m.locError = "Could not detect location: " + msg.Err.Error()
			return m, nil
		}
		m.locError = ""
		m.locInput.SetValue(formatLocation(msg.Geo.Latitude, msg.Geo.Longitude, msg.Geo.Name()))
		m.locInput.CursorEnd()
		return m, nil

	case LocationSavedMsg:
		if msg.Err != nil {
			m.locError = "Could not save location: " + msg.Err.Error()
			return m, nil
		}
		m.locError = ""
		m.locInput.Blur()
		cmd := m.useLocation(msg.Location)
		return m, cmd

	case WeatherMsg:
		m.weatherLoading = false
		if msg.Err != nil {
			m.weatherErr = msg.Err.Error()
			return m, nil
		}
		w := msg.Weather
		m.weather = &w
		m.weatherErr = ""
		m.adviceLoading = true
		return m, adviceCmd(m.ctx, m.client, w, m.location)

	case AdviceMsg:
		m.adviceLoading = false
		if msg.Err != nil {
			m.adviceErr = msg.Err.Error()
			return m, nil
		}
		m.advice = msg.Advice
		m.adviceErr = ""
		return m, nil

	case chatOpenedMsg:
		m.chat.Accepted(msg.Handle)
		m.refreshChat()
		return m, readChunkCmd(msg.Handle, msg.Stream)

	case ChatChunkMsg:
		m.chat.OnChunk(msg.Handle, msg.Text)
		m.refreshChat()
		if msg.stream != nil {
			return m, readChunkCmd(msg.Handle, msg.stream)
		}
		return m, nil

	case ChatDoneMsg:
		text, ok := m.chat.OnComplete(msg.Handle, msg.Text)
		m.recordChat("ok")
		m.refreshChat()
		if ok && m.speak && m.client != nil && m.player != nil && m.chat.RequestAudio(msg.Handle) {
			m.refreshChat()
			return m, synthesizeCmd(m.ctx, m.client, msg.Handle, text)
		}
		return m, nil

	case ChatErrorMsg:
		m.log.Warn().Err(msg.Err).Str("handle", string(msg.Handle)).Msg("chat failed")
		m.chat.OnError(msg.Handle, msg.Err)
		m.recordChat("error")
		m.refreshChat()
		return m, nil

	case SpeechReadyMsg:
		if !m.chat.AudioReady(msg.Handle) {
			return m, nil
		}
		m.refreshChat()
		return m, playCmd(m.ctx, m.player, msg.Handle, msg.Audio)

	case SpeechFailedMsg:
		m.log.Warn().Err(msg.Err).Msg("speech synthesis failed")
		m.chat.AudioFailed(msg.Handle, msg.Err)
		m.recordSpeechFailure("tts")
		m.refreshChat()
		return m, nil

	case PlaybackDoneMsg:
		if msg.Err != nil {
			m.log.Warn().Err(msg.Err).Msg("playback failed")
			m.chat.AudioFailed(msg.Handle, msg.Err)
			m.recordSpeechFailure("playback")
		} else {
			m.chat.AudioDone(msg.Handle)
		}
		m.refreshChat()
		return m, nil

	case CaptureStartedMsg:
		if msg.Err != nil {
			if errors.Is(msg.Err, capture.ErrAlreadyRecording) {
				m.voiceStatus = "Already recording"
				return m, nil
			}
			m.voiceStatus = "Microphone unavailable"
			if !m.micWarned {
				m.micWarned = true
				m.chat.System("Voice input unavailable: " + msg.Err.Error())
				m.refreshChat()
			}
			return m, nil
		}
		m.recorder = msg.Session
		m.voiceStatus = "Recording... press " + voiceKeyHint(m.focus) + " to stop"
		return m, nil

	case TranscriptMsg:
		m.transcribing = false
		if msg.Err != nil {
			m.recordSpeechFailure("stt")
			m.voiceStatus = msg.Err.Error()
			return m, nil
		}
		if strings.TrimSpace(msg.Text) == "" {
			m.voiceStatus = "No speech recognized"
			return m, nil
		}
		m.voiceStatus = ""
		cmd := m.sendChat(msg.Text)
		return m, cmd

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, nil
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == KeyCtrlC {
		return m.quit()
	}

	if m.locPhase == locationPrompt {
		return m.handleLocationKey(msg)
	}

	if m.focus == FocusChat {
		return m.handleChatKey(msg)
	}

	switch key {
	case KeyQuit, KeyQuitUpper:
		return m.quit()

	case KeyTab:
		m.focus = FocusChat
		cmd := m.chatInput.Focus()
		return m, cmd

	case KeyRetry:
		if m.channel != nil && m.connState == channel.Failed.String() {
			m.connState = channel.Connecting.String()
			m.errorMessage = ""
			return m, retryChannelCmd(m.ctx, m.channel)
		}
		return m, nil

	case KeyLocation:
		if m.hasLocation {
			m.locInput.SetValue(formatLocation(m.location.Lat, m.location.Lon, m.location.Name))
		}
		cmd := m.openLocationPrompt()
		return m, cmd

	case KeyWeather:
		if m.hasLocation && !m.weatherLoading && m.client != nil {
			m.weatherLoading = true
			return m, weatherCmd(m.ctx, m.client, m.location)
		}
		return m, nil

	case KeyVoice:
		return m.toggleVoice()

	case KeyMute:
		m.speak = !m.speak
		return m, nil

	case KeyUp, KeyPgUp, KeyDown, KeyPgDown:
		return m.scrollChat(msg)
	}

	return m, nil
}

func (m Model) handleLocationKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEnter:
		loc, err := parseLocation(m.locInput.Value())
		if err != nil {
			m.locError = err.Error()
			return m, nil
		}
		return m, saveLocationCmd(m.store, m.shared, loc)

	case KeyDetect:
		if m.client == nil || m.detecting {
			return m, nil
		}
		m.detecting = true
		m.locError = ""
		return m, detectLocationCmd(m.ctx, m.client)

	case KeyEsc:
		m.locPhase = locationReady
		m.locError = ""
		m.locInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.locInput, cmd = m.locInput.Update(msg)
	return m, cmd
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEsc, KeyTab:
		m.focus = FocusDashboard
		m.chatInput.Blur()
		return m, nil

	case KeyEnter:
		text := m.chatInput.Value()
		m.chatInput.Reset()
		cmd := m.sendChat(text)
		return m, cmd

	case KeyVoiceChat:
		return m.toggleVoice()

	case KeyUp, KeyPgUp, KeyDown, KeyPgDown:
		return m.scrollChat(msg)
	}

	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return m, cmd
}

func (m Model) scrollChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.chatView, cmd = m.chatView.Update(msg)
	m.chatFollow = m.chatView.AtBottom()
	return m, cmd
}

func (m Model) toggleVoice() (tea.Model, tea.Cmd) {
	if m.recorder != nil {
		s := m.recorder
		m.recorder = nil
		m.transcribing = true
		m.voiceStatus = "Transcribing..."
		return m, finishCaptureCmd(m.ctx, s, m.client)
	}
	if m.transcribing {
		return m, nil
	}
	if m.mic == nil || m.client == nil {
		m.voiceStatus = "Voice input unavailable"
		return m, nil
	}
	m.voiceStatus = "Opening microphone..."
	return m, startCaptureCmd(m.ctx, m.mic, capture.Config{SampleRate: m.cfg.Audio.SampleRate}, m.log.With().Str("component", "capture").Logger())
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.recorder != nil {
		m.recorder.Abort()
		m.recorder = nil
	}
	return m, tea.Quit
}

// sendChat echoes text and starts its request.
func (m *Model) sendChat(text string) tea.Cmd {
	h, err := m.chat.Send(text)
	if err != nil {
		return nil
	}
	m.chatFollow = true
	m.refreshChat()
	if m.client == nil {
		m.chat.OnError(h, errors.New("no server configured"))
		m.refreshChat()
		return nil
	}
	if m.cfg.Chat.Streaming {
		return openChatCmd(m.ctx, m.client, h, text)
	}
	return chatReplyCmd(m.ctx, m.client, h, text)
}

func (m *Model) openLocationPrompt() tea.Cmd {
	m.locPhase = locationPrompt
	m.locError = ""
	m.focus = FocusDashboard
	m.chatInput.Blur()
	return m.locInput.Focus()
}

// useLocation adopts loc and requests its weather once.
func (m *Model) useLocation(loc state.Location) tea.Cmd {
	m.location = loc
	m.hasLocation = true
	m.locPhase = locationReady
	m.weather = nil
	m.weatherErr = ""
	m.advice = ""
	m.adviceErr = ""
	if m.client == nil {
		return nil
	}
	m.weatherLoading = true
	return weatherCmd(m.ctx, m.client, loc)
}

// alertCmds schedules expiry, persistence, toasts and notifications for the
// alerts a pipeline call inserted.
func (m *Model) alertCmds(outcomes []alerts.Outcome, live bool) []tea.Cmd {
	var cmds []tea.Cmd
	for _, out := range outcomes {
		if !out.Inserted {
			continue
		}
		a := out.Alert
		cmds = append(cmds, expireAlertCmd(a))
		if m.store != nil {
			cmds = append(cmds, logAlertCmd(m.store, a, m.log))
		}
		if live {
			m.nextToast++
			m.toasts = append(m.toasts, toast{id: m.nextToast, alert: a})
			cmds = append(cmds, toastExpireCmd(m.nextToast))
		}
		if out.Notify && m.notifier != nil && m.cfg.Alerts.Notify {
			cmds = append(cmds, notifyCmd(m.ctx, m.notifier, a))
		}
	}
	return cmds
}

func (m *Model) setTransientError(text string) tea.Cmd {
	m.errorMessage = text
	m.errorTransient = true
	return clearTransientErrorCmd()
}

func (m *Model) recordChat(outcome string) {
	if m.metrics != nil {
		m.metrics.ChatStream(outcome)
	}
}

func (m *Model) recordSpeechFailure(kind string) {
	if m.metrics != nil {
		m.metrics.SpeechFailed(kind)
	}
}

func voiceKeyHint(f PanelFocus) string {
	if f == FocusChat {
		return "Ctrl+R"
	}
	return "v"
}

// parseLocation reads "lat, lon[, name]".
func parseLocation(s string) (state.Location, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 {
		return state.Location{}, errors.New("enter latitude, longitude and an optional name")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return state.Location{}, fmt.Errorf("invalid latitude %q", strings.TrimSpace(parts[0]))
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return state.Location{}, fmt.Errorf("invalid longitude %q", strings.TrimSpace(parts[1]))
	}
	loc := state.Location{Lat: lat, Lon: lon}
	if len(parts) > 2 {
		loc.Name = strings.TrimSpace(strings.Join(parts[2:], ","))
	}
	if !loc.Valid() {
		return state.Location{}, errors.New("latitude must be within ±90 and longitude within ±180")
	}
	return loc, nil
}

func formatLocation(lat, lon float64, name string) string {
	s := fmt.Sprintf("%.4f, %.4f", lat, lon)
	if name != "" {
		s += ", " + name
	}
	return s
}
