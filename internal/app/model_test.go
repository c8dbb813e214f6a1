package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/Aditya-Ranjan1234/AgroVision/internal/channel"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/chat"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/collab"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/config"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/db"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/frames"
)

func newTestModel(client *collab.Client) Model {
	cfg := &config.Config{}
	cfg.Channel.MaxAttempts = 5
	cfg.Chat.Streaming = true
	m := New(context.Background(), Deps{Config: cfg, Client: client, Log: zerolog.Nop()})
	m.width = 100
	m.height = 30
	return m
}

// farmServer counts weather requests.
func farmServer(t *testing.T, weatherCalls *atomic.Int32) *collab.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/weather":
			weatherCalls.Add(1)
			w.Write([]byte(`{"temp":31.5,"description":"clear sky","humidity":40,"wind_speed":2.1}`))
		case "/api/suggestions":
			w.Write([]byte(`{"suggestions":["irrigate early","check soil"]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return collab.New(collab.Config{BaseURL: srv.URL}, zerolog.Nop())
}

func key(s string) tea.KeyMsg {
	switch s {
	case KeyEnter:
		return tea.KeyMsg{Type: tea.KeyEnter}
	case KeyEsc:
		return tea.KeyMsg{Type: tea.KeyEsc}
	case KeyTab:
		return tea.KeyMsg{Type: tea.KeyTab}
	case KeyDetect:
		return tea.KeyMsg{Type: tea.KeyCtrlD}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func statusEvent(name string, st channel.StatusPayload) ChannelEventMsg {
	return ChannelEventMsg{Event: channel.NewEvent(name, st)}
}

func TestNewModel(t *testing.T) {
	m := newTestModel(nil)
	if m.connState != "disconnected" {
		t.Errorf("connState = %q, want disconnected", m.connState)
	}
	if m.focus != FocusDashboard {
		t.Error("new model should focus the dashboard")
	}
	if m.locPhase != locationLoading {
		t.Error("new model should be loading the saved location")
	}
	if m.hasLocation {
		t.Error("new model should have no location")
	}
}

func TestPromptShownBeforeAnyWeatherRequest(t *testing.T) {
	var calls atomic.Int32
	m := newTestModel(farmServer(t, &calls))

	updated, _ := m.Update(LocationLoadedMsg{})
	model := updated.(Model)

	if model.locPhase != locationPrompt {
		t.Fatal("missing saved location should open the prompt")
	}
	if model.weatherLoading {
		t.Error("weather must not load before a location exists")
	}
	if n := calls.Load(); n != 0 {
		t.Fatalf("weather requests = %d before a location was entered", n)
	}

	model.locInput.SetValue("18.5204, 73.8567, Pune")
	updated, cmd := model.Update(key(KeyEnter))
	model = updated.(Model)
	if cmd == nil {
		t.Fatal("enter should save the location")
	}

	updated, cmd = model.Update(cmd())
	model = updated.(Model)
	if model.locPhase != locationReady || !model.hasLocation {
		t.Fatal("saved location should close the prompt")
	}
	if model.location.Name != "Pune" {
		t.Errorf("location name = %q", model.location.Name)
	}
	if loc, ok := model.shared.Location(); !ok || loc.Lat != 18.5204 {
		t.Errorf("shared location = %+v, %v", loc, ok)
	}
	if cmd == nil {
		t.Fatal("saved location should request weather")
	}

	updated, cmd = model.Update(cmd())
	model = updated.(Model)
	if model.weather == nil || model.weather.Description != "clear sky" {
		t.Fatalf("weather = %+v, err %q", model.weather, model.weatherErr)
	}
	if cmd == nil {
		t.Fatal("weather should request advice")
	}
	updated, _ = model.Update(cmd())
	model = updated.(Model)
	if model.advice != "irrigate early, check soil" {
		t.Errorf("advice = %q", model.advice)
	}

	if n := calls.Load(); n != 1 {
		t.Errorf("weather requests = %d, want exactly 1", n)
	}
}

func TestSavedLocationRequestsWeather(t *testing.T) {
	var calls atomic.Int32
	m := newTestModel(farmServer(t, &calls))

	updated, cmd := m.Update(LocationLoadedMsg{Location: &db.SavedLocation{Lat: 10, Lon: 20, Name: "North field"}})
	model := updated.(Model)

	if model.locPhase != locationReady {
		t.Error("saved location should skip the prompt")
	}
	if !model.weatherLoading {
		t.Error("weather should be loading")
	}
	if cmd == nil {
		t.Fatal("expected a weather command")
	}
	cmd()
	if n := calls.Load(); n != 1 {
		t.Errorf("weather requests = %d, want 1", n)
	}
}

func TestLocationPromptRejectsBadInput(t *testing.T) {
	m := newTestModel(nil)
	updated, _ := m.Update(LocationLoadedMsg{})
	model := updated.(Model)

	model.locInput.SetValue("north, south")
	updated, cmd := model.Update(key(KeyEnter))
	model = updated.(Model)

	if cmd != nil {
		t.Error("invalid input should not save")
	}
	if !strings.Contains(model.locError, "latitude") {
		t.Errorf("locError = %q", model.locError)
	}
	if model.locPhase != locationPrompt {
		t.Error("prompt should stay open")
	}
}

func TestEscSkipsLocationPrompt(t *testing.T) {
	m := newTestModel(nil)
	updated, _ := m.Update(LocationLoadedMsg{})
	model := updated.(Model)

	updated, _ = model.Update(key(KeyEsc))
	model = updated.(Model)

	if model.locPhase != locationReady {
		t.Error("esc should close the prompt")
	}
	if model.hasLocation {
		t.Error("skipping should leave no location")
	}

	updated, _ = model.Update(key(KeyLocation))
	model = updated.(Model)
	if model.locPhase != locationPrompt {
		t.Error("l should reopen the prompt")
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
		name    string
	}{
		{"18.52, 73.85", false, ""},
		{"18.52,73.85,Pune, India", false, "Pune, India"},
		{"-33.9, 151.2, Sydney", false, "Sydney"},
		{"91, 0", true, ""},
		{"0, 181", true, ""},
		{"18.52", true, ""},
		{"abc, 1", true, ""},
	}
	for _, tt := range tests {
		loc, err := parseLocation(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLocation(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && loc.Name != tt.name {
			t.Errorf("parseLocation(%q) name = %q, want %q", tt.in, loc.Name, tt.name)
		}
	}
}

func TestReconnectAttemptEvent(t *testing.T) {
	m := newTestModel(nil)

	updated, _ := m.Update(statusEvent(channel.EventReconnectAttempt, channel.StatusPayload{
		State: "reconnecting", Attempt: 2, Max: 5, Error: "connection refused",
	}))
	model := updated.(Model)

	if model.connState != "reconnecting" {
		t.Errorf("connState = %q", model.connState)
	}
	if model.connAttempt != 2 || model.connMax != 5 {
		t.Errorf("attempt = %d/%d", model.connAttempt, model.connMax)
	}
	conn := model.shared.Snapshot().Connection
	if conn.Status != "reconnecting" || conn.Attempt != 2 {
		t.Errorf("shared connection = %+v", conn)
	}
	if !strings.Contains(model.renderStatusBar(), "2/5") {
		t.Error("status bar should show the attempt counter")
	}
}

func TestReconnectFailedShowsRetry(t *testing.T) {
	m := newTestModel(nil)

	updated, _ := m.Update(statusEvent(channel.EventReconnectFailed, channel.StatusPayload{State: "failed", Max: 5}))
	model := updated.(Model)

	if model.connState != "failed" {
		t.Errorf("connState = %q", model.connState)
	}
	if !strings.Contains(model.errorMessage, "Press r to retry") {
		t.Errorf("errorMessage = %q", model.errorMessage)
	}
	if !strings.Contains(model.renderFooter(), "Retry") {
		t.Error("footer should offer retry")
	}

	updated, _ = model.Update(statusEvent(channel.EventConnect, channel.StatusPayload{State: "connected"}))
	model = updated.(Model)
	if model.errorMessage != "" {
		t.Errorf("connect should clear the error, got %q", model.errorMessage)
	}
}

func TestNewAlertEvent(t *testing.T) {
	m := newTestModel(nil)

	ev := channel.NewEvent(channel.EventNewAlert, map[string]any{
		"id": 7, "message": "Cow near the fence", "severity": "high", "camera_id": 2,
	})
	updated, cmd := m.Update(ChannelEventMsg{Event: ev})
	model := updated.(Model)

	if model.alerts.Len() != 1 {
		t.Fatalf("alerts = %d, want 1", model.alerts.Len())
	}
	if got := model.alerts.List()[0].ID; got != "7" {
		t.Errorf("alert id = %q", got)
	}
	if len(model.toasts) != 1 {
		t.Errorf("toasts = %d, want 1", len(model.toasts))
	}
	if cmd == nil {
		t.Error("expected expiry commands")
	}

	listed := model.alerts.List()[0]
	updated, _ = model.Update(AlertExpireMsg{ID: "7", ExpiresAt: listed.ExpiresAt})
	model = updated.(Model)
	if model.alerts.Len() != 0 {
		t.Error("alert should expire")
	}

	updated, _ = model.Update(ToastExpireMsg{ID: model.toasts[0].id})
	model = updated.(Model)
	if len(model.toasts) != 0 {
		t.Error("toast should be dismissed")
	}
}

func TestStaleExpiryKeepsNewerAlert(t *testing.T) {
	m := newTestModel(nil)
	alert := func(m Model) Model {
		ev := channel.NewEvent(channel.EventNewAlert, map[string]any{"id": 7, "message": "Cow near the fence"})
		updated, _ := m.Update(ChannelEventMsg{Event: ev})
		return updated.(Model)
	}

	m = alert(m)
	first := m.alerts.List()[0]
	updated, _ := m.Update(AlertExpireMsg{ID: "7", ExpiresAt: first.ExpiresAt})
	m = updated.(Model)
	m = alert(m)
	second := m.alerts.List()[0]

	// A timer from the first instance must not remove the second.
	stale := AlertExpireMsg{ID: "7", ExpiresAt: first.ExpiresAt.Add(-time.Minute)}
	updated, _ = m.Update(stale)
	m = updated.(Model)
	if m.alerts.Len() != 1 {
		t.Fatalf("alerts = %d, want 1", m.alerts.Len())
	}

	updated, _ = m.Update(AlertExpireMsg{ID: "7", ExpiresAt: second.ExpiresAt})
	m = updated.(Model)
	if m.alerts.Len() != 0 {
		t.Error("matching timer should expire the alert")
	}
}

func TestInitialDataReplayAfterExpiry(t *testing.T) {
	m := newTestModel(nil)
	baseline := channel.NewEvent(channel.EventInitialData, map[string]any{
		"alerts": []any{map[string]any{"id": "a", "message": "first", "severity": "low"}},
	})

	updated, _ := m.Update(ChannelEventMsg{Event: baseline})
	m = updated.(Model)
	a := m.alerts.List()[0]
	updated, _ = m.Update(AlertExpireMsg{ID: "a", ExpiresAt: a.ExpiresAt})
	m = updated.(Model)

	updated, cmd := m.Update(ChannelEventMsg{Event: baseline})
	m = updated.(Model)
	if m.alerts.Len() != 0 {
		t.Errorf("replayed baseline revived %d alerts", m.alerts.Len())
	}
	if cmd != nil {
		t.Error("replayed baseline should schedule nothing")
	}
}

func TestAlertListIsBounded(t *testing.T) {
	m := newTestModel(nil)
	for i := 0; i < 7; i++ {
		ev := channel.NewEvent(channel.EventNewAlert, map[string]any{
			"id": i, "message": "alert", "severity": "low",
		})
		updated, _ := m.Update(ChannelEventMsg{Event: ev})
		m = updated.(Model)
	}
	if m.alerts.Len() != 5 {
		t.Errorf("alerts = %d, want 5", m.alerts.Len())
	}
	if got := m.alerts.List()[0].ID; got != "6" {
		t.Errorf("newest alert = %q, want 6", got)
	}
}

func TestInitialDataSeedsWithoutToasts(t *testing.T) {
	m := newTestModel(nil)

	ev := channel.NewEvent(channel.EventInitialData, map[string]any{
		"cameras": []any{1, "2"},
		"alerts": []any{
			map[string]any{"id": "a", "message": "first", "severity": "low"},
			map[string]any{"id": "b", "message": "second", "severity": "medium"},
		},
	})
	updated, _ := m.Update(ChannelEventMsg{Event: ev})
	model := updated.(Model)

	if model.alerts.Len() != 2 {
		t.Fatalf("alerts = %d, want 2", model.alerts.Len())
	}
	if len(model.toasts) != 0 {
		t.Error("baseline alerts should not toast")
	}
	if cams := model.shared.Snapshot().Cameras; len(cams) != 2 {
		t.Errorf("cameras = %v", cams)
	}
}

func pngFrame(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 160, B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func frameEventFor(t *testing.T, id string) frames.FrameEvent {
	return frames.FrameEvent{CameraID: channel.FlexString(id), FrameData: pngFrame(t)}
}

func TestCameraFrameEvent(t *testing.T) {
	m := newTestModel(nil)

	ev := channel.NewEvent(channel.EventCameraFrame, map[string]any{
		"camera_id":  "barn",
		"frame":      pngFrame(t),
		"detections": []any{map[string]any{"label": "cow", "confidence": 0.9}},
	})
	updated, _ := m.Update(ChannelEventMsg{Event: ev})
	model := updated.(Model)

	first, ok := model.frames.Stream("barn")
	if !ok {
		t.Fatal("stream should be registered on first frame")
	}
	if first.Target.Visible {
		t.Error("target should stay hidden until decoded")
	}

	// Decode runs off the update loop; feed its result back in.
	j, _ := model.frames.OnFrame(frameEventFor(t, "barn"))
	updated, _ = model.Update(decodeFrameCmd(j)())
	model = updated.(Model)

	s, _ := model.frames.Stream("barn")
	if !s.Target.Visible || s.Target.Thumbnail == nil {
		t.Fatalf("target = %+v", s.Target)
	}
	if !strings.Contains(model.View(), "cam barn") {
		t.Error("view should list the camera")
	}
}

func TestCameraFrameDecodeFailureHidesTarget(t *testing.T) {
	m := newTestModel(nil)

	ev := channel.NewEvent(channel.EventCameraFrame, map[string]any{"camera_id": "gate", "frame": "not-base64!"})
	updated, cmd := m.Update(ChannelEventMsg{Event: ev})
	model := updated.(Model)
	if cmd == nil {
		t.Fatal("frame should schedule a decode")
	}

	j, _ := model.frames.OnFrame(frameEventFor(t, "gate"))
	j.Data = "not-base64!"
	updated, _ = model.Update(decodeFrameCmd(j)())
	model = updated.(Model)

	s, _ := model.frames.Stream("gate")
	if s.Target.Visible {
		t.Error("failed decode should hide the target")
	}
	if s.Target.Err == "" {
		t.Error("failed decode should record the error")
	}
}

func TestInitialDataKeepsFrameCameras(t *testing.T) {
	m := newTestModel(nil)
	frame := func(m Model) Model {
		ev := channel.NewEvent(channel.EventCameraFrame, map[string]any{"camera_id": 3, "frame": pngFrame(t)})
		updated, _ := m.Update(ChannelEventMsg{Event: ev})
		return updated.(Model)
	}

	m = frame(m)
	ev := channel.NewEvent(channel.EventInitialData, map[string]any{"cameras": []any{1}, "alerts": []any{}})
	updated, _ := m.Update(ChannelEventMsg{Event: ev})
	m = updated.(Model)
	if got := strings.Join(m.shared.Snapshot().Cameras, ","); got != "1,3" {
		t.Errorf("cameras after baseline = %q, want 1,3", got)
	}

	m = frame(m)
	if got := strings.Join(m.shared.Snapshot().Cameras, ","); got != "1,3" {
		t.Errorf("cameras after next frame = %q, want 1,3", got)
	}
}

func TestChatChunksAndCompletion(t *testing.T) {
	m := newTestModel(nil)
	h, err := m.chat.Send("how are my crops?")
	if err != nil {
		t.Fatal(err)
	}

	for _, text := range []string{"H", "He", "Hello"} {
		updated, _ := m.Update(ChatChunkMsg{Handle: h, Text: text})
		m = updated.(Model)
	}
	reply, _ := m.chat.Reply(h)
	if reply.Content != "Hello" {
		t.Errorf("reply = %q, want Hello", reply.Content)
	}

	updated, cmd := m.Update(ChatDoneMsg{Handle: h, Text: "Hello"})
	m = updated.(Model)
	reply, _ = m.chat.Reply(h)
	if reply.State != chat.Finalized {
		t.Errorf("state = %v, want finalized", reply.State)
	}
	if cmd != nil {
		t.Error("muted chat should not request speech")
	}
}

func TestChatErrorShowsSystemMessage(t *testing.T) {
	m := newTestModel(nil)
	h, _ := m.chat.Send("hi")

	updated, _ := m.Update(ChatErrorMsg{Handle: h, Err: errors.New("server returned 500")})
	m = updated.(Model)

	msgs := m.chat.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != chat.RoleSystem || !strings.Contains(last.Content, "500") {
		t.Errorf("last message = %+v", last)
	}
}

func TestSendWithoutServer(t *testing.T) {
	m := newTestModel(nil)

	updated, _ := m.Update(key(KeyTab))
	m = updated.(Model)
	if m.focus != FocusChat {
		t.Fatal("tab should focus chat")
	}

	m.chatInput.SetValue("hello")
	updated, cmd := m.Update(key(KeyEnter))
	m = updated.(Model)

	if cmd != nil {
		t.Error("no request without a server")
	}
	msgs := m.chat.Messages()
	if len(msgs) < 2 || msgs[0].Content != "hello" {
		t.Fatalf("messages = %+v", msgs)
	}
	if m.chatInput.Value() != "" {
		t.Error("input should be cleared after send")
	}
}

func TestTabTogglesFocus(t *testing.T) {
	m := newTestModel(nil)

	updated, _ := m.Update(key(KeyTab))
	m = updated.(Model)
	if m.focus != FocusChat {
		t.Error("tab should move focus to chat")
	}

	// q is typed into the chat input, not a quit
	updated, _ = m.Update(key(KeyQuit))
	m = updated.(Model)
	if m.chatInput.Value() != "q" {
		t.Errorf("input = %q, want q", m.chatInput.Value())
	}

	updated, _ = m.Update(key(KeyEsc))
	m = updated.(Model)
	if m.focus != FocusDashboard {
		t.Error("esc should return to the dashboard")
	}
}

func TestVoiceWithoutMicrophone(t *testing.T) {
	m := newTestModel(nil)

	updated, cmd := m.Update(key(KeyVoice))
	m = updated.(Model)
	if cmd != nil {
		t.Error("no capture without a microphone")
	}
	if m.voiceStatus == "" {
		t.Error("voice status should explain the failure")
	}
}

func TestMicrophoneErrorReportedOnce(t *testing.T) {
	m := newTestModel(nil)
	for i := 0; i < 2; i++ {
		updated, _ := m.Update(CaptureStartedMsg{Err: errors.New("permission denied")})
		m = updated.(Model)
	}

	n := 0
	for _, msg := range m.chat.Messages() {
		if msg.Role == chat.RoleSystem {
			n++
		}
	}
	if n != 1 {
		t.Errorf("system messages = %d, want 1", n)
	}
}

func TestMuteToggles(t *testing.T) {
	m := newTestModel(nil)
	updated, _ := m.Update(key(KeyMute))
	m = updated.(Model)
	if !m.speak {
		t.Error("m should enable speech")
	}
}

func TestViewRendersWithSize(t *testing.T) {
	m := newTestModel(nil)
	view := m.View()
	if !strings.Contains(view, "AGROVISION") {
		t.Error("view should contain the title")
	}
	if !strings.Contains(view, "ALERTS") || !strings.Contains(view, "CHAT") {
		t.Error("view should contain the panels")
	}

	updated, _ := m.Update(LocationLoadedMsg{})
	m = updated.(Model)
	if !strings.Contains(m.View(), "SET FARM LOCATION") {
		t.Error("view should show the location prompt")
	}
}

func TestViewWithoutSize(t *testing.T) {
	m := New(context.Background(), Deps{Log: zerolog.Nop()})
	if m.View() != "Initializing..." {
		t.Error("view without size should show initializing")
	}
}
