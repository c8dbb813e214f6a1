package app

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Aditya-Ranjan1234/AgroVision/internal/alerts"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/channel"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/frames"
	"github.com/Aditya-Ranjan1234/AgroVision/internal/state"
)

var events = newEventDispatcher()

func newEventDispatcher() *channel.Dispatcher[*Model, tea.Cmd] {
	d := channel.NewDispatcher[*Model, tea.Cmd]()
	d.On(channel.EventConnect, (*Model).onStatus)
	d.On(channel.EventConnectError, (*Model).onStatus)
	d.On(channel.EventDisconnect, (*Model).onStatus)
	d.On(channel.EventReconnectAttempt, (*Model).onReconnectAttempt)
	d.On(channel.EventReconnectFailed, (*Model).onStatus)
	d.On(channel.EventInitialData, (*Model).onInitialData)
	d.On(channel.EventNewAlert, (*Model).onNewAlert)
	d.On(channel.EventCameraFrame, (*Model).onCameraFrame)
	d.OnUnknown(func(m *Model, ev channel.Event) tea.Cmd {
		m.log.Debug().Str("event", ev.Name).Msg("ignoring unknown event")
		return nil
	})
	return d
}

// handleEvent routes one channel event to its handler.
func (m *Model) handleEvent(ev channel.Event) tea.Cmd {
	cmd, _ := events.Dispatch(m, ev)
	return cmd
}

func (m *Model) onStatus(ev channel.Event) tea.Cmd {
	var st channel.StatusPayload
	if err := ev.Decode(&st); err != nil {
		m.log.Warn().Err(err).Msg("bad status payload")
		return nil
	}
	m.applyStatus(st)

	switch ev.Name {
	case channel.EventConnect:
		if m.errorMessage != "" && !m.errorTransient {
			m.errorMessage = ""
		}
	case channel.EventReconnectFailed:
		m.errorMessage = fmt.Sprintf("Connection lost after %d attempts. Press r to retry.", st.Max)
		m.errorTransient = false
	}
	return nil
}

func (m *Model) onReconnectAttempt(ev channel.Event) tea.Cmd {
	if m.metrics != nil {
		m.metrics.ReconnectAttempt()
	}
	return m.onStatus(ev)
}

func (m *Model) applyStatus(st channel.StatusPayload) {
	m.connState = st.State
	m.connAttempt = st.Attempt
	if st.Max > 0 {
		m.connMax = st.Max
	}
	m.connDetail = st.Error
	m.shared.SetConnection(state.Connection{
		Status:  st.State,
		Attempt: st.Attempt,
		Detail:  st.Error,
	})
}

func (m *Model) onInitialData(ev channel.Event) tea.Cmd {
	var data channel.InitialData
	if err := ev.Decode(&data); err != nil {
		m.log.Warn().Err(err).Msg("bad initial_data payload")
		return nil
	}
	m.shared.MergeCameras(data.CameraIDs())
	return tea.Batch(m.alertCmds(m.alerts.OnInitialData(data.Alerts), false)...)
}

func (m *Model) onNewAlert(ev channel.Event) tea.Cmd {
	a, err := alerts.Decode(ev)
	if err != nil {
		m.log.Warn().Err(err).Msg("bad new_alert payload")
		return nil
	}
	out, ok := m.alerts.OnAlert(a)
	if !ok {
		return nil
	}
	return tea.Batch(m.alertCmds([]alerts.Outcome{out}, true)...)
}

func (m *Model) onCameraFrame(ev channel.Event) tea.Cmd {
	var fe frames.FrameEvent
	if err := ev.Decode(&fe); err != nil {
		m.log.Warn().Err(err).Msg("bad camera_frame payload")
		return nil
	}
	job, ok := m.frames.OnFrame(fe)
	if !ok {
		return nil
	}
	return decodeFrameCmd(job)
}
