// Package frames turns camera_frame events into per-camera render targets.
//
// Frames are tagged with a per-camera sequence number when they arrive,
// decoded off the event loop, and swapped into the target only if no newer
// frame has been applied in the meantime.
package frames

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aditya-Ranjan1234/AgroVision/internal/channel"
)

// Detection is one labelled bounding box reported with a frame.
type Detection struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box        []float64 `json:"box,omitempty"`
}

// FrameEvent is the camera_frame payload.
type FrameEvent struct {
	CameraID   channel.FlexString `json:"camera_id"`
	FrameData  string             `json:"frame"`
	Timestamp  string             `json:"timestamp"`
	Detections []Detection        `json:"detections"`
}

// Target is what the dashboard draws for one camera.
type Target struct {
	Visible   bool
	Thumbnail *Thumbnail
	Overlay   time.Time // refreshed on every applied frame
	Err       string
}

// Stream is the client-side state of one camera feed.
type Stream struct {
	CameraID    string
	LastFrame   string
	LastFrameAt time.Time
	Timestamp   string
	Detections  []Detection
	Target      Target

	nextSeq    uint64
	appliedSeq uint64
}

// Job is a frame waiting to be decoded.
type Job struct {
	CameraID   string
	Seq        uint64
	Data       string
	Timestamp  string
	Detections []Detection
	Width      int
	Height     int
}

// Result is a finished decode.
type Result struct {
	CameraID   string
	Seq        uint64
	Data       string
	Timestamp  string
	Detections []Detection
	Thumbnail  *Thumbnail
	Err        error
}

// Registry records cameras as they are first seen.
type Registry interface {
	RegisterCamera(id string) bool
}

// Recorder receives pipeline counters.
type Recorder interface {
	FrameApplied(cameraID string)
	FrameDropped(reason string)
	FrameDecodeFailed(cameraID string)
}

type nopRecorder struct{}

func (nopRecorder) FrameApplied(string) {}
func (nopRecorder) FrameDropped(string) {}
func (nopRecorder) FrameDecodeFailed(string) {}

// Config sizes the thumbnails.
type Config struct {
	Width      int // terminal cells
	Height     int // terminal rows; each row holds two pixel rows
	StaleAfter time.Duration
}

// Pipeline owns every camera stream.
type Pipeline struct {
	cfg      Config
	registry Registry
	rec      Recorder
	log      zerolog.Logger
	now      func() time.Time

	streams map[string]*Stream
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithRecorder reports counters to r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.rec = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates an empty pipeline.
func NewPipeline(cfg Config, registry Registry, log zerolog.Logger, opts ...Option) *Pipeline {
	if cfg.Width <= 0 {
		cfg.Width = 32
	}
	if cfg.Height <= 0 {
		cfg.Height = 12
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Second
	}
	p := &Pipeline{
		cfg:      cfg,
		registry: registry,
		rec:      nopRecorder{},
		log:      log,
		now:      time.Now,
		streams:  make(map[string]*Stream),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnFrame validates an inbound frame and returns the decode job for it. ok is
// false when the frame was dropped.
func (p *Pipeline) OnFrame(ev FrameEvent) (Job, bool) {
	id := strings.TrimSpace(string(ev.CameraID))
	if id == "" || ev.FrameData == "" {
		p.log.Warn().Str("camera_id", id).Bool("has_frame", ev.FrameData != "").Msg("dropping incomplete frame")
		p.rec.FrameDropped("incomplete")
		return Job{}, false
	}

	s := p.stream(id)
	s.nextSeq++
	// Every accepted frame re-asserts the camera, so a registry reset by a
	// server baseline cannot lose a live feed.
	if p.registry != nil && p.registry.RegisterCamera(id) {
		p.log.Info().Str("camera_id", id).Msg("camera registered")
	}
	return Job{
		CameraID:   id,
		Seq:        s.nextSeq,
		Data:       ev.FrameData,
		Timestamp:  ev.Timestamp,
		Detections: ev.Detections,
		Width:      p.cfg.Width,
		Height:     p.cfg.Height * 2,
	}, true
}

// Apply swaps a decoded frame into its target. It reports false when the
// result was superseded by a newer frame and discarded.
func (p *Pipeline) Apply(r Result) bool {
	s, ok := p.streams[r.CameraID]
	if !ok {
		p.log.Warn().Str("camera_id", r.CameraID).Msg("decode result for unknown camera")
		return false
	}
	if r.Seq <= s.appliedSeq {
		p.log.Debug().Str("camera_id", r.CameraID).
			Uint64("seq", r.Seq).Uint64("applied", s.appliedSeq).
			Msg("discarding superseded frame")
		p.rec.FrameDropped("superseded")
		return false
	}
	s.appliedSeq = r.Seq

	if r.Err != nil {
		p.log.Warn().Err(r.Err).Str("camera_id", r.CameraID).Uint64("seq", r.Seq).Msg("frame decode failed")
		p.rec.FrameDecodeFailed(r.CameraID)
		s.Target.Visible = false
		s.Target.Thumbnail = nil
		s.Target.Err = r.Err.Error()
		return true
	}

	now := p.now()
	s.LastFrame = r.Data
	s.LastFrameAt = now
	s.Timestamp = r.Timestamp
	s.Detections = r.Detections
	s.Target = Target{Visible: true, Thumbnail: r.Thumbnail, Overlay: now}
	p.rec.FrameApplied(r.CameraID)
	return true
}

// Stream returns the stream for id, if it has been seen.
func (p *Pipeline) Stream(id string) (*Stream, bool) {
	s, ok := p.streams[id]
	return s, ok
}

// Streams returns every stream ordered by camera id.
func (p *Pipeline) Streams() []*Stream {
	out := make([]*Stream, 0, len(p.streams))
	for _, s := range p.streams {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}

// Stale returns the ids of streams whose last applied frame is older than
// the staleness window.
func (p *Pipeline) Stale(now time.Time) []string {
	var ids []string
	for _, s := range p.Streams() {
		if !s.LastFrameAt.IsZero() && now.Sub(s.LastFrameAt) > p.cfg.StaleAfter {
			ids = append(ids, s.CameraID)
		}
	}
	return ids
}

// IsStale reports whether a single stream has gone quiet.
func (p *Pipeline) IsStale(id string, now time.Time) bool {
	s, ok := p.streams[id]
	return ok && !s.LastFrameAt.IsZero() && now.Sub(s.LastFrameAt) > p.cfg.StaleAfter
}

func (p *Pipeline) stream(id string) *Stream {
	if s, ok := p.streams[id]; ok {
		return s
	}
	s := &Stream{CameraID: id}
	p.streams[id] = s
	return s
}

// Label summarizes detections for the overlay, e.g. "cow 92%, goat 61%".
func Label(dets []Detection) string {
	if len(dets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(dets))
	for _, d := range dets {
		parts = append(parts, fmt.Sprintf("%s %.0f%%", d.Label, d.Confidence*100))
	}
	return strings.Join(parts, ", ")
}
