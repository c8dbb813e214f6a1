package frames

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	ids []string
}

func (r *fakeRegistry) RegisterCamera(id string) bool {
	for _, existing := range r.ids {
		if existing == id {
			return false
		}
	}
	r.ids = append(r.ids, id)
	return true
}

type countingRecorder struct {
	applied, failed int
	dropped         map[string]int
}

func (c *countingRecorder) FrameApplied(string) { c.applied++ }
func (c *countingRecorder) FrameDecodeFailed(string) { c.failed++ }
func (c *countingRecorder) FrameDropped(reason string) {
	if c.dropped == nil {
		c.dropped = map[string]int{}
	}
	c.dropped[reason]++
}

func jpegFrame(t *testing.T, w, h int, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newTestPipeline(reg Registry, opts ...Option) *Pipeline {
	return NewPipeline(Config{Width: 16, Height: 6, StaleAfter: 10 * time.Second}, reg, zerolog.Nop(), opts...)
}

func TestFrameEventAcceptsNumericCameraID(t *testing.T) {
	var ev FrameEvent
	require.NoError(t, json.Unmarshal([]byte(`{"camera_id":3,"frame":"abc","detections":[{"label":"pig","confidence":0.8,"box":[1,2,3,4]}]}`), &ev))
	assert.Equal(t, "3", string(ev.CameraID))
	assert.Equal(t, "pig 80%", Label(ev.Detections))
}

func TestFirstFrameCreatesStreamAndRegistersCamera(t *testing.T) {
	reg := &fakeRegistry{}
	p := newTestPipeline(reg)

	job, ok := p.OnFrame(FrameEvent{CameraID: "cam-1", FrameData: jpegFrame(t, 64, 48, color.White)})
	require.True(t, ok)
	assert.Equal(t, uint64(1), job.Seq)
	assert.Equal(t, []string{"cam-1"}, reg.ids)

	_, ok = p.OnFrame(FrameEvent{CameraID: "cam-1", FrameData: "x"})
	require.True(t, ok)
	assert.Equal(t, []string{"cam-1"}, reg.ids, "registered once")

	s, ok := p.Stream("cam-1")
	require.True(t, ok)
	assert.False(t, s.Target.Visible, "nothing applied yet")
}

func TestEveryFrameReassertsCamera(t *testing.T) {
	reg := &fakeRegistry{}
	p := newTestPipeline(reg)

	_, ok := p.OnFrame(FrameEvent{CameraID: "3", FrameData: "x"})
	require.True(t, ok)
	reg.ids = nil // registry reset elsewhere

	_, ok = p.OnFrame(FrameEvent{CameraID: "3", FrameData: "y"})
	require.True(t, ok)
	assert.Equal(t, []string{"3"}, reg.ids)
}

func TestIncompleteFramesAreDropped(t *testing.T) {
	reg := &fakeRegistry{}
	rec := &countingRecorder{}
	p := newTestPipeline(reg, WithRecorder(rec))

	for _, ev := range []FrameEvent{
		{CameraID: "", FrameData: "abc"},
		{CameraID: "  ", FrameData: "abc"},
		{CameraID: "cam-1", FrameData: ""},
	} {
		_, ok := p.OnFrame(ev)
		assert.False(t, ok)
	}

	assert.Empty(t, p.Streams())
	assert.Empty(t, reg.ids)
	assert.Equal(t, 3, rec.dropped["incomplete"])
}

func TestApplyDecodedFrame(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := newTestPipeline(nil, WithClock(func() time.Time { return now }))

	job, _ := p.OnFrame(FrameEvent{
		CameraID:   "cam-1",
		FrameData:  jpegFrame(t, 320, 240, color.RGBA{R: 200, A: 255}),
		Timestamp:  "2026-03-01 09:00:00",
		Detections: []Detection{{Label: "cow", Confidence: 0.92}},
	})
	res := Decode(job)
	require.NoError(t, res.Err)
	require.True(t, p.Apply(res))

	s, _ := p.Stream("cam-1")
	assert.True(t, s.Target.Visible)
	assert.Equal(t, now, s.Target.Overlay)
	require.NotNil(t, s.Target.Thumbnail)
	b := s.Target.Thumbnail.Img.Bounds()
	assert.LessOrEqual(t, b.Dx(), 16)
	assert.LessOrEqual(t, b.Dy(), 12)
	assert.Equal(t, "cow 92%", Label(s.Detections))
}

func TestOlderDecodeCompletingLaterIsDiscarded(t *testing.T) {
	rec := &countingRecorder{}
	p := newTestPipeline(nil, WithRecorder(rec))

	older, _ := p.OnFrame(FrameEvent{CameraID: "cam-1", FrameData: jpegFrame(t, 8, 8, color.Black)})
	newer, _ := p.OnFrame(FrameEvent{CameraID: "cam-1", FrameData: jpegFrame(t, 8, 8, color.White)})

	// The newer decode finishes first.
	require.True(t, p.Apply(Decode(newer)))
	assert.False(t, p.Apply(Decode(older)))

	s, _ := p.Stream("cam-1")
	assert.Equal(t, newer.Data, s.LastFrame)
	assert.Equal(t, 1, rec.applied)
	assert.Equal(t, 1, rec.dropped["superseded"])
}

func TestStaleFailureDoesNotHideNewerFrame(t *testing.T) {
	p := newTestPipeline(nil)

	older, _ := p.OnFrame(FrameEvent{CameraID: "cam-1", FrameData: "not-base64!"})
	newer, _ := p.OnFrame(FrameEvent{CameraID: "cam-1", FrameData: jpegFrame(t, 8, 8, color.White)})

	require.True(t, p.Apply(Decode(newer)))
	assert.False(t, p.Apply(Decode(older)))

	s, _ := p.Stream("cam-1")
	assert.True(t, s.Target.Visible)
}

func TestDecodeFailureHidesTarget(t *testing.T) {
	rec := &countingRecorder{}
	p := newTestPipeline(nil, WithRecorder(rec))

	good, _ := p.OnFrame(FrameEvent{CameraID: "cam-1", FrameData: jpegFrame(t, 8, 8, color.White)})
	require.True(t, p.Apply(Decode(good)))

	bad, _ := p.OnFrame(FrameEvent{CameraID: "cam-1", FrameData: base64.StdEncoding.EncodeToString([]byte("not a jpeg"))})
	res := Decode(bad)
	require.Error(t, res.Err)
	require.True(t, p.Apply(res))

	s, _ := p.Stream("cam-1")
	assert.False(t, s.Target.Visible)
	assert.Nil(t, s.Target.Thumbnail)
	assert.NotEmpty(t, s.Target.Err)
	assert.Equal(t, 1, rec.failed)

	// The next good frame recovers the target.
	next, _ := p.OnFrame(FrameEvent{CameraID: "cam-1", FrameData: jpegFrame(t, 8, 8, color.White)})
	require.True(t, p.Apply(Decode(next)))
	assert.True(t, s.Target.Visible)
	assert.Empty(t, s.Target.Err)
}

func TestCamerasAreIndependent(t *testing.T) {
	p := newTestPipeline(nil)

	a1, _ := p.OnFrame(FrameEvent{CameraID: "a", FrameData: jpegFrame(t, 4, 4, color.White)})
	b1, _ := p.OnFrame(FrameEvent{CameraID: "b", FrameData: jpegFrame(t, 4, 4, color.White)})
	assert.Equal(t, uint64(1), a1.Seq)
	assert.Equal(t, uint64(1), b1.Seq)

	assert.True(t, p.Apply(Decode(b1)))
	assert.True(t, p.Apply(Decode(a1)))

	var ids []string
	for _, s := range p.Streams() {
		ids = append(ids, s.CameraID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestApplyUnknownCamera(t *testing.T) {
	p := newTestPipeline(nil)
	assert.False(t, p.Apply(Result{CameraID: "ghost", Seq: 1, Err: errors.New("x")}))
}

func TestStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := newTestPipeline(nil, WithClock(func() time.Time { return now }))

	job, _ := p.OnFrame(FrameEvent{CameraID: "cam-1", FrameData: jpegFrame(t, 4, 4, color.White)})
	p.Apply(Decode(job))
	p.OnFrame(FrameEvent{CameraID: "cam-2", FrameData: "pending"})

	assert.Empty(t, p.Stale(now.Add(5*time.Second)))
	assert.Equal(t, []string{"cam-1"}, p.Stale(now.Add(11*time.Second)))
	assert.True(t, p.IsStale("cam-1", now.Add(11*time.Second)))
	assert.False(t, p.IsStale("cam-2", now.Add(time.Hour)))
}

func TestDecodeDataURL(t *testing.T) {
	data := "data:image/jpeg;base64," + jpegFrame(t, 4, 4, color.White)
	res := Decode(Job{CameraID: "c", Seq: 1, Data: data, Width: 8, Height: 8})
	assert.NoError(t, res.Err)
}

func TestFit(t *testing.T) {
	tests := []struct {
		sw, sh, mw, mh, ww, wh int
	}{
		{640, 480, 32, 24, 32, 24},
		{640, 480, 32, 12, 16, 12},
		{10, 10, 32, 24, 10, 10},
		{1000, 1, 10, 10, 10, 1},
	}
	for _, tt := range tests {
		w, h := fit(tt.sw, tt.sh, tt.mw, tt.mh)
		if w != tt.ww || h != tt.wh {
			t.Errorf("fit(%d,%d,%d,%d) = %d,%d, want %d,%d", tt.sw, tt.sh, tt.mw, tt.mh, w, h, tt.ww, tt.wh)
		}
	}
}
