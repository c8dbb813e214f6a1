package alerts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aditya-Ranjan1234/AgroVision/internal/channel"
)

// Defaults for the dashboard list.
const (
	DefaultCapacity = 5
	DefaultTTL      = time.Hour
	DefaultCooldown = 300 * time.Second

	// seenLimit bounds the keys remembered for baseline replays.
	seenLimit = 256
)

// Config bounds the list.
type Config struct {
	Capacity int
	TTL      time.Duration
}

// Outcome describes what OnAlert did.
type Outcome struct {
	Alert     Alert
	Inserted  bool
	Duplicate bool
	Evicted   *Alert
	// Notify is set when the alert should trigger sound and a desktop
	// notification. Suppressed is set for a high alert inside the cooldown.
	Notify     bool
	Suppressed bool
}

// Recorder receives pipeline counters.
type Recorder interface {
	AlertReceived(severity string)
	AlertEvicted()
	AlertExpired()
	AlertDropped()
	NotificationFired()
	NotificationSuppressed()
}

type nopRecorder struct{}

func (nopRecorder) AlertReceived(string) {}
func (nopRecorder) AlertEvicted() {}
func (nopRecorder) AlertExpired() {}
func (nopRecorder) AlertDropped() {}
func (nopRecorder) NotificationFired() {}
func (nopRecorder) NotificationSuppressed() {}

// Pipeline owns the alert list, newest first.
type Pipeline struct {
	cfg      Config
	cooldown *Cooldown
	rec      Recorder
	log      zerolog.Logger
	now      func() time.Time

	list    []Alert
	nextSeq int

	// seen holds the keys of every alert ever inserted, oldest first in
	// seenOrder, so a baseline replayed after a reconnect does not bring
	// back alerts that were evicted or expired.
	seen      map[string]struct{}
	seenOrder []string
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

// NewPipeline creates an empty pipeline sharing cooldown.
func NewPipeline(cfg Config, cooldown *Cooldown, log zerolog.Logger, opts ...Option) *Pipeline {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cooldown == nil {
		cooldown = NewCooldown(DefaultCooldown)
	}
	p := &Pipeline{
		cfg:      cfg,
		cooldown: cooldown,
		rec:      nopRecorder{},
		log:      log,
		now:      time.Now,
		seen:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TTL is the lifetime given to each inserted alert.
func (p *Pipeline) TTL() time.Duration { return p.cfg.TTL }

// Decode parses a new_alert payload.
func Decode(ev channel.Event) (Alert, error) {
	var a Alert
	if err := ev.Decode(&a); err != nil {
		return Alert{}, err
	}
	return a, nil
}

// OnAlert inserts a live alert at the head of the list. ok is false when the
// alert was malformed and dropped. Only alerts still listed count as
// duplicates.
func (p *Pipeline) OnAlert(a Alert) (Outcome, bool) {
	return p.insert(a, false)
}

func (p *Pipeline) insert(a Alert, replay bool) (Outcome, bool) {
	a.Message = strings.TrimSpace(a.Message)
	if a.Message == "" {
		p.log.Warn().Str("id", string(a.ID)).Msg("dropping alert without message")
		p.rec.AlertDropped()
		return Outcome{}, false
	}
	a.Severity = string(a.Level())

	key := a.key()
	for _, existing := range p.list {
		if existing.key() == key {
			return Outcome{Alert: existing, Duplicate: true}, true
		}
	}
	if _, ok := p.seen[key]; replay && ok {
		p.log.Debug().Str("id", string(a.ID)).Msg("skipping replayed alert")
		return Outcome{Alert: a, Duplicate: true}, true
	}

	now := p.now()
	if a.ID == "" {
		p.nextSeq++
		a.ID = channel.FlexString(fmt.Sprintf("seq-%d", p.nextSeq))
	}
	a.InsertedAt = now
	a.ExpiresAt = now.Add(p.cfg.TTL)

	out := Outcome{Alert: a, Inserted: true}
	p.remember(key)
	p.list = append([]Alert{a}, p.list...)
	if len(p.list) > p.cfg.Capacity {
		evicted := p.list[len(p.list)-1]
		p.list = p.list[:len(p.list)-1]
		out.Evicted = &evicted
		p.rec.AlertEvicted()
	}
	p.rec.AlertReceived(a.Severity)

	if a.Level() == High {
		if p.cooldown.Allow(now) {
			out.Notify = true
			p.rec.NotificationFired()
		} else {
			out.Suppressed = true
			p.rec.NotificationSuppressed()
			p.log.Debug().Str("id", string(a.ID)).
				Dur("remaining", p.cooldown.Remaining(now)).
				Msg("high alert inside cooldown")
		}
	}

	p.log.Info().Str("id", string(a.ID)).Str("severity", a.Severity).Msg("alert inserted")
	return out, true
}

func (p *Pipeline) remember(key string) {
	if _, ok := p.seen[key]; ok {
		return
	}
	p.seen[key] = struct{}{}
	p.seenOrder = append(p.seenOrder, key)
	if len(p.seenOrder) > seenLimit {
		delete(p.seen, p.seenOrder[0])
		p.seenOrder = p.seenOrder[1:]
	}
}

// OnInitialAlerts replays a baseline oldest-first so the newest ends on top.
// Alerts this pipeline has already inserted, listed or not, are reported as
// duplicates.
func (p *Pipeline) OnInitialAlerts(raw []Alert) []Outcome {
	ordered := oldestFirst(raw)
	outcomes := make([]Outcome, 0, len(ordered))
	for _, a := range ordered {
		if out, ok := p.insert(a, true); ok {
			outcomes = append(outcomes, out)
		}
	}
	return outcomes
}

// OnInitialData decodes and replays the alerts of an initial_data baseline.
func (p *Pipeline) OnInitialData(raw []json.RawMessage) []Outcome {
	decoded := make([]Alert, 0, len(raw))
	for _, r := range raw {
		var a Alert
		if err := json.Unmarshal(r, &a); err != nil {
			p.log.Warn().Err(err).Msg("dropping malformed baseline alert")
			p.rec.AlertDropped()
			continue
		}
		decoded = append(decoded, a)
	}
	return p.OnInitialAlerts(decoded)
}

// Expire removes the alert with id if it is the instance that expires at
// expiresAt. A timer left over from an earlier instance with the same id
// leaves a re-inserted alert alone. It is safe to call more than once.
func (p *Pipeline) Expire(id string, expiresAt time.Time) bool {
	for i, a := range p.list {
		if string(a.ID) == id && a.ExpiresAt.Equal(expiresAt) {
			p.list = append(p.list[:i], p.list[i+1:]...)
			p.rec.AlertExpired()
			return true
		}
	}
	return false
}

// Sweep removes every alert whose TTL has elapsed at now and returns their
// ids.
func (p *Pipeline) Sweep(now time.Time) []string {
	var removed []string
	kept := p.list[:0]
	for _, a := range p.list {
		if !now.Before(a.ExpiresAt) {
			removed = append(removed, string(a.ID))
			p.rec.AlertExpired()
			continue
		}
		kept = append(kept, a)
	}
	p.list = kept
	return removed
}

// List returns a copy of the alerts, newest first.
func (p *Pipeline) List() []Alert {
	return append([]Alert(nil), p.list...)
}

// Len returns the number of listed alerts.
func (p *Pipeline) Len() int { return len(p.list) }

// oldestFirst orders by server timestamp when every entry has one; otherwise
// the delivered order is kept.
func oldestFirst(in []Alert) []Alert {
	out := append([]Alert(nil), in...)
	times := make([]time.Time, len(out))
	for i, a := range out {
		t := a.Time()
		if t.IsZero() {
			return out
		}
		times[i] = t
	}
	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return times[idx[i]].Before(times[idx[j]]) })
	sorted := make([]Alert, len(out))
	for i, k := range idx {
		sorted[i] = out[k]
	}
	return sorted
}
