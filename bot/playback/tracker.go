// Package playback tracks how far into the current song each guild is,
// from wall-clock time with pause compensation, so nothing ever polls
// the audio sink for its position.
package playback

import (
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Tracker keeps one timing session per guild. The audio sink's
// start/pause/resume/stop callbacks drive it; status queries read it.
//
// The sink's callback ordering is not fully trustworthy, so OnPause
// while paused and OnResume while playing are deliberate no-ops rather
// than errors.
type Tracker struct {
	mu       sync.Mutex
	sessions map[snowflake.ID]*session
	now      func() time.Time
}

type session struct {
	startedAt   time.Time
	pausedTotal time.Duration
	pauseStart  time.Time // zero while playing
}

// NewTracker creates a Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[snowflake.ID]*session),
		now:      time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// OnStart begins tracking a new song for the guild, discarding any
// previous session.
func (t *Tracker) OnStart(guildID snowflake.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[guildID] = &session{startedAt: t.now()}
}

// OnPause records the pause start. No-op when not tracking or already
// paused.
func (t *Tracker) OnPause(guildID snowflake.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[guildID]
	if !ok || !s.pauseStart.IsZero() {
		return
	}
	s.pauseStart = t.now()
}

// OnResume folds the finished pause into the paused total. No-op when
// not tracking or not paused.
func (t *Tracker) OnResume(guildID snowflake.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[guildID]
	if !ok || s.pauseStart.IsZero() {
		return
	}
	s.pausedTotal += t.now().Sub(s.pauseStart)
	s.pauseStart = time.Time{}
}

// OnStop discards all tracking state for the guild.
func (t *Tracker) OnStop(guildID snowflake.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, guildID)
}

// Position returns the seconds into the current song, or false when the
// guild is not tracking. The result is never negative.
func (t *Tracker) Position(guildID snowflake.ID) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[guildID]
	if !ok {
		return 0, false
	}

	now := t.now()
	elapsed := now.Sub(s.startedAt) - s.pausedTotal
	if !s.pauseStart.IsZero() {
		elapsed -= now.Sub(s.pauseStart)
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed.Seconds(), true
}
