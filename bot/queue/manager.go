// Package queue owns per-guild song ordering: the pending list, the
// current-song slot, and the locking that keeps concurrent mutations
// serialized. Admission policy lives in the fairness package; this
// package decides order and lifecycle.
package queue

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/harukeys/GrooveBot-Go/bot"
	"github.com/harukeys/GrooveBot-Go/bot/fairness"
	"github.com/harukeys/GrooveBot-Go/bot/provider"
)

// DefaultMaxSongDurationSeconds caps admitted songs when no limit is
// configured.
const DefaultMaxSongDurationSeconds = 600

const persistTimeout = 10 * time.Second

// Options configures a Manager (and, through the Registry, all
// managers of a process).
type Options struct {
	QueueLengthThreshold   int
	MaxSongDurationSeconds int
	Providers              *provider.Registry
	Store                  bot.SnapshotStore
	Pool                   bot.WorkerPool
	Logger                 bot.Logger
}

// Manager coordinates one guild's queue. Every mutating operation runs
// under the guild's exclusive lock for its whole critical section,
// detector call included. The snapshot write happens after the lock is
// released, fire-and-forget.
type Manager struct {
	guildID         snowflake.ID
	maxSongDuration int
	detector        *fairness.Detector
	store           bot.SnapshotStore
	pool            bot.WorkerPool
	logger          bot.Logger

	mu       sync.RWMutex
	pending  []*bot.Song
	current  *bot.Song
	position float64
}

// NewManager creates a Manager for one guild. Non-positive limits fall
// back to defaults.
func NewManager(guildID snowflake.ID, opts Options) *Manager {
	maxDuration := opts.MaxSongDurationSeconds
	if maxDuration <= 0 {
		maxDuration = DefaultMaxSongDurationSeconds
	}

	logger := opts.Logger
	if logger != nil {
		logger = logger.With("guild_id", guildID)
	}

	return &Manager{
		guildID:         guildID,
		maxSongDuration: maxDuration,
		detector:        fairness.NewDetector(opts.QueueLengthThreshold, opts.Providers),
		store:           opts.Store,
		pool:            opts.Pool,
		logger:          logger,
	}
}

// GuildID returns the guild this manager belongs to.
func (m *Manager) GuildID() snowflake.ID { return m.guildID }

// AddSong admits a song for the user and returns its 1-based queue
// position. The duration cap applies before and independently of the
// fairness and duplicate checks.
func (m *Manager) AddSong(info bot.AudioInfo, user bot.UserRef) (int, error) {
	if info.Duration > m.maxSongDuration {
		return 0, m.admissionError(ErrSongTooLong, user, info.Title,
			fmt.Sprintf("song is %ds, limit is %ds", info.Duration, m.maxSongDuration), 0)
	}

	m.mu.Lock()
	queueLength := len(m.pending)
	if m.current != nil {
		queueLength++
	}

	decision := m.detector.CanAdd(info, user.ID, queueLength)
	if !decision.Allowed {
		m.mu.Unlock()
		kind := ErrFairnessViolation
		if decision.Denial == fairness.DenyDuplicate {
			kind = ErrDuplicateSong
		}
		return 0, m.admissionError(kind, user, info.Title, decision.Reason, decision.PendingCount)
	}

	m.pending = append(m.pending, bot.NewSong(info, user))
	m.detector.Register(info, user.ID)
	position := len(m.pending)
	m.mu.Unlock()

	m.persistAsync()
	return position, nil
}

// NextSong pops the head of the queue into the current-song slot and
// marks it started. Returns nil when the queue is empty, clearing the
// slot.
func (m *Manager) NextSong() *bot.Song {
	m.mu.Lock()
	hadCurrent := m.current != nil
	song := m.nextSongLocked()
	m.mu.Unlock()

	if song != nil || hadCurrent {
		m.persistAsync()
	}
	return song
}

// PeekNextSong returns the pending song at index without any mutation.
// Out-of-range indexes return nil: callers lean on this for safe
// lookahead, so it is deliberate behavior, not an error.
//
// Callers that only inspect the upcoming song (a requester-presence
// check, a queue embed) must use this, never NextSong, or a song is
// silently skipped.
func (m *Manager) PeekNextSong(index int) *bot.Song {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if index < 0 || index >= len(m.pending) {
		return nil
	}
	return m.pending[index]
}

// CurrentSong returns the song in the current slot, or nil.
func (m *Manager) CurrentSong() *bot.Song {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SkipCurrentSong clears the current slot without completion
// bookkeeping (the caller notifies the detector once the sink confirms
// the skip) and advances to the next song.
func (m *Manager) SkipCurrentSong() *bot.Song {
	m.mu.Lock()
	m.current = nil
	song := m.nextSongLocked()
	m.mu.Unlock()

	m.persistAsync()
	return song
}

// JumpToPosition drops the first n-1 pending songs, releasing their
// duplicate tracking, then advances to the song that was at position n
// (1-based). Out-of-range positions mutate nothing and return nil.
func (m *Manager) JumpToPosition(n int) *bot.Song {
	m.mu.Lock()
	if n < 1 || n > len(m.pending) {
		m.mu.Unlock()
		return nil
	}

	for _, song := range m.pending[:n-1] {
		m.detector.UnregisterDuplicateOnly(song.AudioInfo, song.Requester.ID)
	}
	m.pending = m.pending[n-1:]
	song := m.nextSongLocked()
	m.mu.Unlock()

	m.persistAsync()
	return song
}

// RemoveSongAtPosition removes the pending song at position n (1-based)
// without promoting anything. Out-of-range positions return nil.
func (m *Manager) RemoveSongAtPosition(n int) *bot.Song {
	m.mu.Lock()
	if n < 1 || n > len(m.pending) {
		m.mu.Unlock()
		return nil
	}

	song := m.pending[n-1]
	m.pending = slices.Delete(m.pending, n-1, n)
	m.detector.UnregisterDuplicateOnly(song.AudioInfo, song.Requester.ID)
	m.mu.Unlock()

	m.persistAsync()
	return song
}

// ReplaceUserSong swaps the user's first pending song for a new one,
// preserving its position. Songs already committed to near-term
// playback (playing now, or next up) cannot be swapped out from under
// the listeners.
func (m *Manager) ReplaceUserSong(user bot.UserRef, info bot.AudioInfo) (int, error) {
	if info.Duration > m.maxSongDuration {
		return 0, m.admissionError(ErrSongTooLong, user, info.Title,
			fmt.Sprintf("song is %ds, limit is %ds", info.Duration, m.maxSongDuration), 0)
	}

	m.mu.Lock()
	index := -1
	for i, song := range m.pending {
		if song.Requester.ID == user.ID {
			index = i
			break
		}
	}

	if index == -1 {
		playing := m.current != nil && m.current.Requester.ID == user.ID
		m.mu.Unlock()
		reason := "you have no pending song to replace"
		if playing {
			reason = "your song is currently playing"
		}
		return 0, m.admissionError(ErrReplacementRejected, user, info.Title, reason, 0)
	}
	if index == 0 {
		m.mu.Unlock()
		return 0, m.admissionError(ErrReplacementRejected, user, info.Title,
			"your song is about to play", 0)
	}

	oldInfo := m.pending[index].AudioInfo
	m.pending[index] = bot.NewSong(info, user)
	m.detector.Replace(user.ID, oldInfo, info)
	m.mu.Unlock()

	m.persistAsync()
	return index + 1, nil
}

// ClearQueue unregisters and drops every pending song and clears the
// current slot. Returns the number of songs removed.
func (m *Manager) ClearQueue() int {
	m.mu.Lock()
	count := len(m.pending)
	for _, song := range m.pending {
		m.detector.UnregisterDuplicateOnly(song.AudioInfo, song.Requester.ID)
	}
	m.pending = nil
	if m.current != nil {
		count++
		m.current = nil
	}
	m.position = 0
	m.mu.Unlock()

	m.persistAsync()
	return count
}

// NotifySongFinished releases the song's identity after the sink
// reports completion. Call exactly once per song that actually played
// to the end; skipped or jumped-past songs go through the duplicate-only
// unregister path instead.
func (m *Manager) NotifySongFinished(song *bot.Song) {
	m.mu.Lock()
	m.detector.NotifyFinished(song.AudioInfo, song.Requester.ID)
	m.mu.Unlock()
}

// PendingCount returns the number of pending songs.
func (m *Manager) PendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending)
}

// PendingSongs returns a copy of the pending list for read-only
// consumers like the notification layer.
func (m *Manager) PendingSongs() []*bot.Song {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.pending)
}

// UserPosition returns the 1-based position of the user's first pending
// song, or false when the user has none.
func (m *Manager) UserPosition(userID snowflake.ID) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, song := range m.pending {
		if song.Requester.ID == userID {
			return i + 1, true
		}
	}
	return 0, false
}

// SongsAhead returns a copy of the pending songs queued ahead of the
// user's first pending song, or false when the user has none. Position
// lookup and slice copy happen in one lock scope: a wait estimate built
// from two separate reads can watch the queue shrink between them.
func (m *Manager) SongsAhead(userID snowflake.ID) ([]*bot.Song, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, song := range m.pending {
		if song.Requester.ID == userID {
			return slices.Clone(m.pending[:i]), true
		}
	}
	return nil, false
}

// UserPendingCount returns how many pending slots the user occupies.
func (m *Manager) UserPendingCount(userID snowflake.ID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.detector.PendingCount(userID)
}

// Position returns the last recorded playback position in seconds.
func (m *Manager) Position() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.position
}

// SetPosition records the playback position so it survives restarts.
// The live position comes from the playback tracker; this is only the
// persisted checkpoint.
func (m *Manager) SetPosition(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	m.mu.Lock()
	m.position = seconds
	m.mu.Unlock()

	m.persistAsync()
}

// Restore rebuilds queue and fairness state from a snapshot. Must run
// before the manager starts accepting mutations for the guild.
//
// Fairness state is never persisted: it is replayed from the restored
// songs. The current song is registered before NotifyStarted so its
// duplicate entry exists exactly as it would after a live add and
// advance.
func (m *Manager) Restore(snapshot *bot.Snapshot) {
	if snapshot == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = slices.Clone(snapshot.Queue)
	m.current = snapshot.CurrentSong
	m.position = snapshot.Position

	for _, song := range m.pending {
		m.detector.Register(song.AudioInfo, song.Requester.ID)
	}
	if m.current != nil {
		m.detector.Register(m.current.AudioInfo, m.current.Requester.ID)
		m.detector.NotifyStarted(m.current.AudioInfo, m.current.Requester.ID)
	}
}

func (m *Manager) nextSongLocked() *bot.Song {
	if len(m.pending) == 0 {
		m.current = nil
		m.position = 0
		return nil
	}

	song := m.pending[0]
	m.pending = m.pending[1:]
	m.current = song
	m.position = 0
	m.detector.NotifyStarted(song.AudioInfo, song.Requester.ID)
	return song
}

// persistAsync schedules a best-effort snapshot write outside the guild
// lock. A failed write is logged and never reaches the caller; queue
// order correctness does not depend on it, only crash recovery does.
func (m *Manager) persistAsync() {
	if m.store == nil {
		return
	}

	task := func() {
		m.mu.RLock()
		pending := slices.Clone(m.pending)
		current := m.current
		position := m.position
		m.mu.RUnlock()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := m.store.Save(ctx, m.guildID, current, pending, position); err != nil {
			if m.logger != nil {
				m.logger.Error("snapshot write failed", "error", err)
			}
		}
	}

	if m.pool != nil {
		if err := m.pool.Submit(task); err == nil {
			return
		}
		// Pool shut down: write inline rather than dropping the snapshot.
	}
	task()
}
