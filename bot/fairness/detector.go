// Package fairness decides whether a user may add a song to a guild
// queue. It tracks two independent things: song identity per user
// (duplicate detection) and the one-pending-song-per-user slot
// (fairness), plus whose song is currently playing.
package fairness

import (
	"fmt"

	"github.com/disgoorg/snowflake/v2"

	"github.com/harukeys/GrooveBot-Go/bot"
	"github.com/harukeys/GrooveBot-Go/bot/provider"
)

// DefaultQueueLengthThreshold is the queue length below which all checks
// are bypassed. The bypass keeps a lone user in a quiet guild from being
// starved by rules meant for busy ones.
const DefaultQueueLengthThreshold = 5

// Denial classifies why CanAdd said no.
type Denial int

const (
	DenyNone Denial = iota
	DenyDuplicate
	DenyPendingSlot
	DenyCurrentlyPlaying
)

// Decision is the structured outcome of CanAdd. CanAdd never fails; a
// rejection is data, not an error.
type Decision struct {
	Allowed      bool
	Denial       Denial
	Reason       string
	PendingCount int
}

// Detector is the per-guild admission policy engine. It is purely
// in-memory and performs no I/O.
//
// Detector is not safe for concurrent use. The owning queue manager
// serializes every call under its guild lock so that CanAdd and Register
// happen in one critical section.
type Detector struct {
	threshold int
	providers *provider.Registry

	userSongs   map[snowflake.ID]map[Identifier]struct{}
	owners      map[Identifier]map[snowflake.ID]struct{}
	userPending map[snowflake.ID][]bot.AudioInfo
	playingUser snowflake.ID
}

// NewDetector creates a Detector. A non-positive threshold falls back to
// DefaultQueueLengthThreshold.
func NewDetector(threshold int, providers *provider.Registry) *Detector {
	if threshold <= 0 {
		threshold = DefaultQueueLengthThreshold
	}
	if providers == nil {
		providers = provider.NewDefault()
	}
	return &Detector{
		threshold:   threshold,
		providers:   providers,
		userSongs:   make(map[snowflake.ID]map[Identifier]struct{}),
		owners:      make(map[Identifier]map[snowflake.ID]struct{}),
		userPending: make(map[snowflake.ID][]bot.AudioInfo),
	}
}

// Threshold returns the active queue-length threshold.
func (d *Detector) Threshold() int { return d.threshold }

// CanAdd decides whether userID may add the song given the current
// queue length (pending plus the playing song, if any).
func (d *Detector) CanAdd(info bot.AudioInfo, userID snowflake.ID, queueLength int) Decision {
	// Anti-starvation relief valve: short queues skip every check,
	// duplicates included.
	if queueLength < d.threshold {
		return Decision{Allowed: true}
	}

	id := Identify(info, d.providers)
	if _, tracked := d.userSongs[userID][id]; tracked {
		return Decision{
			Denial: DenyDuplicate,
			Reason: fmt.Sprintf("%q is already in your queue", info.Title),
		}
	}

	if pending := len(d.userPending[userID]); pending > 0 {
		return Decision{
			Denial:       DenyPendingSlot,
			Reason:       fmt.Sprintf("you already have %d pending song(s)", pending),
			PendingCount: pending,
		}
	}

	if d.playingUser == userID && userID != 0 {
		return Decision{
			Denial: DenyCurrentlyPlaying,
			Reason: "your song is currently playing",
		}
	}

	return Decision{Allowed: true}
}

// Register records an admitted song. Must be called only after CanAdd
// allowed it, inside the same lock scope.
func (d *Detector) Register(info bot.AudioInfo, userID snowflake.ID) {
	d.addIdentifier(Identify(info, d.providers), userID)
	d.userPending[userID] = append(d.userPending[userID], info)
}

// UnregisterDuplicateOnly releases the duplicate-tracking entry for a
// song that left the queue without starting playback (skipped over,
// removed, cleared or replaced). The matching pending entry is dropped
// as well so the user's fairness slot frees up.
func (d *Detector) UnregisterDuplicateOnly(info bot.AudioInfo, userID snowflake.ID) {
	d.removeIdentifier(Identify(info, d.providers), userID)
	d.removePending(info, userID)
}

// NotifyStarted marks the song as playing. The duplicate entry stays so
// the user cannot re-queue the song the moment it starts; only the
// pending entry clears.
func (d *Detector) NotifyStarted(info bot.AudioInfo, userID snowflake.ID) {
	d.playingUser = userID
	d.removePending(info, userID)
}

// NotifyFinished releases the song's identity after it actually played
// to completion. This is the only path that fully frees a song for
// re-queueing by the same user.
func (d *Detector) NotifyFinished(info bot.AudioInfo, userID snowflake.ID) {
	if d.playingUser == userID {
		d.playingUser = 0
	}
	d.removeIdentifier(Identify(info, d.providers), userID)
}

// Replace atomically swaps the tracking entries for a queue-position
// replacement. Order checks (playing, about to play) are the queue
// manager's job; the detector only knows identity and ownership.
func (d *Detector) Replace(userID snowflake.ID, oldInfo, newInfo bot.AudioInfo) {
	d.removeIdentifier(Identify(oldInfo, d.providers), userID)
	d.addIdentifier(Identify(newInfo, d.providers), userID)

	pending := d.userPending[userID]
	for i, info := range pending {
		if info.SameTrack(oldInfo) {
			pending[i] = newInfo
			return
		}
	}
}

// PendingCount returns how many pending songs the user occupies.
func (d *Detector) PendingCount(userID snowflake.ID) int {
	return len(d.userPending[userID])
}

// CurrentlyPlayingUser returns the user whose song is playing, or zero.
func (d *Detector) CurrentlyPlayingUser() snowflake.ID {
	return d.playingUser
}

// Owners returns the users currently tracking the given song identity.
func (d *Detector) Owners(info bot.AudioInfo) []snowflake.ID {
	id := Identify(info, d.providers)
	owners := make([]snowflake.ID, 0, len(d.owners[id]))
	for userID := range d.owners[id] {
		owners = append(owners, userID)
	}
	return owners
}

// addIdentifier updates the forward map and the reverse index together.
// The two must never be touched separately or they drift.
func (d *Detector) addIdentifier(id Identifier, userID snowflake.ID) {
	songs, ok := d.userSongs[userID]
	if !ok {
		songs = make(map[Identifier]struct{})
		d.userSongs[userID] = songs
	}
	songs[id] = struct{}{}

	owners, ok := d.owners[id]
	if !ok {
		owners = make(map[snowflake.ID]struct{})
		d.owners[id] = owners
	}
	owners[userID] = struct{}{}
}

func (d *Detector) removeIdentifier(id Identifier, userID snowflake.ID) {
	if songs, ok := d.userSongs[userID]; ok {
		delete(songs, id)
		if len(songs) == 0 {
			delete(d.userSongs, userID)
		}
	}
	if owners, ok := d.owners[id]; ok {
		delete(owners, userID)
		if len(owners) == 0 {
			delete(d.owners, id)
		}
	}
}

// removePending drops the first pending entry matching by title and URL.
// Restored songs are new values, so matching is by content, never by
// slice identity.
func (d *Detector) removePending(info bot.AudioInfo, userID snowflake.ID) {
	pending := d.userPending[userID]
	for i, p := range pending {
		if p.SameTrack(info) {
			d.userPending[userID] = append(pending[:i], pending[i+1:]...)
			if len(d.userPending[userID]) == 0 {
				delete(d.userPending, userID)
			}
			return
		}
	}
}
