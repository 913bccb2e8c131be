package bot

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// AudioInfo holds the resolved metadata for a single piece of audio.
// It is produced by the external resolution service and never mutated
// after creation.
type AudioInfo struct {
	Title        string
	Duration     int // seconds
	URL          string
	Uploader     string
	ThumbnailURL string
	FileSize     int64
	FileFormat   string
}

// SameTrack reports whether two AudioInfo values describe the same
// request, matched by title and URL. Songs restored from a snapshot are
// new values, so callers must never compare by pointer.
func (a AudioInfo) SameTrack(other AudioInfo) bool {
	return a.Title == other.Title && a.URL == other.URL
}

// UserRef identifies a requester. It stands in for a live platform user
// everywhere inside the core; resolving it back to a member object is an
// optional enrichment step at the UI boundary.
type UserRef struct {
	ID          snowflake.ID
	DisplayName string
}

// Song is one entry in a guild queue: what plays, who asked for it, and
// when it was admitted.
type Song struct {
	AudioInfo AudioInfo
	Requester UserRef
	AddedAt   time.Time
}

// NewSong creates a Song stamped with the current time.
func NewSong(info AudioInfo, requester UserRef) *Song {
	return &Song{
		AudioInfo: info,
		Requester: requester,
		AddedAt:   time.Now().UTC(),
	}
}
