package db

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"gorm.io/gorm"

	"github.com/harukeys/GrooveBot-Go/bot"
)

// SchemaVersion is written into every snapshot for forward
// compatibility. Bump when the persisted song shape changes.
const SchemaVersion = "1"

// SnapshotModel mirrors the queue_snapshots schema: one row per guild,
// the song lists serialized as JSON columns.
type SnapshotModel struct {
	gorm.Model
	GuildID       string `gorm:"uniqueIndex;not null"`
	CurrentSong   string // JSON object, empty when nothing is playing
	Queue         string `gorm:"type:text"` // JSON array of pending songs
	Position      float64
	SchemaVersion string `gorm:"not null"`
}

func (SnapshotModel) TableName() string {
	return "queue_snapshots"
}

// persistedSong is the on-disk shape of one song.
type persistedSong struct {
	Title         string    `json:"title"`
	Duration      int       `json:"duration"`
	URL           string    `json:"url"`
	Uploader      string    `json:"uploader,omitempty"`
	ThumbnailURL  string    `json:"thumbnailUrl,omitempty"`
	FileSize      int64     `json:"fileSize,omitempty"`
	FileFormat    string    `json:"fileFormat,omitempty"`
	RequesterID   string    `json:"requesterId"`
	RequesterName string    `json:"requesterName"`
	AddedAt       time.Time `json:"addedAt"`
}

func toPersisted(song *bot.Song) persistedSong {
	return persistedSong{
		Title:         song.AudioInfo.Title,
		Duration:      song.AudioInfo.Duration,
		URL:           song.AudioInfo.URL,
		Uploader:      song.AudioInfo.Uploader,
		ThumbnailURL:  song.AudioInfo.ThumbnailURL,
		FileSize:      song.AudioInfo.FileSize,
		FileFormat:    song.AudioInfo.FileFormat,
		RequesterID:   song.Requester.ID.String(),
		RequesterName: song.Requester.DisplayName,
		AddedAt:       song.AddedAt,
	}
}

func (p persistedSong) toSong() *bot.Song {
	// A requester id that no longer parses still restores: the song
	// keeps playing for whoever asked, enrichment happens upstream.
	requesterID, err := snowflake.Parse(p.RequesterID)
	if err != nil {
		requesterID = 0
	}
	return &bot.Song{
		AudioInfo: bot.AudioInfo{
			Title:        p.Title,
			Duration:     p.Duration,
			URL:          p.URL,
			Uploader:     p.Uploader,
			ThumbnailURL: p.ThumbnailURL,
			FileSize:     p.FileSize,
			FileFormat:   p.FileFormat,
		},
		Requester: bot.UserRef{ID: requesterID, DisplayName: p.RequesterName},
		AddedAt:   p.AddedAt,
	}
}
