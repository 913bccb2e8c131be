package bot

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Logger is the minimal logging abstraction used across modules.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// Config provides typed access to configuration values.
type Config interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetFloat64(key string) float64
	// PositiveInt returns the configured value when it is a positive
	// integer, otherwise the fallback.
	PositiveInt(key string, fallback int) int
}

// Snapshot is the durable representation of one guild's queue state.
// FairnessState is never part of it; it is re-derived from the song list
// on restore.
type Snapshot struct {
	GuildID       snowflake.ID
	CurrentSong   *Song
	Queue         []*Song
	Position      float64 // seconds into CurrentSong
	LastUpdated   time.Time
	SchemaVersion string
}

// SnapshotStore persists per-guild queue snapshots. Save failures are
// logged by implementations and must never propagate into playback.
type SnapshotStore interface {
	Save(ctx context.Context, guildID snowflake.ID, current *Song, queue []*Song, position float64) error
	Load(ctx context.Context, guildID snowflake.ID) (*Snapshot, error)
	DeleteGuild(ctx context.Context, guildID snowflake.ID) error
	ListGuildIDs(ctx context.Context) ([]snowflake.ID, error)
}

// WorkerPool limits concurrency for background tasks.
type WorkerPool interface {
	Submit(task func()) error
	SubmitWait(task func() error) error
	Shutdown(ctx context.Context) error
	Size() int
}
