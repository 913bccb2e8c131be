// Package db persists per-guild queue snapshots in SQLite. Saving is
// best-effort: the queue keeps playing even when a write fails, the
// failure only costs crash-recovery fidelity.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/harukeys/GrooveBot-Go/bot"
	"github.com/harukeys/GrooveBot-Go/bot/provider"
)

// Store is a SnapshotStore backed by SQLite.
type Store struct {
	db        *gorm.DB
	providers *provider.Registry
	logger    bot.Logger

	mu         sync.Mutex
	guildLocks map[snowflake.ID]*sync.Mutex
}

var _ bot.SnapshotStore = (*Store)(nil)

// NewSQLiteStore opens (or creates) the snapshot database at dsn.
func NewSQLiteStore(dsn string, providers *provider.Registry, log bot.Logger, gormLogger logger.Interface) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn required")
	}
	if providers == nil {
		providers = provider.NewDefault()
	}
	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	dbDir := filepath.Dir(dsn)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 gormLogger,
	})
	if err != nil {
		return nil, err
	}

	if err := applySQLitePragmas(gdb); err != nil {
		return nil, err
	}

	if err := gdb.AutoMigrate(&SnapshotModel{}); err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Store{
		db:         gdb,
		providers:  providers,
		logger:     log,
		guildLocks: make(map[snowflake.ID]*sync.Mutex),
	}, nil
}

// ConfigurePool updates the database connection pool settings.
func (s *Store) ConfigurePool(maxOpen, maxIdle int, maxLifetime time.Duration) error {
	if s == nil || s.db == nil {
		return errors.New("store not configured")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if maxOpen >= 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime >= 0 {
		sqlDB.SetConnMaxLifetime(maxLifetime)
	}
	return nil
}

// Save upserts the guild's snapshot. Writes for the same guild are
// serialized so interleaved partial writes cannot happen.
func (s *Store) Save(ctx context.Context, guildID snowflake.ID, current *bot.Song, queue []*bot.Song, position float64) error {
	lock := s.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	pending := make([]persistedSong, 0, len(queue))
	for _, song := range queue {
		pending = append(pending, toPersisted(song))
	}
	queueJSON, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}

	var currentJSON string
	if current != nil {
		raw, err := json.Marshal(toPersisted(current))
		if err != nil {
			return fmt.Errorf("marshal current song: %w", err)
		}
		currentJSON = string(raw)
	}

	model := SnapshotModel{
		GuildID:       guildID.String(),
		CurrentSong:   currentJSON,
		Queue:         string(queueJSON),
		Position:      position,
		SchemaVersion: SchemaVersion,
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "guild_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"current_song", "queue", "position", "schema_version", "updated_at",
		}),
	}).Create(&model).Error
}

// Load reads the guild's snapshot, or returns (nil, nil) when none was
// saved. Songs whose URL no registered provider recognizes are treated
// as corrupt and dropped; a partial restore beats no restore.
func (s *Store) Load(ctx context.Context, guildID snowflake.ID) (*bot.Snapshot, error) {
	var model SnapshotModel
	err := s.db.WithContext(ctx).Where("guild_id = ?", guildID.String()).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snapshot := &bot.Snapshot{
		GuildID:       guildID,
		Position:      model.Position,
		LastUpdated:   model.UpdatedAt,
		SchemaVersion: model.SchemaVersion,
	}

	if model.CurrentSong != "" {
		var p persistedSong
		if err := json.Unmarshal([]byte(model.CurrentSong), &p); err != nil {
			s.warn("dropping unreadable current song", "guild_id", guildID, "error", err)
		} else if reason, ok := s.validate(p); !ok {
			s.warn("dropping invalid current song", "guild_id", guildID, "title", p.Title, "reason", reason)
		} else {
			snapshot.CurrentSong = p.toSong()
		}
	}
	if snapshot.CurrentSong == nil {
		snapshot.Position = 0
	}

	if model.Queue != "" {
		var pending []persistedSong
		if err := json.Unmarshal([]byte(model.Queue), &pending); err != nil {
			return nil, fmt.Errorf("unmarshal queue: %w", err)
		}
		for _, p := range pending {
			if reason, ok := s.validate(p); !ok {
				s.warn("dropping invalid queued song", "guild_id", guildID, "title", p.Title, "reason", reason)
				continue
			}
			snapshot.Queue = append(snapshot.Queue, p.toSong())
		}
	}

	return snapshot, nil
}

// DeleteGuild removes the guild's snapshot entirely.
func (s *Store) DeleteGuild(ctx context.Context, guildID snowflake.ID) error {
	lock := s.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	return s.db.WithContext(ctx).Unscoped().
		Where("guild_id = ?", guildID.String()).
		Delete(&SnapshotModel{}).Error
}

// ListGuildIDs returns every guild with a saved snapshot.
func (s *Store) ListGuildIDs(ctx context.Context) ([]snowflake.ID, error) {
	var raw []string
	err := s.db.WithContext(ctx).Model(&SnapshotModel{}).Pluck("guild_id", &raw).Error
	if err != nil {
		return nil, err
	}

	ids := make([]snowflake.ID, 0, len(raw))
	for _, v := range raw {
		id, err := snowflake.Parse(v)
		if err != nil {
			s.warn("skipping unparsable guild id", "guild_id", v, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) validate(p persistedSong) (string, bool) {
	switch {
	case p.Title == "":
		return "missing title", false
	case p.URL == "":
		return "missing url", false
	case p.Duration < 0:
		return "negative duration", false
	case !s.providers.Recognized(p.URL):
		return "unrecognized provider url", false
	}
	return "", true
}

func (s *Store) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Store) guildLock(guildID snowflake.ID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.guildLocks[guildID]
	if !ok {
		lock = &sync.Mutex{}
		s.guildLocks[guildID] = lock
	}
	return lock
}

func applySQLitePragmas(db *gorm.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return err
		}
	}
	return nil
}
