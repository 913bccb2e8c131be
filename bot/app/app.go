// Package app wires the application container: config, logging,
// storage, providers, queue registry, playback tracking and the
// per-user rate limiter.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	gormlogger "gorm.io/gorm/logger"

	"github.com/harukeys/GrooveBot-Go/bot"
	"github.com/harukeys/GrooveBot-Go/bot/config"
	"github.com/harukeys/GrooveBot-Go/bot/db"
	logpkg "github.com/harukeys/GrooveBot-Go/bot/logger"
	"github.com/harukeys/GrooveBot-Go/bot/playback"
	"github.com/harukeys/GrooveBot-Go/bot/provider"
	"github.com/harukeys/GrooveBot-Go/bot/queue"
	"github.com/harukeys/GrooveBot-Go/bot/ratelimit"
	"github.com/harukeys/GrooveBot-Go/bot/worker"
)

// App wires all application dependencies.
type App struct {
	Config    *config.Config
	Logger    *logpkg.Logger
	Store     *db.Store
	Pool      *worker.Pool
	Providers *provider.Registry
	Queues    *queue.Registry
	Tracker   *playback.Tracker
	Limiter   *ratelimit.PerUser
	Build     BuildInfo
}

// BuildInfo provides build-time metadata.
type BuildInfo struct {
	RuntimeVer string
	BinVersion string
	CommitSHA  string
	BuildTime  string
	BuildArch  string
}

var builtinProviders = []provider.Provider{
	provider.NewYouTube(),
	provider.NewAudioFile(),
}

// New builds the application container.
func New(configPath string, build BuildInfo) (*App, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	var log *logpkg.Logger
	if logFile := strings.TrimSpace(conf.GetString("LogFile")); logFile != "" {
		log, err = logpkg.NewWithFile(conf.GetString("LogLevel"), conf.GetString("LogFormat"), conf.GetBool("LogSource"), logFile)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
	} else {
		log = logpkg.New(conf.GetString("LogLevel"), conf.GetString("LogFormat"), conf.GetBool("LogSource"))
	}

	providers := provider.New()
	for _, p := range builtinProviders {
		if !conf.ProviderEnabled(p.Name()) {
			log.Info("provider disabled by config", "provider", p.Name())
			continue
		}
		if err := providers.Register(p); err != nil {
			return nil, fmt.Errorf("register provider %s: %w", p.Name(), err)
		}
	}

	gormLogger := logpkg.NewGormLogger(log.With("component", "db"), mapGormLogLevel(conf.GetString("GormLogLevel")))
	databasePath := strings.TrimSpace(conf.GetString("Database"))
	if databasePath == "" {
		databasePath = "queues.db"
	}

	store, err := db.NewSQLiteStore(databasePath, providers, log, gormLogger)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}
	poolMaxOpen := conf.GetInt("DBMaxOpenConns")
	poolMaxIdle := conf.GetInt("DBMaxIdleConns")
	poolMaxLifetimeSec := conf.GetInt("DBConnMaxLifetimeSec")
	if err := store.ConfigurePool(poolMaxOpen, poolMaxIdle, time.Duration(poolMaxLifetimeSec)*time.Second); err != nil {
		return nil, fmt.Errorf("configure db pool: %w", err)
	}

	pool := worker.New(conf.PositiveInt("WorkerPoolSize", 4))

	queues := queue.NewRegistry(queue.Options{
		QueueLengthThreshold:   conf.PositiveInt("QueueLengthThreshold", fairnessThresholdDefault),
		MaxSongDurationSeconds: conf.PositiveInt("MaxSongDurationSeconds", queue.DefaultMaxSongDurationSeconds),
		Providers:              providers,
		Store:                  store,
		Pool:                   pool,
		Logger:                 log,
	})

	return &App{
		Config:    conf,
		Logger:    log,
		Store:     store,
		Pool:      pool,
		Providers: providers,
		Queues:    queues,
		Tracker:   playback.NewTracker(),
		Limiter:   ratelimit.New(conf.GetFloat64("RateLimitPerSecond"), conf.GetInt("RateLimitBurst")),
		Build:     build,
	}, nil
}

const fairnessThresholdDefault = 5

// Start restores every guild's saved queue before any commands are
// accepted.
func (a *App) Start(ctx context.Context) error {
	if err := a.Queues.RestoreAll(ctx); err != nil {
		return fmt.Errorf("restore queues: %w", err)
	}
	a.Logger.Info("queues restored", "guilds", len(a.Queues.GuildIDs()))
	return nil
}

// AddSong throttles the user and then runs queue admission. The rate
// limit is an outer guard, not part of the admission rules.
func (a *App) AddSong(guildID snowflake.ID, info bot.AudioInfo, user bot.UserRef) (int, error) {
	if err := a.Limiter.Allow(user.ID); err != nil {
		return 0, err
	}
	return a.Queues.Get(guildID).AddSong(info, user)
}

// NextSong advances the guild's queue and starts position tracking for
// the promoted song.
func (a *App) NextSong(guildID snowflake.ID) *bot.Song {
	song := a.Queues.Get(guildID).NextSong()
	if song != nil {
		a.Tracker.OnStart(guildID)
	} else {
		a.Tracker.OnStop(guildID)
	}
	return song
}

// SongFinished releases the finished song's identity, stops tracking
// and advances to the next song.
func (a *App) SongFinished(guildID snowflake.ID) *bot.Song {
	m := a.Queues.Get(guildID)
	if current := m.CurrentSong(); current != nil {
		m.NotifySongFinished(current)
	}
	a.Tracker.OnStop(guildID)

	next := m.NextSong()
	if next != nil {
		a.Tracker.OnStart(guildID)
	}
	return next
}

// SkipSong ends the current song early. A skipped song counts as done:
// its identity is released the same as a completed one.
func (a *App) SkipSong(guildID snowflake.ID) *bot.Song {
	m := a.Queues.Get(guildID)
	if current := m.CurrentSong(); current != nil {
		m.NotifySongFinished(current)
	}
	a.Tracker.OnStop(guildID)

	next := m.SkipCurrentSong()
	if next != nil {
		a.Tracker.OnStart(guildID)
	}
	return next
}

// PauseSong freezes position tracking and checkpoints the position so
// a crash during the pause restores to the right second.
func (a *App) PauseSong(guildID snowflake.ID) {
	a.Tracker.OnPause(guildID)
	a.checkpoint(guildID)
}

// ResumeSong resumes position tracking.
func (a *App) ResumeSong(guildID snowflake.ID) {
	a.Tracker.OnResume(guildID)
}

// Position returns the guild's live playback position, falling back to
// the last persisted checkpoint when nothing is tracked.
func (a *App) Position(guildID snowflake.ID) float64 {
	if pos, ok := a.Tracker.Position(guildID); ok {
		return pos
	}
	if m, ok := a.Queues.Lookup(guildID); ok {
		return m.Position()
	}
	return 0
}

// EstimatedWait returns how long until the user's first pending song
// plays: the remainder of the current song plus every pending song
// ahead of theirs. Returns false when the user has nothing queued.
func (a *App) EstimatedWait(guildID snowflake.ID, userID snowflake.ID) (time.Duration, bool) {
	m, ok := a.Queues.Lookup(guildID)
	if !ok {
		return 0, false
	}
	ahead, ok := m.SongsAhead(userID)
	if !ok {
		return 0, false
	}

	var seconds float64
	if current := m.CurrentSong(); current != nil {
		remaining := float64(current.AudioInfo.Duration) - a.Position(guildID)
		if remaining > 0 {
			seconds += remaining
		}
	}
	for _, song := range ahead {
		seconds += float64(song.AudioInfo.Duration)
	}
	return time.Duration(seconds * float64(time.Second)), true
}

// DropGuild tears down all state for a guild the bot has left.
func (a *App) DropGuild(ctx context.Context, guildID snowflake.ID) error {
	a.Tracker.OnStop(guildID)
	return a.Queues.Drop(ctx, guildID)
}

// checkpoint copies the live tracker position into the manager so the
// next snapshot carries it.
func (a *App) checkpoint(guildID snowflake.ID) {
	if pos, ok := a.Tracker.Position(guildID); ok {
		a.Queues.Get(guildID).SetPosition(pos)
	}
}

// Shutdown checkpoints every tracked guild, drains the worker pool and
// releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error

	for _, guildID := range a.Queues.GuildIDs() {
		a.checkpoint(guildID)
	}

	if a.Pool != nil {
		if err := a.Pool.Shutdown(ctx); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("shutdown worker pool: %w", err)
			}
		}
	}

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Error("failed to close database", "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("close database: %w", err)
			}
		}
	}

	if a.Logger != nil {
		if err := a.Logger.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close logger: %w", err)
		}
	}

	return firstErr
}

func mapGormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return gormlogger.Silent
	case "info", "debug":
		return gormlogger.Info
	case "error":
		return gormlogger.Error
	case "warn", "warning":
		fallthrough
	default:
		return gormlogger.Warn
	}
}
