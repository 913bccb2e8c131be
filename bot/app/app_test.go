package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harukeys/GrooveBot-Go/bot"
)

const testGuild = snowflake.ID(4242)

var (
	alice = bot.UserRef{ID: 100, DisplayName: "alice"}
	bob   = bot.UserRef{ID: 200, DisplayName: "bob"}
	carol = bot.UserRef{ID: 300, DisplayName: "carol"}
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := "Database = " + filepath.Join(dir, "queues.db") + "\n" +
		"LogLevel = error\n" + extra
	path := filepath.Join(dir, "config.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestApp(t *testing.T, extra string) *App {
	t.Helper()
	a, err := New(writeConfig(t, extra), BuildInfo{})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

func song(title, url string, duration int) bot.AudioInfo {
	return bot.AudioInfo{Title: title, Duration: duration, URL: url}
}

func TestAppAddAndAdvance(t *testing.T) {
	a := newTestApp(t, "")

	pos, err := a.AddSong(testGuild, song("X", "https://youtu.be/aaaaaaaaaaa", 100), alice)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	playing := a.NextSong(testGuild)
	require.NotNil(t, playing)
	assert.Equal(t, "X", playing.AudioInfo.Title)

	_, tracked := a.Tracker.Position(testGuild)
	assert.True(t, tracked)

	assert.Nil(t, a.SongFinished(testGuild))
	_, tracked = a.Tracker.Position(testGuild)
	assert.False(t, tracked)
}

func TestAppRateLimit(t *testing.T) {
	a := newTestApp(t, "RateLimitPerSecond = 1\nRateLimitBurst = 1\n")

	_, err := a.AddSong(testGuild, song("X", "https://youtu.be/aaaaaaaaaaa", 100), alice)
	require.NoError(t, err)

	_, err = a.AddSong(testGuild, song("Y", "https://youtu.be/bbbbbbbbbbb", 100), alice)
	assert.Error(t, err, "second add inside the same second should be throttled")

	// Another user is unaffected.
	_, err = a.AddSong(testGuild, song("Y", "https://youtu.be/bbbbbbbbbbb", 100), bob)
	require.NoError(t, err)
}

func TestAppProviderDisabledByConfig(t *testing.T) {
	a := newTestApp(t, "[providers.youtube]\nenabled = false\n")

	assert.Equal(t, []string{"file"}, a.Providers.Names())
}

func TestAppEstimatedWait(t *testing.T) {
	a := newTestApp(t, "")

	now := time.Now()
	a.Tracker.SetClock(func() time.Time { return now })

	_, err := a.AddSong(testGuild, song("X", "https://youtu.be/aaaaaaaaaaa", 120), alice)
	require.NoError(t, err)
	_, err = a.AddSong(testGuild, song("Y", "https://youtu.be/bbbbbbbbbbb", 60), bob)
	require.NoError(t, err)
	require.NotNil(t, a.NextSong(testGuild))

	// 30s into Alice's 120s song, Bob is next: he waits the remaining 90s.
	now = now.Add(30 * time.Second)
	wait, ok := a.EstimatedWait(testGuild, bob.ID)
	require.True(t, ok)
	assert.InDelta(t, float64(90*time.Second), float64(wait), float64(time.Second))

	_, ok = a.EstimatedWait(testGuild, snowflake.ID(999))
	assert.False(t, ok)
}

func TestAppEstimatedWaitRacesQueueAdvance(t *testing.T) {
	// A notification-layer wait query must keep working while the queue
	// is being drained from another goroutine.
	a := newTestApp(t, "")

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_, _ = a.EstimatedWait(testGuild, carol.ID)
			}
		}
	}()

	for range 100 {
		_, err := a.AddSong(testGuild, song("X", "https://youtu.be/aaaaaaaaaaa", 100), alice)
		require.NoError(t, err)
		_, err = a.AddSong(testGuild, song("Y", "https://youtu.be/bbbbbbbbbbb", 100), bob)
		require.NoError(t, err)
		_, err = a.AddSong(testGuild, song("Z", "https://youtu.be/ccccccccccc", 100), carol)
		require.NoError(t, err)

		for a.SongFinished(testGuild) != nil {
		}
	}

	close(stop)
	wg.Wait()
}

func TestAppPauseCheckpointsPosition(t *testing.T) {
	a := newTestApp(t, "")

	now := time.Now()
	a.Tracker.SetClock(func() time.Time { return now })

	_, err := a.AddSong(testGuild, song("X", "https://youtu.be/aaaaaaaaaaa", 300), alice)
	require.NoError(t, err)
	require.NotNil(t, a.NextSong(testGuild))

	now = now.Add(45 * time.Second)
	a.PauseSong(testGuild)

	assert.InDelta(t, 45, a.Queues.Get(testGuild).Position(), 0.001)
	assert.InDelta(t, 45, a.Position(testGuild), 0.001)

	a.ResumeSong(testGuild)
	now = now.Add(5 * time.Second)
	assert.InDelta(t, 50, a.Position(testGuild), 0.001)
}

func TestAppRestoreAcrossRestart(t *testing.T) {
	configPath := writeConfig(t, "")
	ctx := context.Background()

	first, err := New(configPath, BuildInfo{})
	require.NoError(t, err)
	_, err = first.AddSong(testGuild, song("X", "https://youtu.be/aaaaaaaaaaa", 100), alice)
	require.NoError(t, err)
	require.NoError(t, first.Shutdown(ctx))

	second, err := New(configPath, BuildInfo{})
	require.NoError(t, err)
	defer func() { _ = second.Shutdown(ctx) }()
	require.NoError(t, second.Start(ctx))

	m := second.Queues.Get(testGuild)
	require.Equal(t, 1, m.PendingCount())
	assert.Equal(t, "X", m.PeekNextSong(0).AudioInfo.Title)
}

func TestAppDropGuild(t *testing.T) {
	a := newTestApp(t, "WorkerPoolSize = 1\n")
	ctx := context.Background()

	_, err := a.AddSong(testGuild, song("X", "https://youtu.be/aaaaaaaaaaa", 100), alice)
	require.NoError(t, err)
	require.NotNil(t, a.NextSong(testGuild))

	// Single worker: a no-op barrier guarantees earlier snapshot
	// writes have landed before the delete.
	require.NoError(t, a.Pool.SubmitWait(func() error { return nil }))

	require.NoError(t, a.DropGuild(ctx, testGuild))

	_, ok := a.Queues.Lookup(testGuild)
	assert.False(t, ok)
	_, tracked := a.Tracker.Position(testGuild)
	assert.False(t, tracked)

	snapshot, err := a.Store.Load(ctx, testGuild)
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}
