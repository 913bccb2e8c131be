package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"gorm.io/gorm/logger"

	"github.com/harukeys/GrooveBot-Go/bot"
	logpkg "github.com/harukeys/GrooveBot-Go/bot/logger"
	"github.com/harukeys/GrooveBot-Go/bot/provider"
)

const testGuild = snowflake.ID(9000)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	file, err := os.CreateTemp("", "groovebot-*.db")
	if err != nil {
		t.Fatalf("create temp db: %v", err)
	}
	path := file.Name()
	_ = file.Close()
	t.Cleanup(func() { os.Remove(path) })

	gormLogger := logpkg.NewGormLogger(nil, logger.Silent)

	store, err := NewSQLiteStore(path, provider.NewDefault(), nil, gormLogger)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSong(title, url string, duration int, requester snowflake.ID) *bot.Song {
	return &bot.Song{
		AudioInfo: bot.AudioInfo{Title: title, Duration: duration, URL: url, Uploader: "someone"},
		Requester: bot.UserRef{ID: requester, DisplayName: "user"},
		AddedAt:   time.Now().UTC(),
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	current := testSong("Now Playing", "https://youtu.be/dQw4w9WgXcQ", 200, 1)
	queue := []*bot.Song{
		testSong("First", "https://youtu.be/aaaaaaaaaaa", 100, 2),
		testSong("Second", "https://files.example.com/second.mp3", 150, 3),
	}

	if err := store.Save(ctx, testGuild, current, queue, 42.5); err != nil {
		t.Fatalf("save: %v", err)
	}

	snapshot, err := store.Load(ctx, testGuild)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snapshot == nil {
		t.Fatal("expected snapshot")
	}

	if snapshot.CurrentSong == nil || snapshot.CurrentSong.AudioInfo.Title != "Now Playing" {
		t.Fatalf("unexpected current song: %+v", snapshot.CurrentSong)
	}
	if snapshot.Position != 42.5 {
		t.Errorf("expected position 42.5, got %v", snapshot.Position)
	}
	if snapshot.SchemaVersion != SchemaVersion {
		t.Errorf("unexpected schema version %q", snapshot.SchemaVersion)
	}
	if len(snapshot.Queue) != 2 {
		t.Fatalf("expected 2 queued songs, got %d", len(snapshot.Queue))
	}
	if snapshot.Queue[0].AudioInfo.Title != "First" || snapshot.Queue[1].AudioInfo.Title != "Second" {
		t.Errorf("queue order lost: %q, %q",
			snapshot.Queue[0].AudioInfo.Title, snapshot.Queue[1].AudioInfo.Title)
	}
	if snapshot.Queue[0].Requester.ID != 2 {
		t.Errorf("requester lost: %+v", snapshot.Queue[0].Requester)
	}
}

func TestSaveOverwritesPreviousSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := []*bot.Song{testSong("One", "https://youtu.be/aaaaaaaaaaa", 100, 1)}
	if err := store.Save(ctx, testGuild, nil, first, 0); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, testGuild, nil, nil, 0); err != nil {
		t.Fatalf("save again: %v", err)
	}

	snapshot, err := store.Load(ctx, testGuild)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snapshot.Queue) != 0 {
		t.Fatalf("expected empty queue after overwrite, got %d songs", len(snapshot.Queue))
	}
}

func TestLoadMissingGuild(t *testing.T) {
	store := newTestStore(t)

	snapshot, err := store.Load(context.Background(), snowflake.ID(12345))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snapshot != nil {
		t.Fatalf("expected nil snapshot, got %+v", snapshot)
	}
}

func TestLoadDropsUnrecognizedURLs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	queue := []*bot.Song{
		testSong("Good", "https://youtu.be/aaaaaaaaaaa", 100, 1),
		testSong("Stale", "https://example.com/not-a-song", 100, 2),
	}
	current := testSong("Bad Current", "https://example.com/gone", 100, 3)

	if err := store.Save(ctx, testGuild, current, queue, 10); err != nil {
		t.Fatalf("save: %v", err)
	}

	snapshot, err := store.Load(ctx, testGuild)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snapshot.CurrentSong != nil {
		t.Errorf("expected corrupt current song to be dropped, got %+v", snapshot.CurrentSong)
	}
	if snapshot.Position != 0 {
		t.Errorf("position must reset when current song is dropped, got %v", snapshot.Position)
	}
	if len(snapshot.Queue) != 1 || snapshot.Queue[0].AudioInfo.Title != "Good" {
		t.Fatalf("expected only the recognized song to survive, got %+v", snapshot.Queue)
	}
}

func TestDeleteGuildAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	other := snowflake.ID(9001)
	if err := store.Save(ctx, testGuild, nil, nil, 0); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, other, nil, nil, 0); err != nil {
		t.Fatalf("save: %v", err)
	}

	ids, err := store.ListGuildIDs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 guilds, got %d", len(ids))
	}

	if err := store.DeleteGuild(ctx, testGuild); err != nil {
		t.Fatalf("delete: %v", err)
	}

	ids, err = store.ListGuildIDs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != other {
		t.Fatalf("expected only %d to remain, got %v", other, ids)
	}

	snapshot, err := store.Load(ctx, testGuild)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snapshot != nil {
		t.Fatal("expected deleted guild to have no snapshot")
	}
}
