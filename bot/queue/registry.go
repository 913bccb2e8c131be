package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/sync/errgroup"
)

// Registry maps guilds to their managers, creating them lazily. Each
// manager owns its lock and state, so operations on different guilds
// never block each other.
type Registry struct {
	opts Options

	mu       sync.Mutex
	managers map[snowflake.ID]*Manager
}

// NewRegistry creates a Registry whose managers share the given options.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:     opts,
		managers: make(map[snowflake.ID]*Manager),
	}
}

// Get returns the guild's manager, creating it on first reference.
func (r *Registry) Get(guildID snowflake.ID) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(guildID)
}

func (r *Registry) getLocked(guildID snowflake.ID) *Manager {
	m, ok := r.managers[guildID]
	if !ok {
		m = NewManager(guildID, r.opts)
		r.managers[guildID] = m
	}
	return m
}

// Lookup returns the guild's manager only if it already exists.
func (r *Registry) Lookup(guildID snowflake.ID) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[guildID]
	return m, ok
}

// GuildIDs returns the guilds with live managers.
func (r *Registry) GuildIDs() []snowflake.ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]snowflake.ID, 0, len(r.managers))
	for id := range r.managers {
		ids = append(ids, id)
	}
	return ids
}

// Restore loads the guild's snapshot and rebuilds its manager. Runs at
// guild startup, before the manager accepts mutations.
func (r *Registry) Restore(ctx context.Context, guildID snowflake.ID) (*Manager, error) {
	m := r.Get(guildID)
	if r.opts.Store == nil {
		return m, nil
	}

	snapshot, err := r.opts.Store.Load(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot for guild %s: %w", guildID, err)
	}
	m.Restore(snapshot)
	return m, nil
}

// RestoreAll restores every guild with saved state. Guilds are
// independent, so restores run concurrently.
func (r *Registry) RestoreAll(ctx context.Context) error {
	if r.opts.Store == nil {
		return nil
	}

	ids, err := r.opts.Store.ListGuildIDs(ctx)
	if err != nil {
		return fmt.Errorf("list saved guilds: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			_, err := r.Restore(ctx, id)
			return err
		})
	}
	return g.Wait()
}

// Drop tears down the guild's in-memory state and deletes its snapshot.
func (r *Registry) Drop(ctx context.Context, guildID snowflake.ID) error {
	r.mu.Lock()
	delete(r.managers, guildID)
	r.mu.Unlock()

	if r.opts.Store == nil {
		return nil
	}
	return r.opts.Store.DeleteGuild(ctx, guildID)
}
