package memory

import (
	"context"
	"slices"
	"time"

	"github.com/potrek505/TEG-project/pkg/graph"
	"github.com/potrek505/TEG-project/pkg/logger"

	"github.com/patrickmn/go-cache"
)

const defaultCleanupInterval = 10 * time.Minute

// Store is an in-process session store. Sessions idle longer than the TTL
// expire; a TTL of zero keeps them until deleted. The RAG index of a
// removed session is closed.
type Store struct {
	cache *cache.Cache
}

func New(ttl time.Duration) *Store {
	expiration := cache.NoExpiration
	cleanup := defaultCleanupInterval
	if ttl > 0 {
		expiration = ttl
		cleanup = min(ttl, defaultCleanupInterval)
	}

	c := cache.New(expiration, cleanup)
	c.OnEvicted(func(id string, v any) {
		if state, ok := v.(graph.State); ok {
			release(id, state.RAG)
		}
	})
	return &Store{cache: c}
}

// Get returns the state of id and restarts its idle timer, so a session is
// not evicted while a turn that loaded it is running. A turn that outlasts
// the whole TTL can still see its RAG index closed underneath it.
func (s *Store) Get(id string) (graph.State, bool) {
	x, found := s.cache.Get(id)
	if !found {
		return graph.State{}, false
	}
	state := x.(graph.State)
	// Replace fails if the janitor evicted the session since the read.
	if err := s.cache.Replace(id, state, cache.DefaultExpiration); err != nil {
		return graph.State{}, false
	}
	return state, true
}

func (s *Store) Put(id string, state graph.State) {
	if x, found := s.cache.Get(id); found {
		if prev := x.(graph.State); prev.RAG != nil && prev.RAG != state.RAG {
			release(id, prev.RAG)
		}
	}
	s.cache.Set(id, state, cache.DefaultExpiration)
}

func (s *Store) Delete(id string) {
	s.cache.Delete(id)
}

func (s *Store) IDs() []string {
	items := s.cache.Items()
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Flush removes every session.
func (s *Store) Flush() {
	for _, id := range s.IDs() {
		s.cache.Delete(id)
	}
}

func release(id string, r graph.RAGAnswerer) {
	if r == nil {
		return
	}
	if err := r.Close(context.Background()); err != nil {
		logger.Warn("[Session] failed to release RAG index", "session_id", id, "err", err)
		return
	}
	logger.Debug("[Session] released RAG index", "session_id", id)
}
