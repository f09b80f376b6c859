package lstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/ValentinKolb/dTree/lib/store/protocol"
	"github.com/ValentinKolb/dTree/lib/treemap"
	"github.com/lni/dragonboat/v4/client"
)

// sessionState holds the cached results of one session keyed by sequence.
type sessionState struct {
	results     map[uint64]cachedResult
	respondedTo uint64
}

type cachedResult struct {
	code store.RetCode
	data []byte
}

type storeImpl struct {
	mu       sync.Mutex
	tree     *treemap.TreeMap
	index    uint64
	sessions map[uint64]*sessionState
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// It runs the same state machine as the distributed store and numbers commands with a
// local index, so versions and cursor ids behave as in a replicated shard.
func NewLocalStore() store.IStore {
	return &storeImpl{
		tree:     treemap.New(),
		sessions: make(map[uint64]*sessionState),
	}
}

// nextIndex increments the index and returns the new value.
// Thread-safety: must be called with s.mu held.
func (s *storeImpl) nextIndex() uint64 {
	s.index++
	return s.index
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) RegisterSession(_ context.Context) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// registration takes a log slot like in a raft shard
	id := s.nextIndex()
	s.sessions[id] = &sessionState{results: make(map[uint64]cachedResult)}
	return store.Session{ID: id, Sequence: client.SeriesIDFirstProposal}, nil
}

func (s *storeImpl) UnregisterSession(_ context.Context, session store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; !ok {
		return store.NewError(store.RetCSessionExpired, fmt.Sprintf("unknown session %d", session.ID))
	}
	s.nextIndex()
	delete(s.sessions, session.ID)
	return nil
}

func (s *storeImpl) Propose(_ context.Context, session store.Session, cmd []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[session.ID]
	if !ok {
		return nil, store.NewError(store.RetCSessionExpired, fmt.Sprintf("unknown session %d", session.ID))
	}

	// release results the client has seen
	if session.RespondedTo > state.respondedTo {
		for seq := range state.results {
			if seq <= session.RespondedTo {
				delete(state.results, seq)
			}
		}
		state.respondedTo = session.RespondedTo
	}

	res, ok := state.results[session.Sequence]
	if !ok {
		if session.Sequence <= state.respondedTo {
			return nil, store.NewError(store.RetCSessionExpired,
				fmt.Sprintf("sequence %d of session %d was already acknowledged", session.Sequence, session.ID))
		}
		res.code, res.data = protocol.Apply(s.tree, s.nextIndex(), cmd)
		state.results[session.Sequence] = res
	}

	if res.code != store.RetCSuccess {
		return nil, store.NewError(res.code, string(res.data))
	}
	return res.data, nil
}

// Read evaluates the query on the local map. All consistency levels are equivalent on a single node.
func (s *storeImpl) Read(_ context.Context, query []byte, _ store.ReadConsistency) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return protocol.Lookup(s.tree, query)
}

func (s *storeImpl) Close() error {
	return nil
}
