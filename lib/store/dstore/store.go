package dstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl is the dragonboat backed implementation of the store.IStore interface.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	timeout time.Duration
}

// NewDistributedStore creates a new distributed store for a shard that was started on the node host.
// The timeout applies to every operation whose context carries no deadline.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) store.IStore {
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// withTimeout applies the store timeout if ctx has no deadline.
func (s *storeImpl) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// session converts a store session into a dragonboat client session.
func (s *storeImpl) session(session store.Session) *client.Session {
	return &client.Session{
		ShardID:     s.shardID,
		ClientID:    session.ID,
		SeriesID:    session.Sequence,
		RespondedTo: session.RespondedTo,
	}
}

// toStoreError maps dragonboat errors to store errors.
func toStoreError(err error) *store.Error {
	var storeErr *store.Error
	switch {
	case errors.As(err, &storeErr):
		return storeErr
	case errors.Is(err, dragonboat.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return store.NewError(store.RetCTimeout, err.Error())
	case errors.Is(err, dragonboat.ErrRejected), errors.Is(err, dragonboat.ErrInvalidSession):
		return store.NewError(store.RetCSessionExpired, err.Error())
	case errors.Is(err, dragonboat.ErrShardNotReady):
		return store.NewError(store.RetCNotLeader, err.Error())
	default:
		return store.NewError(store.RetCInternalError, err.Error())
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) RegisterSession(ctx context.Context) (store.Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cs, err := s.nh.SyncGetSession(ctx, s.shardID)
	if err != nil {
		return store.Session{}, toStoreError(err)
	}
	return store.Session{ID: cs.ClientID, Sequence: cs.SeriesID, RespondedTo: cs.RespondedTo}, nil
}

func (s *storeImpl) UnregisterSession(ctx context.Context, session store.Session) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cs := s.session(session)
	cs.PrepareForUnregister()
	if err := s.nh.SyncCloseSession(ctx, cs); err != nil {
		return toStoreError(err)
	}
	return nil
}

// Propose sends the command via SyncPropose using the client session, which lets dragonboat
// drop duplicates of an already applied sequence and answer them from its result cache.
// ErrSystemBusy is retried, everything else is returned as *store.Error.
func (s *storeImpl) Propose(ctx context.Context, session store.Session, cmd []byte) ([]byte, error) {
	cs := s.session(session)
	for i := 0; i < retries; i++ {
		pctx, cancel := s.withTimeout(ctx)
		res, err := s.nh.SyncPropose(pctx, cs, cmd)
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return nil, toStoreError(err)
		}
		if res.Value != uint64(store.RetCSuccess) {
			return nil, store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		return res.Data, nil
	}
	return nil, store.NewError(store.RetCTimeout, "system busy")
}

// Read queries the state machine. Linearizable reads use SyncRead (ReadIndex protocol),
// the weaker levels use StaleRead on the local replica. Leadership for LinearizableLease
// is checked by the caller.
func (s *storeImpl) Read(ctx context.Context, query []byte, consistency store.ReadConsistency) ([]byte, error) {
	for i := 0; i < retries; i++ {
		var res interface{}
		var err error

		if consistency == store.Linearizable {
			rctx, cancel := s.withTimeout(ctx)
			res, err = s.nh.SyncRead(rctx, s.shardID, query)
			cancel()
		} else {
			res, err = s.nh.StaleRead(s.shardID, query)
		}

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return nil, toStoreError(err)
		}

		data, ok := res.([]byte)
		if !ok {
			return nil, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected []byte", res))
		}
		return data, nil
	}
	return nil, store.NewError(store.RetCTimeout, "system busy")
}

// Close is a no-op, the node host is owned by the caller.
func (s *storeImpl) Close() error {
	return nil
}
