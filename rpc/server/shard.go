package server

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTree/lib/partition"
	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/ValentinKolb/dTree/rpc/common"
	"github.com/patrickmn/go-cache"
)

// trackedSession is the last known state of a session held by the leader
type trackedSession struct {
	session  store.Session
	released atomic.Bool // set when the session was unregistered by its client
}

// serverShard is one shard served by the rpc server. It holds the store, the partition
// context used for leader checks and the sessions this replica keeps alive while it leads.
type serverShard struct {
	store     store.IStore
	partition *partition.ManagementService
	adapter   IRPCServerAdapter
	timeout   time.Duration
	sessions  *cache.Cache
	closed    atomic.Bool
}

func newServerShard(st store.IStore, p *partition.ManagementService, adapter IRPCServerAdapter, timeout, sessionTimeout time.Duration) *serverShard {
	sh := &serverShard{
		store:     st,
		partition: p,
		adapter:   adapter,
		timeout:   timeout,
	}
	if sessionTimeout > 0 {
		sh.sessions = cache.New(sessionTimeout, sessionTimeout/2)
	} else {
		sh.sessions = cache.New(cache.NoExpiration, 0)
	}
	sh.sessions.OnEvicted(sh.expireSession)
	return sh
}

// --------------------------------------------------------------------------
// Leadership
// --------------------------------------------------------------------------

// leadership returns the current term and leader and whether the local replica leads the shard
func (sh *serverShard) leadership() (partition.Leadership, bool) {
	l, ok := sh.partition.Election().Leadership(sh.partition.ShardID())
	if !ok {
		return l, false
	}
	return l, l.Leader.ID == sh.partition.Membership().Local().ID
}

// stamp adds term and leader to a response
func (sh *serverShard) stamp(resp *common.Message, l partition.Leadership) *common.Message {
	resp.Term = l.Term
	resp.Leader = l.Leader.Endpoint
	return resp
}

func (sh *serverShard) notLeader(msgType common.MessageType, l partition.Leadership) *common.Message {
	var err error
	if l.Leader.ID == 0 {
		err = fmt.Errorf("shard %d has no leader", sh.partition.ShardID())
	} else {
		err = fmt.Errorf("replica %d is not the leader of shard %d, leader is %s",
			sh.partition.Membership().Local().ID, sh.partition.ShardID(), l.Leader)
	}
	resp := common.NewErrorResponse(msgType, common.StatusNotLeader, err)
	resp.Code = store.RetCNotLeader
	return resp
}

// --------------------------------------------------------------------------
// Sessions
// --------------------------------------------------------------------------

func sessionKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// touch records that the session was seen
func (sh *serverShard) touch(session store.Session) {
	sh.sessions.SetDefault(sessionKey(session.ID), &trackedSession{session: session})
}

// release stops tracking a session that was closed by its client
func (sh *serverShard) release(id uint64) {
	if v, ok := sh.sessions.Get(sessionKey(id)); ok {
		v.(*trackedSession).released.Store(true)
	}
	sh.sessions.Delete(sessionKey(id))
}

// expireSession unregisters a session that was not seen within the session timeout.
// Only the leader proposes the unregistration.
func (sh *serverShard) expireSession(key string, value interface{}) {
	tracked := value.(*trackedSession)
	if tracked.released.Load() || sh.closed.Load() {
		return
	}
	if _, leader := sh.leadership(); !leader {
		return
	}

	sessionsExpired.Inc()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sh.timeout)
		defer cancel()
		if err := sh.store.UnregisterSession(ctx, tracked.session); err != nil {
			Logger.Debugf("[shard %d] failed to unregister expired session %s: %v", sh.partition.ShardID(), key, err)
			return
		}
		Logger.Infof("[shard %d] session %s expired", sh.partition.ShardID(), key)
	}()
}

// --------------------------------------------------------------------------
// Request Handling
// --------------------------------------------------------------------------

// handle answers a single request
func (sh *serverShard) handle(req *common.Message) *common.Message {
	l, leader := sh.leadership()

	ctx, cancel := context.WithTimeout(context.Background(), sh.timeout)
	defer cancel()

	switch req.MsgType {
	case common.MsgTMetadata:
		resp := common.NewResponse(req.MsgType, nil)
		resp.Members = partition.Endpoints(sh.partition.Membership())
		return sh.stamp(resp, l)

	case common.MsgTQuery:
		if req.Consistency.RequiresLeader() && !leader {
			return sh.stamp(sh.notLeader(req.MsgType, l), l)
		}
		if err := sh.adapter.Validate(req.MsgType, req.Payload); err != nil {
			return sh.stamp(errorResponse(req.MsgType, err), l)
		}
		res, err := sh.store.Read(ctx, req.Payload, req.Consistency)
		if err != nil {
			return sh.stamp(errorResponse(req.MsgType, err), l)
		}
		return sh.stamp(common.NewResponse(req.MsgType, res), l)
	}

	// everything else is proposed and must be handled by the leader
	if !leader {
		return sh.stamp(sh.notLeader(req.MsgType, l), l)
	}

	switch req.MsgType {
	case common.MsgTRegister:
		session, err := sh.store.RegisterSession(ctx)
		if err != nil {
			return sh.stamp(errorResponse(req.MsgType, err), l)
		}
		sh.touch(session)
		sessionsRegistered.Inc()
		Logger.Debugf("[shard %d] registered session %d for client %s", sh.partition.ShardID(), session.ID, req.ClientID)

		resp := common.NewResponse(req.MsgType, nil)
		resp.SessionID = session.ID
		resp.Sequence = session.Sequence
		resp.Members = partition.Endpoints(sh.partition.Membership())
		return sh.stamp(resp, l)

	case common.MsgTKeepAlive:
		if req.SessionID == 0 {
			return sh.stamp(common.NewErrorResponse(req.MsgType, common.StatusSessionExpired, fmt.Errorf("no session")), l)
		}
		sh.touch(store.Session{ID: req.SessionID})
		return sh.stamp(common.NewResponse(req.MsgType, nil), l)

	case common.MsgTUnregister:
		session := store.Session{ID: req.SessionID, Sequence: req.Sequence, RespondedTo: req.RespondedTo}
		sh.release(session.ID)
		if err := sh.store.UnregisterSession(ctx, session); err != nil {
			return sh.stamp(errorResponse(req.MsgType, err), l)
		}
		return sh.stamp(common.NewResponse(req.MsgType, nil), l)

	case common.MsgTCommand:
		if err := sh.adapter.Validate(req.MsgType, req.Payload); err != nil {
			return sh.stamp(errorResponse(req.MsgType, err), l)
		}
		session := store.Session{ID: req.SessionID, Sequence: req.Sequence, RespondedTo: req.RespondedTo}
		sh.touch(session)
		res, err := sh.store.Propose(ctx, session, req.Payload)
		if err != nil {
			return sh.stamp(errorResponse(req.MsgType, err), l)
		}
		return sh.stamp(common.NewResponse(req.MsgType, res), l)

	default:
		return sh.stamp(common.NewErrorResponse(req.MsgType, common.StatusError,
			fmt.Errorf("unsupported message type: %s", req.MsgType)), l)
	}
}

// handleStream answers a command or query and sends the records of a successful result as
// frames. The returned message is the terminal frame, its payload is empty on success.
func (sh *serverShard) handleStream(req *common.Message, send func(record []byte) error) *common.Message {
	resp := sh.handle(req)
	if resp.Status != common.StatusOK || (req.MsgType != common.MsgTCommand && req.MsgType != common.MsgTQuery) {
		return resp
	}

	records, err := sh.adapter.Records(resp.Payload)
	if err != nil {
		failed := common.NewErrorResponse(req.MsgType, common.StatusError, err)
		failed.Term, failed.Leader = resp.Term, resp.Leader
		return failed
	}
	for _, record := range records {
		if err := send(record); err != nil {
			failed := common.NewErrorResponse(req.MsgType, common.StatusError, fmt.Errorf("stream aborted: %w", err))
			failed.Term, failed.Leader = resp.Term, resp.Leader
			return failed
		}
		streamedFrames.Inc()
	}
	resp.Payload = nil
	return resp
}

// close stops expiring sessions and closes the store
func (sh *serverShard) close() error {
	sh.closed.Store(true)
	sh.sessions.Flush()
	return sh.store.Close()
}

// errorResponse converts a store error to a response
func errorResponse(msgType common.MessageType, err error) *common.Message {
	status, code := common.StatusFromError(err)
	resp := common.NewErrorResponse(msgType, status, err)
	resp.Code = code
	return resp
}
