package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTree/lib/partition"
	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/ValentinKolb/dTree/lib/util"
	"github.com/ValentinKolb/dTree/rpc/common"
	"github.com/ValentinKolb/dTree/rpc/serializer"
	"github.com/ValentinKolb/dTree/rpc/transport"
	"github.com/google/uuid"
	dbclient "github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

var Logger = logger.GetLogger("client")

// RaftClient is a session with one shard of a dTree cluster.
//
// All requests return immediately with a Future. Commands and linearizable reads are executed
// one after the other in submission order, the other reads run in parallel on the executor.
// A RaftClient is safe for concurrent use.
type RaftClient struct {
	config     Config
	serializer serializer.IRPCSerializer
	transport  transport.IRPCClientTransport
	partition  *partition.ManagementService
	members    *clientMembership
	tracker    *partition.LeaderTracker
	executor   Executor
	sequencer  *sequencer
	lookups    singleflight.Group
	rotation   atomic.Uint64

	sessionID   uint64
	sequence    atomic.Uint64 // sequence of the next command
	respondedTo atomic.Uint64 // highest sequence whose result was received

	ctx           context.Context
	cancel        context.CancelFunc
	closed        atomic.Bool
	expired       atomic.Bool
	closeOnce     sync.Once
	closeErr      error
	pending       *xsync.MapOf[uint64, func(error)]
	nextPending   atomic.Uint64
	keepAliveDone chan struct{}
}

// Connect opens a session with the shard configured in config. The members are the seed
// endpoints, if none are given the configured endpoints and then DefaultEndpoint are used.
// The seeds are tried with leader semantics until one accepts the session, otherwise
// ErrUnreachableCluster is returned.
func Connect(ctx context.Context, config Config, members ...string) (*RaftClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(members) == 0 {
		members = config.Endpoints
	}
	if len(members) == 0 {
		members = []string{DefaultEndpoint}
	}
	if config.ClientID == "" {
		config.ClientID = uuid.NewString()
	}
	config.Endpoints = append([]string(nil), members...)

	if err := config.RPCTransport.Connect(config.ClientConfig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachableCluster, err)
	}

	c := newRaftClient(config)
	resp, err := c.invoke(ctx, request{
		name: "register",
		kind: OpCommand,
		msg:  common.NewRegisterRequest(config.ClientID),
	})
	if err != nil {
		c.cancel()
		_ = c.transport.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachableCluster, err)
	}

	c.sessionID = resp.SessionID
	first := resp.Sequence
	if first == 0 {
		first = dbclient.SeriesIDFirstProposal
	}
	c.sequence.Store(first)
	c.respondedTo.Store(first - 1)

	if config.SessionTimeoutSecond > 0 {
		go c.keepAlive(time.Duration(config.SessionTimeoutSecond) * time.Second / 2)
	} else {
		close(c.keepAliveDone)
	}

	Logger.Infof("client %s opened session %d with shard %d (term %d, leader %q)",
		config.ClientID, c.sessionID, config.ShardID, c.Term(), c.Leader())
	return c, nil
}

func newRaftClient(config Config) *RaftClient {
	ctx, cancel := context.WithCancel(context.Background())

	executor := config.Executor
	if executor == nil {
		executor = NewPoolExecutor(config.PoolSize)
	}

	c := &RaftClient{
		config:        config,
		serializer:    config.Serializer,
		transport:     config.RPCTransport,
		members:       newClientMembership(config.Endpoints),
		tracker:       partition.NewLeaderTracker(),
		executor:      executor,
		sequencer:     newSequencer(executor),
		ctx:           ctx,
		cancel:        cancel,
		pending:       xsync.NewMapOf[uint64, func(error)](),
		keepAliveDone: make(chan struct{}),
	}
	c.partition = partition.NewManagementService(config.ShardID, c.members, c.transport, c.transport, c.tracker, nil)
	c.rotation.Store(uint64(util.HashString(config.ClientID, 0)))
	return c
}

// --------------------------------------------------------------------------
// Introspection (never blocks)
// --------------------------------------------------------------------------

// Term returns the highest term observed
func (c *RaftClient) Term() uint64 {
	return c.tracker.Term(c.config.ShardID)
}

// Leader returns the endpoint of the known leader or an empty string
func (c *RaftClient) Leader() string {
	l, ok := c.partition.Election().Leadership(c.config.ShardID)
	if !ok {
		return ""
	}
	return l.Leader.Endpoint
}

// ClientID returns the id of the client
func (c *RaftClient) ClientID() string {
	return c.config.ClientID
}

// SessionID returns the id of the session assigned by the cluster
func (c *RaftClient) SessionID() uint64 {
	return c.sessionID
}

// Members returns the known client endpoints of the shard
func (c *RaftClient) Members() []string {
	return c.members.endpoints()
}

// Partition returns the collaborators the client uses for its shard
func (c *RaftClient) Partition() *partition.ManagementService {
	return c.partition
}

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

// ReadOption configures a single read
type ReadOption func(*readOptions)

type readOptions struct {
	consistency store.ReadConsistency
}

// WithConsistency sets the consistency of a read, the default is store.Linearizable
func WithConsistency(level store.ReadConsistency) ReadOption {
	return func(o *readOptions) {
		o.consistency = level
	}
}

func newReadOptions(opts []ReadOption) readOptions {
	o := readOptions{consistency: store.DefaultReadConsistency}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Write proposes a command and returns its result.
func (c *RaftClient) Write(ctx context.Context, value []byte) *Future[[]byte] {
	if c.closed.Load() {
		return failedFuture[[]byte](ErrSessionClosed)
	}
	f := newFuture[[]byte]()
	c.submit(c.sequencer, f.failer(), func() {
		resp, err := c.command(ctx, value, nil)
		f.complete(payload(resp), err)
	})
	return f
}

// WriteStream proposes a command whose result is delivered to handler in parts.
// The future completes after the handler received the last part.
func (c *RaftClient) WriteStream(ctx context.Context, value []byte, handler StreamHandler) *Future[struct{}] {
	if c.closed.Load() {
		return failedFuture[struct{}](ErrSessionClosed)
	}
	f := newFuture[struct{}]()
	c.submit(c.sequencer, f.failer(), func() {
		st := newStream(c.config.StreamBufferSize, handler)
		_, err := c.command(ctx, value, st)
		if herr := st.finish(); herr != nil {
			err = herr
		}
		f.complete(struct{}{}, err)
	})
	return f
}

// Read evaluates a query.
func (c *RaftClient) Read(ctx context.Context, value []byte, opts ...ReadOption) *Future[[]byte] {
	if c.closed.Load() {
		return failedFuture[[]byte](ErrSessionClosed)
	}
	o := newReadOptions(opts)
	f := newFuture[[]byte]()
	c.submit(c.queryExecutor(o.consistency), f.failer(), func() {
		resp, err := c.query(ctx, value, o.consistency, nil)
		f.complete(payload(resp), err)
	})
	return f
}

// ReadStream evaluates a query whose result is delivered to handler in parts.
func (c *RaftClient) ReadStream(ctx context.Context, value []byte, handler StreamHandler, opts ...ReadOption) *Future[struct{}] {
	if c.closed.Load() {
		return failedFuture[struct{}](ErrSessionClosed)
	}
	o := newReadOptions(opts)
	f := newFuture[struct{}]()
	c.submit(c.queryExecutor(o.consistency), f.failer(), func() {
		st := newStream(c.config.StreamBufferSize, handler)
		_, err := c.query(ctx, value, o.consistency, st)
		if herr := st.finish(); herr != nil {
			err = herr
		}
		f.complete(struct{}{}, err)
	})
	return f
}

// Close unregisters the session and closes the transport. Outstanding requests fail with
// ErrSessionClosed. Unregistering is best effort, its failure is only logged.
// Calling Close more than once returns the result of the first call.
func (c *RaftClient) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		c.pending.Range(func(_ uint64, fail func(error)) bool {
			fail(ErrSessionClosed)
			return true
		})
		<-c.keepAliveDone

		if !c.expired.Load() && c.sessionID != 0 {
			msg := common.NewUnregisterRequest(c.sessionID, c.sequence.Load(), c.respondedTo.Load())
			if _, err := c.invoke(ctx, request{name: "unregister", kind: OpCommand, msg: msg}); err != nil {
				Logger.Debugf("failed to unregister session %d: %v", c.sessionID, err)
			}
		}
		c.closeErr = c.transport.Close()
		Logger.Infof("client %s closed session %d", c.config.ClientID, c.sessionID)
	})
	return c.closeErr
}

// --------------------------------------------------------------------------
// Scheduling
// --------------------------------------------------------------------------

// submit runs task on the executor. fail is called with ErrSessionClosed if the client is
// closed before the task finished.
func (c *RaftClient) submit(executor Executor, fail func(error), task func()) {
	id := c.nextPending.Add(1)
	c.pending.Store(id, fail)
	executor.Submit(func() {
		defer c.pending.Delete(id)
		if c.closed.Load() {
			fail(ErrSessionClosed)
			return
		}
		task()
	})
}

// queryExecutor orders linearizable reads after the commands submitted before them
func (c *RaftClient) queryExecutor(consistency store.ReadConsistency) Executor {
	if consistency == store.Linearizable {
		return c.sequencer
	}
	return c.executor
}

// requestContext ends when ctx ends or the client is closed
func (c *RaftClient) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	rctx, cancel := context.WithCancel(c.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return rctx, func() {
		stop()
		cancel()
	}
}

// command proposes value with the next sequence of the session. Only called from the sequencer.
func (c *RaftClient) command(ctx context.Context, value []byte, st *stream) (*common.Message, error) {
	if c.expired.Load() {
		return nil, fmt.Errorf("%w: session %d", ErrSessionExpired, c.sessionID)
	}
	rctx, cancel := c.requestContext(ctx)
	defer cancel()

	// every proposal gets a new sequence, a reused sequence would be answered with the old result
	seq := c.sequence.Add(1) - 1
	msg := common.NewCommandRequest(c.sessionID, seq, c.respondedTo.Load(), value)

	resp, err := c.invoke(rctx, request{name: "command", kind: OpCommand, msg: msg, stream: st})
	var failed *CommandFailedError
	if err == nil || errors.As(err, &failed) {
		c.respondedTo.Store(seq)
	}
	return resp, err
}

func (c *RaftClient) query(ctx context.Context, value []byte, consistency store.ReadConsistency, st *stream) (*common.Message, error) {
	rctx, cancel := c.requestContext(ctx)
	defer cancel()

	msg := common.NewQueryRequest(consistency, value)
	return c.invoke(rctx, request{name: "query", kind: OpQuery, consistency: consistency, msg: msg, stream: st})
}

// keepAlive refreshes the session until the client is closed or the session expired
func (c *RaftClient) keepAlive(interval time.Duration) {
	defer close(c.keepAliveDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}

		keepAlivesSent.Inc()
		_, err := c.invoke(c.ctx, request{name: "keepAlive", kind: OpCommand, msg: common.NewKeepAliveRequest(c.sessionID)})
		switch {
		case errors.Is(err, ErrSessionExpired):
			Logger.Warningf("session %d of client %s expired", c.sessionID, c.config.ClientID)
			return
		case err != nil && c.ctx.Err() == nil:
			Logger.Debugf("keep alive of session %d failed: %v", c.sessionID, err)
		}
	}
}

func payload(resp *common.Message) []byte {
	if resp == nil {
		return nil
	}
	return resp.Payload
}
