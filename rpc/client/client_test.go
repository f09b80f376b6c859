package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/ValentinKolb/dTree/lib/store/protocol"
	"github.com/ValentinKolb/dTree/rpc/common"
	"github.com/ValentinKolb/dTree/rpc/serializer"
	"github.com/ValentinKolb/dTree/rpc/server"
	"github.com/ValentinKolb/dTree/rpc/transport/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func startServer(t *testing.T, network *memory.Network, endpoint string, sessionTimeoutSecond int64) {
	config := common.ServerConfig{
		Shards:               []common.ServerShard{{ShardID: DefaultShardID, Type: common.ShardTypeLocal}},
		ReplicaID:            1,
		TimeoutSecond:        5,
		SessionTimeoutSecond: sessionTimeoutSecond,
		LogLevel:             "error",
	}
	config.Transport.Endpoint = endpoint

	s := server.NewRPCServer(config, network.NewServerTransport(), serializer.NewBinarySerializer())
	go func() { _ = s.Serve() }()
	t.Cleanup(func() { _ = s.Close() })
	waitFor(t, network, endpoint)
}

// waitFor blocks until the endpoint answers metadata requests
func waitFor(t *testing.T, network *memory.Network, endpoint string) {
	tr := network.NewClientTransport()
	require.NoError(t, tr.Connect(common.ClientConfig{Endpoints: []string{endpoint}, TimeoutSecond: 1}))
	defer tr.Close()

	s := serializer.NewBinarySerializer()
	req, err := s.Serialize(*common.NewMetadataRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := tr.Send(context.Background(), endpoint, DefaultShardID, req)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func testConfig(network *memory.Network) Config {
	config := DefaultConfig(network.NewClientTransport(), serializer.NewBinarySerializer())
	config.RetryCount = 2
	return config
}

func connect(t *testing.T, network *memory.Network, config Config, members ...string) *RaftClient {
	c, err := Connect(context.Background(), config, members...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

// startFakeFollower serves every request with NotLeader and names leader as the leader
func startFakeFollower(t *testing.T, network *memory.Network, endpoint, leader string) *sync.Map {
	s := serializer.NewBinarySerializer()
	seen := &sync.Map{}

	tr := network.NewServerTransport()
	tr.RegisterHandler(func(shardId uint64, req []byte) []byte {
		msg := common.Message{}
		if err := s.Deserialize(req, &msg); err == nil {
			seen.Store(msg.MsgType, true)
		}
		resp := common.NewErrorResponse(msg.MsgType, common.StatusNotLeader, errors.New("not the leader"))
		resp.Term = 1
		resp.Leader = leader
		data, _ := s.Serialize(*resp)
		return data
	})
	tr.RegisterStreamHandler(func(shardId uint64, req []byte, _ func([]byte) error) []byte {
		return nil
	})

	config := common.ServerConfig{}
	config.Transport.Endpoint = endpoint
	go func() { _ = tr.Listen(config) }()
	t.Cleanup(func() { _ = tr.Close() })
	waitFor(t, network, endpoint)
	return seen
}

// replyFunc answers a command or query of a scripted replica. A nil reply leaves the request
// unanswered until the test ends.
type replyFunc func(msg common.Message) *common.Message

// startScriptedReplica acts as the leader of term for session requests and answers commands
// and queries with reply. It returns the number of commands and queries received.
func startScriptedReplica(t *testing.T, network *memory.Network, endpoint string, term uint64, reply replyFunc) *atomic.Int64 {
	s := serializer.NewBinarySerializer()
	received := &atomic.Int64{}
	stop := make(chan struct{})

	answer := func(req []byte) []byte {
		msg := common.Message{}
		if err := s.Deserialize(req, &msg); err != nil {
			return nil
		}
		var resp *common.Message
		switch msg.MsgType {
		case common.MsgTCommand, common.MsgTQuery:
			received.Add(1)
			if resp = reply(msg); resp == nil {
				<-stop
				return nil
			}
		case common.MsgTRegister:
			resp = common.NewResponse(msg.MsgType, nil)
			resp.SessionID = 7
		default:
			resp = common.NewResponse(msg.MsgType, nil)
		}
		if resp.Term == 0 {
			resp.Term = term
		}
		resp.Leader = endpoint
		resp.Members = []string{endpoint}
		data, _ := s.Serialize(*resp)
		return data
	}

	tr := network.NewServerTransport()
	tr.RegisterHandler(func(_ uint64, req []byte) []byte { return answer(req) })
	tr.RegisterStreamHandler(func(_ uint64, req []byte, _ func([]byte) error) []byte { return answer(req) })

	config := common.ServerConfig{}
	config.Transport.Endpoint = endpoint
	go func() { _ = tr.Listen(config) }()
	t.Cleanup(func() {
		close(stop)
		_ = tr.Close()
	})
	waitFor(t, network, endpoint)
	return received
}

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

func TestConnect(t *testing.T) {
	network := memory.NewNetwork()
	startServer(t, network, "node-1", 30)

	c := connect(t, network, testConfig(network), "node-1")

	assert.NotZero(t, c.SessionID())
	assert.NotEmpty(t, c.ClientID())
	assert.Equal(t, "node-1", c.Leader())
	assert.Equal(t, uint64(1), c.Term())
	assert.Equal(t, []string{"node-1"}, c.Members())
}

func TestConnectUnreachableCluster(t *testing.T) {
	network := memory.NewNetwork()

	config := testConfig(network)
	config.RetryCount = 1
	_, err := Connect(context.Background(), config, "nowhere-1", "nowhere-2")
	assert.ErrorIs(t, err, ErrUnreachableCluster)
}

func TestRedirectToLeader(t *testing.T) {
	network := memory.NewNetwork()
	startServer(t, network, "node-1", 30)
	seen := startFakeFollower(t, network, "node-2", "node-1")

	c := connect(t, network, testConfig(network), "node-2")

	_, asked := seen.Load(common.MsgTRegister)
	assert.True(t, asked, "the session must be requested from the seed first")
	assert.Equal(t, "node-1", c.Leader())

	m := NewTreeMap[string](c, StringKeys{}, store.Linearizable)
	_, err := m.Put(context.Background(), "a", []byte("1"))
	require.NoError(t, err)
}

func TestRedirectBudgetExhausted(t *testing.T) {
	network := memory.NewNetwork()
	// both fake followers point at each other
	startFakeFollower(t, network, "node-2", "node-3")
	startFakeFollower(t, network, "node-3", "node-2")

	config := testConfig(network)
	_, err := Connect(context.Background(), config, "node-2")
	require.ErrorIs(t, err, ErrUnreachableCluster)
}

func TestClosedSession(t *testing.T) {
	network := memory.NewNetwork()
	startServer(t, network, "node-1", 30)

	c, err := Connect(context.Background(), testConfig(network), "node-1")
	require.NoError(t, err)
	require.NoError(t, c.Close(context.Background()))

	_, err = c.Write(context.Background(), []byte("ignored")).Get(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = c.Read(context.Background(), []byte("ignored")).Get(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)

	// the futures fail right away without a round trip
	stream := c.WriteStream(context.Background(), []byte("ignored"), func([]byte) error { return nil })
	select {
	case <-stream.Done():
	default:
		t.Fatal("WriteStream on a closed client must fail immediately")
	}
	_, err = stream.Get(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = c.ReadStream(context.Background(), []byte("ignored"), func([]byte) error { return nil }).Get(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)

	// closing twice is fine
	assert.NoError(t, c.Close(context.Background()))
}

func TestSessionExpired(t *testing.T) {
	network := memory.NewNetwork()
	startServer(t, network, "node-1", 1)

	config := testConfig(network)
	config.SessionTimeoutSecond = 0 // no keep alives
	c := connect(t, network, config, "node-1")
	m := NewTreeMap[string](c, StringKeys{}, store.Linearizable)

	_, err := m.Put(context.Background(), "a", []byte("1"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := m.Put(context.Background(), "a", []byte("2"))
		return errors.Is(err, ErrSessionExpired)
	}, 10*time.Second, 2*time.Second)

	// the session is not recovered
	_, err = m.Put(context.Background(), "b", []byte("1"))
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestCommandsKeepOrder(t *testing.T) {
	network := memory.NewNetwork()
	startServer(t, network, "node-1", 30)

	c := connect(t, network, testConfig(network), "node-1")
	m := NewTreeMap[string](c, StringKeys{}, store.Linearizable)
	ctx := context.Background()

	// all writes go to the same key, the last submitted one has to win
	const n = 50
	futures := make([]*Future[[]byte], n)
	for i := 0; i < n; i++ {
		futures[i] = c.Write(ctx, putCommand("k", fmt.Sprintf("%d", i)))
	}

	last := int64(0)
	for i, f := range futures {
		data, err := f.Get(ctx)
		require.NoError(t, err, "write %d", i)
		version := decodeVersion(t, data)
		assert.Greater(t, version, last, "versions follow the submission order")
		last = version
	}

	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fmt.Sprintf("%d", n-1), string(v.Value))
	assert.Equal(t, last, v.Version)
}

func TestReadConsistencyLevels(t *testing.T) {
	network := memory.NewNetwork()
	startServer(t, network, "node-1", 30)

	for _, strategy := range []CommunicationStrategy{StrategyLeader, StrategyFollowers, StrategyAny} {
		t.Run(strategy.String(), func(t *testing.T) {
			config := testConfig(network)
			config.Strategy = strategy
			c := connect(t, network, config, "node-1")
			ctx := context.Background()

			writer := NewTreeMap[string](c, StringKeys{}, store.Linearizable)
			_, err := writer.Put(ctx, "key-"+strategy.String(), []byte("v"))
			require.NoError(t, err)

			for _, level := range []store.ReadConsistency{store.Sequential, store.LinearizableLease, store.Linearizable} {
				reader := NewTreeMap[string](c, StringKeys{}, level)
				ok, err := reader.ContainsKey(ctx, "key-"+strategy.String())
				require.NoError(t, err, level.String())
				assert.True(t, ok, level.String())
			}
		})
	}
}

// --------------------------------------------------------------------------
// Timeouts and stale leaders
// --------------------------------------------------------------------------

func TestWriteTimeoutIsNotRetried(t *testing.T) {
	network := memory.NewNetwork()
	received := startScriptedReplica(t, network, "node-1", 1, func(common.Message) *common.Message {
		return nil
	})

	config := testConfig(network)
	config.TimeoutSecond = 1
	config.RetryCount = 3
	c := connect(t, network, config, "node-1")

	_, err := c.Write(context.Background(), putCommand("a", "1")).Get(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int64(1), received.Load(), "a timed out command must not be sent again")
}

func TestQueryTimeoutIsRetried(t *testing.T) {
	tests := []struct {
		name     string
		stalls   int64
		wantErr  error
		wantSent int64
	}{
		{"succeeds after retries", 2, nil, 3},
		{"gives up after retry budget", 100, ErrTimeout, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network := memory.NewNetwork()
			var queries atomic.Int64
			received := startScriptedReplica(t, network, "node-1", 1, func(msg common.Message) *common.Message {
				if queries.Add(1) <= tt.stalls {
					return nil
				}
				return common.NewResponse(msg.MsgType, []byte("ok"))
			})

			config := testConfig(network)
			config.TimeoutSecond = 1
			config.RetryCount = 2
			c := connect(t, network, config, "node-1")

			data, err := c.Read(context.Background(), []byte("query")).Get(context.Background())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "ok", string(data))
			}
			assert.Equal(t, tt.wantSent, received.Load())
		})
	}
}

func TestReadFromOlderTermIsRejected(t *testing.T) {
	tests := []struct {
		level    store.ReadConsistency
		accepted bool
	}{
		{store.Sequential, true},
		{store.LinearizableLease, false},
		{store.Linearizable, false},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			network := memory.NewNetwork()
			// the replica opens the session in term 5 but answers queries as of term 4
			received := startScriptedReplica(t, network, "node-1", 5, func(msg common.Message) *common.Message {
				resp := common.NewResponse(msg.MsgType, []byte("stale"))
				resp.Term = 4
				return resp
			})

			config := testConfig(network)
			c := connect(t, network, config, "node-1")
			require.Equal(t, uint64(5), c.Term())

			data, err := c.Read(context.Background(), []byte("query"), WithConsistency(tt.level)).Get(context.Background())
			if tt.accepted {
				require.NoError(t, err)
				assert.Equal(t, "stale", string(data))
				assert.Equal(t, int64(1), received.Load())
				return
			}

			var notLeader *NotLeaderError
			require.ErrorAs(t, err, &notLeader)
			assert.Equal(t, uint64(5), notLeader.Term)
			assert.Equal(t, int64(1+config.RetryCount), received.Load(), "every retry is sent again")
			assert.Equal(t, uint64(5), c.Term(), "the term never goes back")
		})
	}
}

// --------------------------------------------------------------------------
// Streaming
// --------------------------------------------------------------------------

func TestWriteStream(t *testing.T) {
	network := memory.NewNetwork()
	startServer(t, network, "node-1", 30)
	c := connect(t, network, testConfig(network), "node-1")
	m := NewTreeMap[string](c, StringKeys{}, store.Linearizable)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		_, err := m.Put(ctx, k, []byte("v-"+k))
		require.NoError(t, err)
	}
	cur, err := m.Iterate(ctx, All[string]())
	require.NoError(t, err)

	next := protocol.Command{Type: protocol.CommandTCursorNext, Cursor: cur.ID(), Limit: 10}
	var frames [][]byte
	_, err = c.WriteStream(ctx, next.Serialize(), func(partial []byte) error {
		frames = append(frames, partial)
		return nil
	}).Get(ctx)
	require.NoError(t, err)

	// the header comes first, then one frame per entry in key order
	require.Len(t, frames, 4)
	header := protocol.Result{}
	require.NoError(t, header.DecodeHeader(frames[0]))
	assert.True(t, header.Done)
	assert.Equal(t, cur.ID(), header.Cursor)
	for i, k := range []string{"a", "b", "c"} {
		e, err := protocol.DecodeEntry(frames[i+1])
		require.NoError(t, err)
		assert.Equal(t, k, string(e.Key))
		assert.Equal(t, "v-"+k, string(e.Value))
	}

	// an error of the handler fails the write
	stop := errors.New("stop")
	_, err = c.WriteStream(ctx, putCommand("d", "1"), func([]byte) error { return stop }).Get(ctx)
	assert.ErrorIs(t, err, stop)
}
