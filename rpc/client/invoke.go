package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dTree/lib/partition"
	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/ValentinKolb/dTree/rpc/common"
	"github.com/ValentinKolb/dTree/rpc/transport"
)

// request is a single message with its routing information
type request struct {
	name        string // used for metrics and logs
	kind        OperationKind
	consistency store.ReadConsistency
	msg         *common.Message
	stream      *stream // nil for requests with a single response
}

func (r request) leaderOnly() bool {
	return r.kind == OpCommand || r.consistency.RequiresLeader()
}

// invoke sends the request to the candidates selected by the strategy and follows redirects.
//
// Unreachable candidates are skipped. A NotLeader response redirects to the reported leader,
// every redirect and every retried query uses up one of RetryCount retries. A command that timed
// out is never sent again because it may have been applied. Sending a command again after a
// transport failure is safe, the session deduplicates its sequence.
func (c *RaftClient) invoke(ctx context.Context, req request) (resp *common.Message, err error) {
	start := time.Now()
	defer func() { observeRequest(req.name, err, start) }()

	data, err := c.serializer.Serialize(*req.msg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request: %w", err)
	}

	var lastErr error
	retriesLeft := c.config.RetryCount
	candidates := c.candidates(ctx, req)

	for {
		if len(candidates) == 0 {
			if lastErr == nil {
				return nil, fmt.Errorf("%w: no members known", transport.ErrUnavailable)
			}
			if retriesLeft <= 0 || !isUnavailable(lastErr) {
				return nil, lastErr
			}
			// every candidate failed, start over after a pause
			retriesLeft--
			retries.Inc()
			if err := c.pause(ctx, c.config.RetryCount-retriesLeft); err != nil {
				return nil, c.contextError(err, req)
			}
			candidates = c.candidates(ctx, req)
			continue
		}

		endpoint := candidates[0]
		candidates = candidates[1:]

		resp, attemptTimedOut, err := c.send(ctx, endpoint, data, req.stream)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil, c.contextError(ctx.Err(), req)
			case req.stream != nil && req.stream.started():
				// frames were delivered, sending again would deliver them twice
				return nil, err
			case attemptTimedOut:
				if req.kind == OpCommand {
					return nil, c.timeoutError(req, endpoint)
				}
				if retriesLeft <= 0 {
					return nil, c.timeoutError(req, endpoint)
				}
				retriesLeft--
				retries.Inc()
				lastErr = c.timeoutError(req, endpoint)
				candidates = append(candidates, endpoint)
			case errors.Is(err, transport.ErrUnavailable):
				Logger.Debugf("[%s] %s unavailable: %v", req.name, endpoint, err)
				c.tracker.Forget(c.config.ShardID, endpoint)
				lastErr = err
			default:
				return nil, err
			}
			continue
		}

		c.observe(resp)

		switch resp.Status {
		case common.StatusOK:
			if req.kind == OpQuery && req.leaderOnly() && resp.Term < c.Term() {
				// answered by a leader of an older term
				lastErr = &NotLeaderError{Term: c.Term(), Leader: c.Leader()}
				if retriesLeft <= 0 {
					return nil, lastErr
				}
				retriesLeft--
				retries.Inc()
				candidates = c.candidates(ctx, req)
				continue
			}
			return resp, nil

		case common.StatusNotLeader:
			redirects.Inc()
			lastErr = &NotLeaderError{Term: resp.Term, Leader: resp.Leader, Sequence: req.msg.Sequence}
			if retriesLeft <= 0 {
				return nil, lastErr
			}
			retriesLeft--
			if resp.Leader != "" && resp.Leader != endpoint {
				candidates = append([]string{resp.Leader}, without(candidates, resp.Leader)...)
			} else if len(candidates) == 0 {
				// election in progress
				if err := c.pause(ctx, c.config.RetryCount-retriesLeft); err != nil {
					return nil, c.contextError(err, req)
				}
				candidates = c.candidates(ctx, req)
			}

		case common.StatusSessionExpired:
			c.expired.Store(true)
			return nil, fmt.Errorf("%w: session %d (term %d, sequence %d): %s",
				ErrSessionExpired, c.sessionID, resp.Term, req.msg.Sequence, resp.Err)

		case common.StatusCommandFailed:
			return nil, &CommandFailedError{
				Code:     resp.Code,
				Msg:      resp.Err,
				Term:     resp.Term,
				Leader:   resp.Leader,
				Sequence: req.msg.Sequence,
			}

		case common.StatusTimeout:
			if req.kind == OpCommand || retriesLeft <= 0 {
				return nil, c.timeoutError(req, endpoint)
			}
			retriesLeft--
			retries.Inc()
			lastErr = c.timeoutError(req, endpoint)
			candidates = append(candidates, endpoint)

		default:
			return nil, fmt.Errorf("%s failed on %s: %s", req.name, endpoint, resp.Err)
		}
	}
}

// send performs a single attempt. attemptTimedOut is set if the attempt ran into the request
// timeout while ctx is still alive.
func (c *RaftClient) send(ctx context.Context, endpoint string, data []byte, st *stream) (resp *common.Message, attemptTimedOut bool, err error) {
	actx, cancel := context.WithTimeout(ctx, c.config.Timeout())
	defer cancel()

	var raw []byte
	if st == nil {
		raw, err = c.partition.Messaging().Send(actx, endpoint, c.config.ShardID, data)
	} else {
		raw, err = c.partition.Streaming().SendStream(actx, endpoint, c.config.ShardID, data, st.push)
	}
	if err != nil {
		timedOut := ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded)
		return nil, timedOut, err
	}

	resp = &common.Message{}
	if err := c.serializer.Deserialize(raw, resp); err != nil {
		return nil, false, fmt.Errorf("invalid response from %s: %w", endpoint, err)
	}
	return resp, false, nil
}

// candidates returns the endpoints for the request. Requests for the leader ask the members
// for the leader first if no leader is known.
func (c *RaftClient) candidates(ctx context.Context, req request) []string {
	leader := c.Leader()
	if leader == "" && req.leaderOnly() {
		leader = c.lookupLeader(ctx)
	}
	return c.config.Strategy.Select(req.kind, req.consistency, leader, c.members.endpoints(), c.rotation.Add(1))
}

// lookupLeader asks the members for the leader. Concurrent lookups are merged into one.
func (c *RaftClient) lookupLeader(ctx context.Context) string {
	v, _, _ := c.lookups.Do("leader", func() (interface{}, error) {
		leaderLookups.Inc()
		data, err := c.serializer.Serialize(*common.NewMetadataRequest())
		if err != nil {
			return "", err
		}
		for _, endpoint := range c.members.endpoints() {
			resp, _, err := c.send(ctx, endpoint, data, nil)
			if err != nil || resp.Status != common.StatusOK {
				continue
			}
			c.observe(resp)
			if leader := c.Leader(); leader != "" {
				return leader, nil
			}
		}
		return "", nil
	})
	leader, _ := v.(string)
	return leader
}

// observe learns term, leader and members from a response
func (c *RaftClient) observe(resp *common.Message) {
	if resp.Term != 0 || resp.Leader != "" {
		if c.tracker.Observe(c.config.ShardID, resp.Term, partition.Member{Endpoint: resp.Leader}) {
			Logger.Debugf("shard %d: term %d, leader %q", c.config.ShardID, resp.Term, resp.Leader)
		}
	}
	c.members.update(resp.Members)
}

// pause waits before the next round of attempts
func (c *RaftClient) pause(ctx context.Context, round int) error {
	delay := time.Duration(round) * 50 * time.Millisecond
	if delay > time.Second {
		delay = time.Second
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *RaftClient) contextError(err error, req request) error {
	if c.closed.Load() && req.name != "unregister" {
		return ErrSessionClosed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s (sequence %d, term %d)", ErrTimeout, req.name, req.msg.Sequence, c.Term())
	}
	return err
}

func (c *RaftClient) timeoutError(req request, endpoint string) error {
	return fmt.Errorf("%w: %s on %s (sequence %d, term %d)", ErrTimeout, req.name, endpoint, req.msg.Sequence, c.Term())
}

func isUnavailable(err error) bool {
	return errors.Is(err, transport.ErrUnavailable)
}

func without(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
