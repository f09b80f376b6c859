package partition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/puzpuzpuz/xsync/v3"
)

// ZKMembership discovers the members of a partition through ZooKeeper. Every node registers an
// ephemeral znode below <root>/members that holds its Member record, so a crashed node leaves
// the membership when its ZooKeeper session ends.
type ZKMembership struct {
	conn     *zk.Conn
	rootPath string
	local    Member
	members  *xsync.MapOf[uint64, Member]
}

// NewZKMembership connects to the ZooKeeper ensemble, e.g. servers = ["zk1:2181", "zk2:2181"].
func NewZKMembership(servers []string, rootPath string, local Member, sessionTimeout time.Duration) (*ZKMembership, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}
	m := &ZKMembership{
		conn:     conn,
		rootPath: strings.TrimRight(rootPath, "/"),
		local:    local,
		members:  xsync.NewMapOf[uint64, Member](),
	}
	if local.ID != 0 {
		m.members.Store(local.ID, local)
	}
	return m, nil
}

func (m *ZKMembership) Close() error {
	m.conn.Close()
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see partition.MembershipService)
// --------------------------------------------------------------------------

func (m *ZKMembership) Local() Member {
	return m.local
}

func (m *ZKMembership) Members() []Member {
	out := make([]Member, 0, m.members.Size())
	m.members.Range(func(_ uint64, member Member) bool {
		out = append(out, member)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *ZKMembership) Member(id uint64) (Member, bool) {
	return m.members.Load(id)
}

// --------------------------------------------------------------------------
// Registration and Watch
// --------------------------------------------------------------------------

// RegisterSelf creates the ephemeral znode of the local member.
func (m *ZKMembership) RegisterSelf() error {
	if err := m.waitConnected(10 * time.Second); err != nil {
		return err
	}
	if err := m.ensurePath(m.membersPath()); err != nil {
		return fmt.Errorf("ensure members path: %w", err)
	}

	data, err := encodeMember(m.local)
	if err != nil {
		return err
	}
	nodePath := memberPath(m.membersPath(), m.local.ID)
	_, err = m.conn.Create(nodePath, data, zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return fmt.Errorf("create ephemeral node: %w", err)
	}

	log.Infof("registered member %s at %s", m.local, nodePath)
	return nil
}

// Refresh reads all member znodes once.
func (m *ZKMembership) Refresh() error {
	children, _, err := m.conn.Children(m.membersPath())
	if err != nil {
		return fmt.Errorf("zk children: %w", err)
	}
	m.update(children)
	return nil
}

// RunWatch keeps the member list up to date until ctx is done.
func (m *ZKMembership) RunWatch(ctx context.Context) {
	go func() {
		for {
			children, _, ch, err := m.conn.ChildrenW(m.membersPath())
			if err != nil {
				log.Warningf("zk ChildrenW failed: %v", err)
				select {
				case <-time.After(2 * time.Second):
					continue
				case <-ctx.Done():
					return
				}
			}
			m.update(children)

			select {
			case ev := <-ch:
				log.Debugf("zk event: %v", ev.Type)
			case <-ctx.Done():
				log.Infof("zk watch stopped")
				return
			}
		}
	}()
}

// update replaces the member list with the given znode names.
func (m *ZKMembership) update(children []string) {
	seen := make(map[uint64]struct{}, len(children))
	for _, child := range children {
		data, _, err := m.conn.Get(m.membersPath() + "/" + child)
		if err != nil {
			// the node left between Children and Get
			continue
		}
		member, err := decodeMember(data)
		if err != nil {
			log.Warningf("ignoring member znode %s: %v", child, err)
			continue
		}
		seen[member.ID] = struct{}{}
		m.members.Store(member.ID, member)
	}
	m.members.Range(func(id uint64, _ Member) bool {
		if _, ok := seen[id]; !ok && id != m.local.ID {
			m.members.Delete(id)
		}
		return true
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (m *ZKMembership) membersPath() string {
	return m.rootPath + "/members"
}

func (m *ZKMembership) ensurePath(path string) error {
	cur := ""
	for _, p := range strings.Split(path, "/") {
		if p == "" {
			continue
		}
		cur = cur + "/" + p
		exists, _, err := m.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			_, err = m.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && !errors.Is(err, zk.ErrNodeExists) {
				return err
			}
		}
	}
	return nil
}

func (m *ZKMembership) waitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st := m.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("zk: not connected after %s, state=%v", timeout, st)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func memberPath(parent string, id uint64) string {
	return parent + "/" + strconv.FormatUint(id, 10)
}

func encodeMember(m Member) ([]byte, error) {
	if m.ID == 0 {
		return nil, fmt.Errorf("member without id")
	}
	return json.Marshal(m)
}

func decodeMember(data []byte) (Member, error) {
	var m Member
	if err := json.Unmarshal(data, &m); err != nil {
		return Member{}, err
	}
	if m.ID == 0 || m.Endpoint == "" {
		return Member{}, fmt.Errorf("incomplete member record %q", data)
	}
	return m, nil
}
