package client

import (
	"sync/atomic"

	"github.com/ValentinKolb/dTree/lib/partition"
)

// clientMembership is the membership view of a client. It starts with the seed endpoints and is
// replaced by the member list reported by the cluster.
type clientMembership struct {
	current atomic.Pointer[partition.StaticMembership]
}

func newClientMembership(endpoints []string) *clientMembership {
	m := &clientMembership{}
	m.current.Store(partition.NewEndpointMembership(endpoints...))
	return m
}

// update replaces the members if the list is not empty
func (m *clientMembership) update(endpoints []string) {
	if len(endpoints) == 0 {
		return
	}
	m.current.Store(partition.NewEndpointMembership(endpoints...))
}

func (m *clientMembership) endpoints() []string {
	return partition.Endpoints(m)
}

func (m *clientMembership) Local() partition.Member {
	return partition.Member{}
}

func (m *clientMembership) Members() []partition.Member {
	return m.current.Load().Members()
}

func (m *clientMembership) Member(id uint64) (partition.Member, bool) {
	return m.current.Load().Member(id)
}
