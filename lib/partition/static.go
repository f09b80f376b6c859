package partition

import (
	"sort"
)

// StaticMembership is a fixed member list, e.g. taken from the configuration.
type StaticMembership struct {
	local   Member
	members []Member
	byID    map[uint64]Member
}

// NewStaticMembership creates a membership from a fixed list. local is returned by Local
// and added to the list if it is missing.
func NewStaticMembership(local Member, members ...Member) *StaticMembership {
	m := &StaticMembership{
		local: local,
		byID:  make(map[uint64]Member, len(members)+1),
	}
	for _, member := range members {
		m.byID[member.ID] = member
	}
	if local.ID != 0 {
		if _, ok := m.byID[local.ID]; !ok {
			m.byID[local.ID] = local
		}
	}
	for _, member := range m.byID {
		m.members = append(m.members, member)
	}
	sort.Slice(m.members, func(i, j int) bool { return m.members[i].ID < m.members[j].ID })
	return m
}

// NewEndpointMembership creates a client side membership from a list of endpoints.
// Members are numbered in the given order starting with 1.
func NewEndpointMembership(endpoints ...string) *StaticMembership {
	members := make([]Member, len(endpoints))
	for i, endpoint := range endpoints {
		members[i] = Member{ID: uint64(i + 1), Endpoint: endpoint}
	}
	return NewStaticMembership(Member{}, members...)
}

func (m *StaticMembership) Local() Member {
	return m.local
}

func (m *StaticMembership) Members() []Member {
	out := make([]Member, len(m.members))
	copy(out, m.members)
	return out
}

func (m *StaticMembership) Member(id uint64) (Member, bool) {
	member, ok := m.byID[id]
	return member, ok
}

// Endpoints returns the client endpoints of all members in member order.
func Endpoints(m MembershipService) []string {
	members := m.Members()
	endpoints := make([]string, 0, len(members))
	for _, member := range members {
		if member.Endpoint != "" {
			endpoints = append(endpoints, member.Endpoint)
		}
	}
	return endpoints
}
