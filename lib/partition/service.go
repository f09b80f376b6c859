package partition

import (
	"context"
	"fmt"
)

// --------------------------------------------------------------------------
// Collaborator Interfaces
// --------------------------------------------------------------------------

// Member is one replica of a partition.
type Member struct {
	// ID is the raft replica id
	ID uint64 `json:"id"`
	// Name is a human readable name of the node
	Name string `json:"name,omitempty"`
	// RaftAddress is the address used for raft traffic between replicas
	RaftAddress string `json:"raft_address,omitempty"`
	// Endpoint is the address clients connect to
	Endpoint string `json:"endpoint"`
}

func (m Member) String() string {
	if m.Name != "" {
		return fmt.Sprintf("%s(%d)@%s", m.Name, m.ID, m.Endpoint)
	}
	return fmt.Sprintf("%d@%s", m.ID, m.Endpoint)
}

// MembershipService is the view of the replicas of a partition.
type MembershipService interface {
	// Local returns the member running in this process. Clients return the zero Member.
	Local() Member
	// Members returns all known members ordered by id.
	Members() []Member
	// Member looks up a member by its replica id.
	Member(id uint64) (Member, bool)
}

// MessagingService sends a single request to an endpoint and waits for the response.
type MessagingService interface {
	Send(ctx context.Context, endpoint string, shardID uint64, req []byte) ([]byte, error)
}

// StreamingService sends a request whose response arrives as a sequence of frames followed
// by a final response. onFrame is called for every frame in order. SendStream returns the
// final response, or an error when onFrame fails or the stream breaks.
type StreamingService interface {
	SendStream(ctx context.Context, endpoint string, shardID uint64, req []byte, onFrame func([]byte) error) ([]byte, error)
}

// Leadership describes the leader of a partition in a term.
type Leadership struct {
	Term   uint64
	Leader Member
}

// ElectionService looks up the current leader of a partition.
type ElectionService interface {
	// Leadership returns the leader of the shard and false if no leader is known.
	Leadership(shardID uint64) (Leadership, bool)
}

// --------------------------------------------------------------------------
// Management Service
// --------------------------------------------------------------------------

// ManagementService bundles the collaborators of one partition. Any of them may be nil when
// the owner does not need it, e.g. a server has no outgoing messaging.
type ManagementService struct {
	shardID    uint64
	membership MembershipService
	messaging  MessagingService
	streaming  StreamingService
	election   ElectionService
	registry   *ServiceTypeRegistry
}

// NewManagementService composes the collaborators of the partition with the given shard id.
func NewManagementService(
	shardID uint64,
	membership MembershipService,
	messaging MessagingService,
	streaming StreamingService,
	election ElectionService,
	registry *ServiceTypeRegistry,
) *ManagementService {
	return &ManagementService{
		shardID:    shardID,
		membership: membership,
		messaging:  messaging,
		streaming:  streaming,
		election:   election,
		registry:   registry,
	}
}

func (s *ManagementService) ShardID() uint64 {
	return s.shardID
}

func (s *ManagementService) Membership() MembershipService {
	return s.membership
}

func (s *ManagementService) Messaging() MessagingService {
	return s.messaging
}

func (s *ManagementService) Streaming() StreamingService {
	return s.streaming
}

func (s *ManagementService) Election() ElectionService {
	return s.election
}

func (s *ManagementService) Registry() *ServiceTypeRegistry {
	return s.registry
}
