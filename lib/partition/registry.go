package partition

import (
	"fmt"
	"sort"

	sm "github.com/lni/dragonboat/v4/statemachine"
	"github.com/puzpuzpuz/xsync/v3"
)

// ServiceTypeTreeMap is the name of the replicated ordered map service.
const ServiceTypeTreeMap = "treemap"

// ServiceTypeRegistry maps service type names to state machine factories.
// It is safe for concurrent use.
type ServiceTypeRegistry struct {
	types *xsync.MapOf[string, sm.CreateStateMachineFunc]
}

// NewServiceTypeRegistry creates an empty registry.
func NewServiceTypeRegistry() *ServiceTypeRegistry {
	return &ServiceTypeRegistry{
		types: xsync.NewMapOf[string, sm.CreateStateMachineFunc](),
	}
}

// Register adds a factory. Registering a name twice is an error.
func (r *ServiceTypeRegistry) Register(name string, factory sm.CreateStateMachineFunc) error {
	if name == "" {
		return fmt.Errorf("service type name must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("service type %q has no factory", name)
	}
	if _, loaded := r.types.LoadOrStore(name, factory); loaded {
		return fmt.Errorf("service type %q already registered", name)
	}
	return nil
}

// Get returns the factory registered for name.
func (r *ServiceTypeRegistry) Get(name string) (sm.CreateStateMachineFunc, bool) {
	return r.types.Load(name)
}

// Names returns all registered names in sorted order.
func (r *ServiceTypeRegistry) Names() []string {
	names := make([]string, 0, r.types.Size())
	r.types.Range(func(name string, _ sm.CreateStateMachineFunc) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}
