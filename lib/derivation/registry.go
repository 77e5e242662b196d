package derivation

import (
	"context"

	"github.com/ValentinKolb/dDS/lib/id"
	"github.com/ValentinKolb/dDS/lib/scm"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Deriver capability interface
// --------------------------------------------------------------------------

// ParentOrder declares which parent values a deriver consumes.
type ParentOrder uint8

const (
	// TopoOrdered derivers receive the values of all parents, in the
	// commit's stored parent order.
	TopoOrdered ParentOrder = iota
	// FirstParentOnly derivers receive only the first parent's value.
	// The first parent is privileged: merge side branches do not
	// contribute to the derived value.
	FirstParentOnly
)

func (p ParentOrder) String() string {
	switch p {
	case TopoOrdered:
		return "TopoOrdered"
	case FirstParentOnly:
		return "FirstParentOnly"
	default:
		return "Unknown"
	}
}

// Deriver computes one derived data type. Compute must be pure and
// deterministic: the result may depend only on the commit and the parent
// values, never on wall-clock time, randomness or external mutable state.
// The engine and the consistency validator both rely on recomputing
// yielding identical bytes.
type Deriver interface {
	// Type identifies the derived data type including its version.
	Type() id.DerivedDataType
	// ParentOrder declares which parent values Compute expects.
	ParentOrder() ParentOrder
	// Compute derives the value for the commit given its parents' derived
	// values (selected per ParentOrder, parents of root commits are empty).
	Compute(ctx context.Context, commit scm.Commit, parents [][]byte) ([]byte, error)
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Registry holds the known derivers and their enablement. The engine never
// branches on type names; everything type-specific goes through the Deriver
// interface.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	derivers *xsync.MapOf[string, Deriver]
	disabled *xsync.MapOf[string, struct{}]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		derivers: xsync.NewMapOf[string, Deriver](),
		disabled: xsync.NewMapOf[string, struct{}](),
	}
}

// Register adds a deriver. Registering a name twice replaces the previous
// deriver. Registered types are enabled by default.
func (r *Registry) Register(d Deriver) {
	r.derivers.Store(d.Type().Name, d)
}

// Get returns the deriver for a type name if it is registered and enabled.
func (r *Registry) Get(name string) (Deriver, bool) {
	if !r.Enabled(name) {
		return nil, false
	}
	return r.derivers.Load(name)
}

// Enabled reports whether the type name is registered and not disabled.
func (r *Registry) Enabled(name string) bool {
	if _, off := r.disabled.Load(name); off {
		return false
	}
	_, ok := r.derivers.Load(name)
	return ok
}

// SetEnabled switches a type on or off without unregistering it.
// Used to apply per-type enablement from config.
func (r *Registry) SetEnabled(name string, enabled bool) {
	if enabled {
		r.disabled.Delete(name)
	} else {
		r.disabled.Store(name, struct{}{})
	}
}

// Names returns the names of all registered derivers, enabled or not.
func (r *Registry) Names() []string {
	var names []string
	r.derivers.Range(func(name string, _ Deriver) bool {
		names = append(names, name)
		return true
	})
	return names
}
