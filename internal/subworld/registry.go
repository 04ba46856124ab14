// Package subworld holds the fixed table of pre-created process groups a
// spawned job may run in, each paired with an integrity color.
package subworld

import (
	"errors"
	"fmt"

	"github.com/pf-aics-riken/mpispawner/internal/transport"
)

// Capacity is the largest number of subworlds a registry holds.
const Capacity = 20

var (
	// ErrIntegrity marks a dispatch that names the wrong subworld.
	ErrIntegrity = errors.New("subworld integrity violation")

	ErrOutOfRange    = fmt.Errorf("%w: index out of range", ErrIntegrity)
	ErrColorMismatch = fmt.Errorf("%w: color mismatch", ErrIntegrity)
	ErrNotMember     = fmt.Errorf("%w: caller is not a member", ErrIntegrity)

	ErrCapacity = fmt.Errorf("more than %d subworlds", Capacity)
)

// Entry is one registered subworld. Comm is nil on ranks outside the group.
type Entry struct {
	Comm  transport.Comm
	Color uint64
}

// Registry is read-only once Register has run.
type Registry struct {
	entries    []Entry
	registered bool
}

// Register stores entries. It fails when called twice or with more than
// Capacity entries, leaving the registry unchanged.
func (r *Registry) Register(entries []Entry) error {
	if r.registered {
		return errors.New("subworlds already registered")
	}
	if len(entries) > Capacity {
		return fmt.Errorf("%w (got %d)", ErrCapacity, len(entries))
	}
	r.entries = append([]Entry(nil), entries...)
	r.registered = true
	return nil
}

// Len returns the number of registered subworlds.
func (r *Registry) Len() int { return len(r.entries) }

// Resolve returns the group registered at index when color matches the one
// stored there.
func (r *Registry) Resolve(index int, color uint64) (transport.Comm, error) {
	if index < 0 || index >= len(r.entries) {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrOutOfRange, index, len(r.entries))
	}
	e := r.entries[index]
	if e.Color != color {
		return nil, fmt.Errorf("%w: subworld %d has color %d, got %d", ErrColorMismatch, index, e.Color, color)
	}
	if e.Comm == nil {
		return nil, fmt.Errorf("%w: subworld %d", ErrNotMember, index)
	}
	return e.Comm, nil
}
