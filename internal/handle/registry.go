// Package handle tracks memory handed across the C boundary so that a
// release of an unknown or already released pointer is detected instead of
// corrupting the allocator.
package handle

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/VAR-META-Tech/intent-verification/internal/errors"
	"github.com/VAR-META-Tech/intent-verification/internal/logging"
)

// Kind names the type of allocation behind a handle.
type Kind string

// Allocation kinds handed to C callers.
const (
	AnalysisResult Kind = "analysis_result"
	String         Kind = "string"
)

// Registry records live allocations by address.
type Registry struct {
	mu     sync.Mutex
	live   map[uintptr]Kind
	logger *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger uses the process default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		live:   make(map[uintptr]Kind),
		logger: logger.With("component", "handle"),
	}
}

// Register records addr as a live allocation of kind.
func (r *Registry) Register(addr uintptr, kind Kind) {
	if addr == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[addr] = kind
}

// Release forgets addr. It returns ErrDoubleRelease, and logs the misuse,
// when addr is not a live allocation of kind; the caller must then leave the
// memory alone. Releasing the zero address is a no-op.
func (r *Registry) Release(addr uintptr, kind Kind) error {
	if addr == 0 {
		return nil
	}

	r.mu.Lock()
	got, ok := r.live[addr]
	if ok && got == kind {
		delete(r.live, addr)
	}
	r.mu.Unlock()

	switch {
	case !ok:
		r.logger.Error("release of unknown or already released handle", "kind", kind, "addr", fmt.Sprintf("%#x", addr))
		return fmt.Errorf("%w: %s at %#x", errors.ErrDoubleRelease, kind, addr)
	case got != kind:
		r.logger.Error("release with mismatched kind", "kind", kind, "registered", got, "addr", fmt.Sprintf("%#x", addr))
		return fmt.Errorf("%w: %#x is a %s, not a %s", errors.ErrDoubleRelease, addr, got, kind)
	}
	return nil
}

// Live returns the number of allocations not yet released.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
