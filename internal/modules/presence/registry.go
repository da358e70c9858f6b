// README: In-memory connection registry; the authoritative view of online drivers.
package presence

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcloughlin/geohash"

	"colibri/internal/types"
)

// Mirror receives best-effort copies of registry writes.
type Mirror interface {
	Upsert(ctx context.Context, p DriverPresence) error
	Delete(ctx context.Context, connID types.ID) error
}

type Registry struct {
	mu      sync.RWMutex
	drivers map[types.ID]DriverPresence
	mirror  Mirror
	log     *slog.Logger
	now     func() time.Time
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		drivers: make(map[types.ID]DriverPresence),
		log:     log,
		now:     time.Now,
	}
}

// WithMirror attaches a mirror. Mirror failures are logged, never returned.
func (r *Registry) WithMirror(m Mirror) *Registry {
	r.mirror = m
	return r
}

// Set inserts or overwrites the record for connID.
func (r *Registry) Set(ctx context.Context, connID types.ID, p DriverPresence) {
	p.ConnID = connID
	if p.Capacity <= 0 {
		p.Capacity = DefaultCapacity
	}
	if p.Gender == "" {
		p.Gender = types.GenderAny
	}
	p.Position = clonePoint(p.Position)
	p.Cell = ""
	if p.Position != nil {
		p.Cell = geohash.EncodeWithPrecision(p.Position.Lat, p.Position.Lng, CellPrecision)
	}
	p.UpdatedAt = r.now()

	r.mu.Lock()
	r.drivers[connID] = p
	r.mu.Unlock()

	if r.mirror != nil {
		if err := r.mirror.Upsert(ctx, p); err != nil {
			r.log.Warn("presence mirror upsert failed", "conn", connID, "err", err)
		}
	}
}

// Remove deletes the record for connID. Removing an absent key is a no-op.
func (r *Registry) Remove(ctx context.Context, connID types.ID) bool {
	r.mu.Lock()
	_, ok := r.drivers[connID]
	delete(r.drivers, connID)
	r.mu.Unlock()

	if ok && r.mirror != nil {
		if err := r.mirror.Delete(ctx, connID); err != nil {
			r.log.Warn("presence mirror delete failed", "conn", connID, "err", err)
		}
	}
	return ok
}

func (r *Registry) Get(connID types.ID) (DriverPresence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.drivers[connID]
	p.Position = clonePoint(p.Position)
	return p, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.drivers)
}

// ListEligible copies the records matching pred under the read lock and yields
// from the copy, so writers are never blocked while the caller iterates. The
// sequence can be ranged over more than once; each pass takes a fresh snapshot.
func (r *Registry) ListEligible(pred func(DriverPresence) bool) iter.Seq[DriverPresence] {
	return func(yield func(DriverPresence) bool) {
		for _, p := range r.snapshot(pred) {
			if !yield(p) {
				return
			}
		}
	}
}

func (r *Registry) snapshot(pred func(DriverPresence) bool) []DriverPresence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DriverPresence, 0, len(r.drivers))
	for _, p := range r.drivers {
		if pred == nil || pred(p) {
			p.Position = clonePoint(p.Position)
			out = append(out, p)
		}
	}
	return out
}

// clonePoint gives every stored record and every copy handed out its own point.
func clonePoint(p *types.Point) *types.Point {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
