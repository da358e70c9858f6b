// README: Background sweeper for handshakes that never completed.
package trip

import (
	"context"
	"time"

	"colibri/internal/events"
)

// RunPendingExpiry drops pending trips older than cfg.PendingTTL every
// cfg.SweepInterval until ctx is done. Active trips are never expired.
func (s *Service) RunPendingExpiry(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.ExpirePending(ctx); n > 0 {
				s.log.Info("expired pending trips", "count", n)
			}
		}
	}
}

// ExpirePending runs one sweep and returns how many entries were dropped.
func (s *Service) ExpirePending(ctx context.Context) int {
	var fx effects

	s.mu.Lock()
	now := s.now()
	cutoff := now.Add(-s.cfg.PendingTTL)
	n := 0
	for passenger, pt := range s.pending {
		if pt.CreatedAt.After(cutoff) {
			continue
		}
		delete(s.pending, passenger)
		s.closeLocked(passenger, pt.Driver, now)
		n++
		fx.record(&Event{TripID: pt.TripID, Passenger: passenger, FromStatus: StatusPending, ToStatus: StatusCancelled,
			ActorType: ActorSystem, Reason: events.ReasonExpired, CreatedAt: now})
		payload := events.CancelledPayload{Passenger: string(passenger), Reason: events.ReasonExpired}
		fx.send(passenger, events.TripCancelled, payload)
		fx.send(pt.Driver, events.TripCancelled, payload)
	}
	s.pruneClosedLocked(now)
	s.commit(ctx, &fx)
	return n
}
