// README: Trip journal backed by PostgreSQL. Only lifecycle events are persisted; live state stays in memory.
package trip

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"colibri/internal/types"
)

// DB is the subset of pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO trip_events (
            trip_id, passenger_id, from_status, to_status, phase, actor_type, actor_id, reason, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(e.TripID),
		string(e.Passenger),
		string(e.FromStatus),
		string(e.ToStatus),
		string(e.Phase),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.Reason,
		e.CreatedAt,
	)
	return err
}

// History returns the passenger's most recent journal events, newest first.
func (s *Store) History(ctx context.Context, passenger types.ID, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
        SELECT id, trip_id, passenger_id, from_status, to_status, phase, actor_type, actor_id, reason, created_at
        FROM trip_events
        WHERE passenger_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2`, string(passenger), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e                              Event
			tripID, passengerID            string
			from, to, phase, actor, reason string
			actorID                        *string
			createdAt                      time.Time
		)
		if err := rows.Scan(&e.ID, &tripID, &passengerID, &from, &to, &phase, &actor, &actorID, &reason, &createdAt); err != nil {
			return nil, err
		}
		e.TripID = types.ID(tripID)
		e.Passenger = types.ID(passengerID)
		e.FromStatus = Status(from)
		e.ToStatus = Status(to)
		e.Phase = Phase(phase)
		e.ActorType = actor
		if actorID != nil {
			id := types.ID(*actorID)
			e.ActorID = &id
		}
		e.Reason = reason
		e.CreatedAt = createdAt
		out = append(out, e)
	}
	return out, rows.Err()
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
