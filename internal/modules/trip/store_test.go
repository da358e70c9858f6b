package trip

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"

	"colibri/internal/types"
)

func TestStore_AppendEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	actor := types.ID("d@x.mx")
	mock.ExpectExec("INSERT INTO trip_events").
		WithArgs("trip-1", "p@x.mx", "pending", "active", "en_route_to_pickup", "driver", pgxmock.AnyArg(), "", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewStore(mock)
	err = store.AppendEvent(context.Background(), &Event{
		TripID: "trip-1", Passenger: "p@x.mx",
		FromStatus: StatusPending, ToStatus: StatusActive, Phase: PhaseEnRouteToPickup,
		ActorType: ActorDriver, ActorID: &actor, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_History(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	actor := "d@x.mx"
	rows := pgxmock.NewRows([]string{"id", "trip_id", "passenger_id", "from_status", "to_status", "phase", "actor_type", "actor_id", "reason", "created_at"}).
		AddRow(int64(2), "trip-1", "p@x.mx", "active", "completed", "completed", "driver", &actor, "", now).
		AddRow(int64(1), "trip-1", "p@x.mx", "pending", "cancelled", "", "system", nil, "expirado", now)
	mock.ExpectQuery("SELECT (.+) FROM trip_events").
		WithArgs("p@x.mx", 50).
		WillReturnRows(rows)

	store := NewStore(mock)
	got, err := store.History(context.Background(), "p@x.mx", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].ToStatus != StatusCompleted || got[0].ActorID == nil || *got[0].ActorID != "d@x.mx" {
		t.Errorf("unexpected first event %+v", got[0])
	}
	if got[1].ActorID != nil || got[1].Reason != "expirado" {
		t.Errorf("unexpected second event %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestService_JournalsThroughStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("INSERT INTO trip_events").
		WithArgs(pgxmock.AnyArg(), "p@x.mx", "none", "pending", "", "passenger", pgxmock.AnyArg(), "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	svc := NewService(&recordingNotifier{}, testTripCfg(), nil).WithJournal(NewStore(mock))
	if err := svc.PassengerConfirms(context.Background(), confirm(pax, driver)); err != nil {
		t.Fatalf("PassengerConfirms: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
