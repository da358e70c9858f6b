package trip

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"colibri/internal/config"
	"colibri/internal/types"
)

type delivery struct {
	to      types.ID
	event   string
	payload any
}

type recordingNotifier struct {
	mu  sync.Mutex
	out []delivery
}

func (n *recordingNotifier) SendToUser(to types.ID, event string, payload any) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.out = append(n.out, delivery{to, event, payload})
	return 1
}

func (n *recordingNotifier) count(to types.ID, event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, d := range n.out {
		if d.to == to && d.event == event {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) last(to types.ID, event string) (any, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.out) - 1; i >= 0; i-- {
		if n.out[i].to == to && n.out[i].event == event {
			return n.out[i].payload, true
		}
	}
	return nil, false
}

func (n *recordingNotifier) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.out)
}

type memJournal struct {
	mu     sync.Mutex
	events []Event
}

func (j *memJournal) AppendEvent(_ context.Context, e *Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, *e)
	return nil
}

func (j *memJournal) transitions() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.events))
	for i, e := range j.events {
		out[i] = fmt.Sprintf("%s->%s", e.FromStatus, e.ToStatus)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testTripCfg() config.TripConfig {
	return config.TripConfig{PendingTTL: 2 * time.Minute, SweepInterval: 10 * time.Millisecond}
}

func newTestService(t *testing.T) (*Service, *recordingNotifier, *memJournal, *fakeClock) {
	t.Helper()
	n := &recordingNotifier{}
	j := &memJournal{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(n, testTripCfg(), nil).WithJournal(j)
	svc.now = clock.Now
	var seq atomic.Int64
	svc.newID = func() types.ID { return types.ID(fmt.Sprintf("trip-%d", seq.Add(1))) }
	return svc, n, j, clock
}

var (
	origin    = &types.Point{Lat: 19.4326, Lng: -99.1332}
	dest      = &types.Point{Lat: 19.4204, Lng: -99.1819}
	driverPos = &types.Point{Lat: 19.4400, Lng: -99.1400}
)

func accept(passenger, driver types.ID) AcceptCommand {
	return AcceptCommand{Passenger: passenger, Driver: driver, DriverConn: "conn-" + driver, DriverName: "Luis", DriverPosition: driverPos, Origin: origin, Destination: dest}
}

func confirm(passenger, driver types.ID) ConfirmCommand {
	return ConfirmCommand{Passenger: passenger, Driver: driver, Origin: origin, Destination: dest, Fare: types.MoneyFromFloat(69.2)}
}

func mustActivate(t *testing.T, svc *Service, passenger, driver types.ID) {
	t.Helper()
	ctx := context.Background()
	if err := svc.DriverAccepts(ctx, accept(passenger, driver)); err != nil {
		t.Fatalf("DriverAccepts: %v", err)
	}
	if err := svc.PassengerConfirms(ctx, confirm(passenger, driver)); err != nil {
		t.Fatalf("PassengerConfirms: %v", err)
	}
	if svc.Snapshot(passenger).Status != StatusActive {
		t.Fatalf("expected active trip for %s", passenger)
	}
}
