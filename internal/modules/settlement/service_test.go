package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"colibri/internal/config"
	"colibri/internal/events"
	"colibri/internal/modules/trip"
	"colibri/internal/types"
)

type fakeWallet struct {
	mu      sync.Mutex
	credits map[types.ID]decimal.Decimal
	err     error
}

func (w *fakeWallet) Credit(_ context.Context, driver types.ID, amount types.Money) (decimal.Decimal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return decimal.Zero, w.err
	}
	if w.credits == nil {
		w.credits = make(map[types.ID]decimal.Decimal)
	}
	w.credits[driver] = w.credits[driver].Add(amount.Amount)
	return w.credits[driver], nil
}

type fakeFacts struct {
	published []Settlement
}

func (f *fakeFacts) Publish(_ context.Context, s Settlement) error {
	f.published = append(f.published, s)
	return nil
}

type recordingNotifier struct {
	to      types.ID
	event   string
	payload events.CommissionPayload
}

func (n *recordingNotifier) SendToUser(to types.ID, event string, payload any) int {
	n.to, n.event = to, event
	n.payload, _ = payload.(events.CommissionPayload)
	return 1
}

func defaultCfg() config.SettlementConfig {
	return config.SettlementConfig{CommissionRate: "0.15", DefaultFare: "50", Stream: "settlement:commissions"}
}

func newTestService(t *testing.T, w WalletCreditor) (*Service, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	svc, err := NewService(defaultCfg(), w, n, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, n
}

func TestOnTripCompleted_Arithmetic(t *testing.T) {
	tests := []struct {
		fare string
		want string
	}{
		{"100.00", "15"},
		{"0", "0"},
		{"69.2", "10.38"},
		{"33.33", "5"},
		{"12.34", "1.85"},
	}
	for _, tt := range tests {
		t.Run(tt.fare, func(t *testing.T) {
			w := &fakeWallet{}
			svc, _ := newTestService(t, w)
			st, err := svc.OnTripCompleted(context.Background(), "d@x.mx", types.NewMoney(decimal.RequireFromString(tt.fare)))
			if err != nil {
				t.Fatalf("OnTripCompleted: %v", err)
			}
			if !st.Commission.Amount.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("commission = %s, want %s", st.Commission.Amount, tt.want)
			}
			if !st.Settled {
				t.Error("expected settled")
			}
		})
	}
}

func TestOnTripCompleted_CreditsWallet(t *testing.T) {
	w := &fakeWallet{}
	svc, _ := newTestService(t, w)

	st, err := svc.OnTripCompleted(context.Background(), "d@x.mx", types.MoneyFromFloat(100))
	if err != nil {
		t.Fatalf("OnTripCompleted: %v", err)
	}
	if got := w.credits["d@x.mx"]; !got.Equal(decimal.NewFromInt(15)) {
		t.Errorf("wallet credited %s, want 15", got)
	}
	if st.Balance == nil || !st.Balance.Equal(decimal.NewFromInt(15)) {
		t.Errorf("unexpected balance %v", st.Balance)
	}
}

func TestOnTripCompleted_ZeroFareSkipsWallet(t *testing.T) {
	w := &fakeWallet{err: errors.New("must not be called")}
	svc, _ := newTestService(t, w)

	st, err := svc.OnTripCompleted(context.Background(), "d@x.mx", types.Money{})
	if err != nil || !st.Commission.IsZero() {
		t.Fatalf("OnTripCompleted = %+v, %v", st, err)
	}
}

func TestOnTripCompleted_WalletFailure(t *testing.T) {
	cause := errors.New("connection refused")
	svc, _ := newTestService(t, &fakeWallet{err: cause})

	st, err := svc.OnTripCompleted(context.Background(), "d@x.mx", types.MoneyFromFloat(100))
	if !errors.Is(err, ErrSettlementFailed) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped settlement failure, got %v", err)
	}
	if st.Settled || !st.Commission.Amount.Equal(decimal.NewFromInt(15)) {
		t.Errorf("unexpected settlement %+v", st)
	}
}

func TestSettle_ReportsToDriver(t *testing.T) {
	w := &fakeWallet{}
	svc, n := newTestService(t, w)
	facts := &fakeFacts{}
	svc.WithFacts(facts)

	done := trip.CompletedTrip{TripID: "trip-1", Passenger: "p@x.mx", Driver: "d@x.mx", Fare: types.MoneyFromFloat(100)}
	st, err := svc.Settle(context.Background(), done)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if st.TripID != "trip-1" || st.Passenger != "p@x.mx" {
		t.Errorf("unexpected settlement %+v", st)
	}
	if n.to != "d@x.mx" || n.event != events.CommissionRecorded || !n.payload.Settled || n.payload.Commission != 15 {
		t.Errorf("unexpected notification %+v to %s", n.payload, n.to)
	}
	if len(facts.published) != 1 {
		t.Errorf("expected one published fact, got %d", len(facts.published))
	}
}

func TestSettle_UsesDefaultFare(t *testing.T) {
	w := &fakeWallet{}
	svc, n := newTestService(t, w)

	st, err := svc.Settle(context.Background(), trip.CompletedTrip{Driver: "d@x.mx"})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !st.Fare.Amount.Equal(decimal.NewFromInt(50)) || !st.Commission.Amount.Equal(decimal.RequireFromString("7.5")) {
		t.Errorf("unexpected settlement %+v", st)
	}
	if n.payload.Fare != 50 {
		t.Errorf("unexpected payload %+v", n.payload)
	}
}

func TestSettle_FailureIsReported(t *testing.T) {
	svc, n := newTestService(t, &fakeWallet{err: errors.New("down")})

	_, err := svc.Settle(context.Background(), trip.CompletedTrip{Driver: "d@x.mx", Fare: types.MoneyFromFloat(100)})
	if !errors.Is(err, ErrSettlementFailed) {
		t.Fatalf("expected ErrSettlementFailed, got %v", err)
	}
	if n.event != events.CommissionRecorded || n.payload.Settled {
		t.Errorf("driver must be told the settlement failed, got %+v", n.payload)
	}
}

func TestNewService_RejectsBadConfig(t *testing.T) {
	tests := []config.SettlementConfig{
		{CommissionRate: "abc", DefaultFare: "50"},
		{CommissionRate: "1.5", DefaultFare: "50"},
		{CommissionRate: "0.15", DefaultFare: "-1"},
	}
	for _, cfg := range tests {
		if _, err := NewService(cfg, nil, nil, nil); err == nil {
			t.Errorf("expected error for %+v", cfg)
		}
	}
}
