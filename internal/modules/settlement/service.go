// README: Settlement notifier; computes the platform commission and credits the driver's wallet.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"colibri/internal/config"
	"colibri/internal/events"
	"colibri/internal/modules/trip"
	"colibri/internal/types"
)

var (
	ErrSettlementFailed = errors.New("settlement failed")
	ErrWalletNotFound   = errors.New("wallet not found")
)

// WalletCreditor is the external credit-wallet command.
type WalletCreditor interface {
	Credit(ctx context.Context, driver types.ID, amount types.Money) (decimal.Decimal, error)
}

// FactPublisher receives a record of every settlement. Optional.
type FactPublisher interface {
	Publish(ctx context.Context, s Settlement) error
}

type Notifier interface {
	SendToUser(user types.ID, event string, payload any) int
}

type Service struct {
	rate        decimal.Decimal
	defaultFare types.Money
	wallet      WalletCreditor
	facts       FactPublisher
	notifier    Notifier
	log         *slog.Logger
	now         func() time.Time
}

func NewService(cfg config.SettlementConfig, wallet WalletCreditor, notifier Notifier, log *slog.Logger) (*Service, error) {
	rate, err := decimal.NewFromString(cfg.CommissionRate)
	if err != nil || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("settlement: invalid commission rate %q", cfg.CommissionRate)
	}
	fare, err := decimal.NewFromString(cfg.DefaultFare)
	if err != nil || fare.IsNegative() {
		return nil, fmt.Errorf("settlement: invalid default fare %q", cfg.DefaultFare)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		rate:        rate,
		defaultFare: types.NewMoney(fare),
		wallet:      wallet,
		notifier:    notifier,
		log:         log,
		now:         time.Now,
	}, nil
}

func (s *Service) WithFacts(p FactPublisher) *Service {
	s.facts = p
	return s
}

// Commission returns fare * rate rounded to cents.
func (s *Service) Commission(fare types.Money) types.Money {
	m := types.NewMoney(fare.Amount.Mul(s.rate))
	if fare.Currency != "" {
		m.Currency = fare.Currency
	}
	return m
}

// OnTripCompleted computes the commission on fare and credits it to the
// driver's wallet. A failed credit is returned wrapped in ErrSettlementFailed;
// the completed trip is never rolled back.
func (s *Service) OnTripCompleted(ctx context.Context, driver types.ID, fare types.Money) (Settlement, error) {
	st := Settlement{
		Driver:     driver,
		Fare:       fare,
		Rate:       s.rate,
		Commission: s.Commission(fare),
		SettledAt:  s.now(),
	}
	if st.Commission.IsZero() {
		st.Settled = true
		return st, nil
	}
	if s.wallet == nil {
		return st, fmt.Errorf("%w: no wallet configured", ErrSettlementFailed)
	}
	balance, err := s.wallet.Credit(ctx, driver, st.Commission)
	if err != nil {
		return st, fmt.Errorf("%w: credit %s: %w", ErrSettlementFailed, driver, err)
	}
	st.Balance = &balance
	st.Settled = true
	return st, nil
}

// Settle runs OnTripCompleted for a finished trip, publishes the fact and
// reports the outcome to the driver. Trips with no known fare settle at the
// configured default fare.
func (s *Service) Settle(ctx context.Context, done trip.CompletedTrip) (Settlement, error) {
	fare := done.Fare
	if fare.IsZero() {
		fare = s.defaultFare
	}
	st, err := s.OnTripCompleted(ctx, done.Driver, fare)
	st.TripID = done.TripID
	st.Passenger = done.Passenger
	if err != nil {
		s.log.Error("settlement failed", "trip", done.TripID, "driver", done.Driver, "err", err)
	} else {
		s.log.Info("commission recorded", "trip", done.TripID, "driver", done.Driver,
			"fare", st.Fare.Amount.String(), "commission", st.Commission.Amount.String())
	}

	if s.facts != nil {
		if perr := s.facts.Publish(ctx, st); perr != nil {
			s.log.Warn("publish settlement fact failed", "trip", done.TripID, "err", perr)
		}
	}
	if s.notifier != nil {
		s.notifier.SendToUser(done.Driver, events.CommissionRecorded, events.CommissionPayload{
			Driver:     string(done.Driver),
			Passenger:  string(done.Passenger),
			Fare:       st.Fare.Float64(),
			Commission: st.Commission.Float64(),
			Settled:    st.Settled,
		})
	}
	return st, err
}
