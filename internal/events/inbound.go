// README: Inbound payloads, one struct per event name. Decode validates before anything reaches the core.
package events

import (
	"fmt"
	"strings"

	"colibri/internal/types"
)

// Inbound is a decoded and validated client event.
type Inbound interface {
	Name() string
	Validate() error
}

// Coord is a wire coordinate. Either field may be absent.
type Coord struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// Point returns nil when the coordinate is missing or out of range.
func (c *Coord) Point() *types.Point {
	if c == nil {
		return nil
	}
	return types.PointFrom(c.Lat, c.Lng)
}

func CoordOf(p *types.Point) *Coord {
	if p == nil {
		return nil
	}
	lat, lng := p.Lat, p.Lng
	return &Coord{Lat: &lat, Lng: &lng}
}

// DriverRef identifies a driver inside trip payloads. Passengers echo back the
// offer they picked, so email and id may both be present.
type DriverRef struct {
	ID    string   `json:"id,omitempty"`
	Email string   `json:"email,omitempty"`
	Name  string   `json:"nombre,omitempty"`
	Lat   *float64 `json:"lat,omitempty"`
	Lng   *float64 `json:"lng,omitempty"`
}

// Identity prefers the email, falling back to the id.
func (d *DriverRef) Identity() types.ID {
	if d == nil {
		return ""
	}
	if e := strings.TrimSpace(d.Email); e != "" {
		return types.ID(e)
	}
	return types.ID(strings.TrimSpace(d.ID))
}

func (d *DriverRef) Point() *types.Point {
	if d == nil {
		return nil
	}
	return types.PointFrom(d.Lat, d.Lng)
}

func required(event, field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s requires %s", ErrMalformed, event, field)
	}
	return nil
}

type DriverActiveEvent struct {
	Email        string   `json:"email"`
	DriverName   string   `json:"nombre"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	Capacity     Number   `json:"capacidad"`
	Gender       string   `json:"sexo"`
	AcceptsTours bool     `json:"aceptaTours"`
}

func (DriverActiveEvent) Name() string { return DriverActive }

func (e DriverActiveEvent) Validate() error {
	if e.Capacity < 0 {
		return fmt.Errorf("%w: negative capacity", ErrMalformed)
	}
	return required(DriverActive, "email", e.Email)
}

type DriverInactiveEvent struct {
	Email string `json:"email"`
}

func (DriverInactiveEvent) Name() string    { return DriverInactive }
func (DriverInactiveEvent) Validate() error { return nil }

// RideSearchEvent covers buscar_conductor and buscar_tour.
type RideSearchEvent struct {
	Kind            string  `json:"-"`
	Passenger       string  `json:"pasajero"`
	Origin          *Coord  `json:"origen"`
	Destination     *Coord  `json:"destino"`
	Destinations    []Coord `json:"destinos"`
	OriginText      string  `json:"origenTexto"`
	DestinationText string  `json:"destinoTexto"`
	Distance        string  `json:"distancia"`
	Duration        string  `json:"duracion"`
	Fare            *Number `json:"costo"`
	Preference      string  `json:"preferenciaSexo"`
	Seats           Number  `json:"pasajeros"`
}

func (e RideSearchEvent) Name() string {
	if e.Kind == KindTour {
		return SearchTour
	}
	return SearchDriver
}

func (e RideSearchEvent) Validate() error {
	if err := required(e.Name(), "pasajero", e.Passenger); err != nil {
		return err
	}
	if e.Seats < 0 {
		return fmt.Errorf("%w: negative seat count", ErrMalformed)
	}
	if e.Fare != nil && *e.Fare < 0 {
		return fmt.Errorf("%w: negative fare", ErrMalformed)
	}
	return nil
}

type DriverAcceptsEvent struct {
	Driver      *DriverRef `json:"conductor"`
	Passenger   string     `json:"pasajero"`
	Origin      *Coord     `json:"origen"`
	Destination *Coord     `json:"destino"`
	Kind        string     `json:"tipoSolicitud"`
	Fare        *Number    `json:"costo,omitempty"`
}

func (DriverAcceptsEvent) Name() string { return DriverAccepts }

func (e DriverAcceptsEvent) Validate() error {
	if err := required(DriverAccepts, "pasajero", e.Passenger); err != nil {
		return err
	}
	if e.Fare != nil && *e.Fare < 0 {
		return fmt.Errorf("%w: negative fare", ErrMalformed)
	}
	return required(DriverAccepts, "conductor.id", string(e.Driver.Identity()))
}

// PassengerConfirmsEvent covers conductor_asignado and conductor_asignado_tour.
type PassengerConfirmsEvent struct {
	Kind         string     `json:"-"`
	Passenger    string     `json:"pasajero"`
	Driver       *DriverRef `json:"conductor"`
	Origin       *Coord     `json:"origen"`
	Destination  *Coord     `json:"destino"`
	Destinations []Coord    `json:"destinos"`
	Fare         *Number    `json:"costo"`
}

func (e PassengerConfirmsEvent) Name() string {
	if e.Kind == KindTour {
		return PassengerConfirmsTr
	}
	return PassengerConfirms
}

func (e PassengerConfirmsEvent) Validate() error {
	if err := required(e.Name(), "pasajero", e.Passenger); err != nil {
		return err
	}
	if e.Fare != nil && *e.Fare < 0 {
		return fmt.Errorf("%w: negative fare", ErrMalformed)
	}
	return required(e.Name(), "conductor", string(e.Driver.Identity()))
}

type CancelEvent struct {
	Passenger string `json:"pasajero"`
	Driver    string `json:"conductor,omitempty"`
}

func (CancelEvent) Name() string { return CancelConfirmation }

func (e CancelEvent) Validate() error {
	return required(CancelConfirmation, "pasajero", e.Passenger)
}

type EmergencyEvent struct {
	Passenger string `json:"pasajero"`
	Driver    string `json:"conductor,omitempty"`
	Location  *Coord `json:"ubicacion,omitempty"`
}

func (EmergencyEvent) Name() string { return PassengerEmergency }

func (e EmergencyEvent) Validate() error {
	return required(PassengerEmergency, "pasajero", e.Passenger)
}

// PhaseEvent covers conductor_llego and iniciar_viaje.
type PhaseEvent struct {
	Event     string `json:"-"`
	Passenger string `json:"pasajero"`
}

func (e PhaseEvent) Name() string { return e.Event }

func (e PhaseEvent) Validate() error {
	return required(e.Event, "pasajero", e.Passenger)
}

type PositionEvent struct {
	Passenger string   `json:"pasajero"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Progress  *Number  `json:"progreso,omitempty"`
}

func (PositionEvent) Name() string { return DriverPosition }

func (e PositionEvent) Validate() error {
	if err := required(DriverPosition, "pasajero", e.Passenger); err != nil {
		return err
	}
	if types.PointFrom(e.Lat, e.Lng) == nil {
		return fmt.Errorf("%w: %s requires valid lat/lng", ErrMalformed, DriverPosition)
	}
	return nil
}

type FinishEvent struct {
	Passenger string  `json:"pasajero"`
	Driver    string  `json:"conductor"`
	Fare      *Number `json:"costo,omitempty"`
}

func (FinishEvent) Name() string { return TripFinished }

func (e FinishEvent) Validate() error {
	if err := required(TripFinished, "pasajero", e.Passenger); err != nil {
		return err
	}
	if e.Fare != nil && *e.Fare < 0 {
		return fmt.Errorf("%w: negative fare", ErrMalformed)
	}
	return nil
}
