// README: Outbound payloads sent by the core to clients.
package events

// Candidate is one entry of the ofertas list. ID is the driver identity so the
// passenger can echo it back in conductor_asignado.
type Candidate struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"nombre"`
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
	Distance *float64 `json:"distancia,omitempty"` // meters; omitted when unknown
}

type NoDriversPayload struct {
	Passenger string `json:"pasajero"`
	Message   string `json:"mensaje"`
}

type RideOfferPayload struct {
	Passenger       string  `json:"pasajero"`
	Kind            string  `json:"tipoSolicitud"`
	Origin          *Coord  `json:"origen,omitempty"`
	Destination     *Coord  `json:"destino,omitempty"`
	Destinations    []Coord `json:"destinos,omitempty"`
	OriginText      string  `json:"origenTexto,omitempty"`
	DestinationText string  `json:"destinoTexto,omitempty"`
	Distance        string  `json:"distancia,omitempty"`
	Duration        string  `json:"duracion,omitempty"`
	Fare            float64 `json:"costo"`
	Seats           int     `json:"pasajeros"`
	Preference      string  `json:"preferenciaSexo"`
	Timestamp       int64   `json:"timestamp"`
}

// TripPayload is shared by viaje_confirmado and iniciar_recogida.
type TripPayload struct {
	Passenger   string    `json:"pasajero"`
	Driver      DriverRef `json:"conductor"`
	Origin      *Coord    `json:"origen,omitempty"`
	Destination *Coord    `json:"destino,omitempty"`
	Fare        float64   `json:"costo"`
	Kind        string    `json:"tipoSolicitud,omitempty"`
	// ConfirmedBy is "conductor" or "pasajero" on viaje_confirmado.
	ConfirmedBy string `json:"confirmadoPor,omitempty"`
}

type PassengerPayload struct {
	Passenger string `json:"pasajero"`
	Driver    string `json:"conductor,omitempty"`
}

type CancelledPayload struct {
	Passenger string `json:"pasajero"`
	Reason    string `json:"motivo"`
}

// Cancellation reasons.
const (
	ReasonCancelled  = "cancelado"
	ReasonExpired    = "expirado"
	ReasonReassigned = "reasignado"
)

type EmergencyPayload struct {
	Passenger string `json:"pasajero"`
	Driver    string `json:"conductor"`
	Location  *Coord `json:"ubicacion,omitempty"`
	Message   string `json:"mensaje,omitempty"`
}

type PositionPayload struct {
	Passenger string  `json:"pasajero"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Progress  float64 `json:"progreso"`
	Phase     string  `json:"fase"`
}

type FinishedPayload struct {
	Passenger string  `json:"pasajero"`
	Driver    string  `json:"conductor"`
	Fare      float64 `json:"costo"`
}

type CommissionPayload struct {
	Driver     string  `json:"conductor"`
	Passenger  string  `json:"pasajero"`
	Fare       float64 `json:"costo"`
	Commission float64 `json:"comision"`
	Settled    bool    `json:"settled"`
}

type ErrorPayload struct {
	Event   string `json:"evento,omitempty"`
	Message string `json:"mensaje"`
}
