package events

import (
	"encoding/json"
	"errors"
	"testing"

	"colibri/internal/types"
)

func TestDecode_Valid(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, in Inbound)
	}{
		{
			name:  "driver active with string capacity",
			frame: `{"event":"conductor_activo","data":{"email":"d@x.mx","nombre":"Luis","lat":19.43,"lng":-99.13,"capacidad":"6","sexo":"hombre","aceptaTours":true}}`,
			check: func(t *testing.T, in Inbound) {
				e := in.(DriverActiveEvent)
				if e.Capacity != 6 || e.DriverName != "Luis" || !e.AcceptsTours || types.ParseGender(e.Gender) != types.GenderMale {
					t.Errorf("unexpected payload %+v", e)
				}
			},
		},
		{
			name:  "search driver",
			frame: `{"event":"buscar_conductor","data":{"pasajero":"p@x.mx","origen":{"lat":19.43,"lng":-99.13},"destino":{"lat":19.5,"lng":-99.2},"distancia":"5,2 km","costo":69.2,"preferenciaSexo":"cualquiera","pasajeros":"2"}}`,
			check: func(t *testing.T, in Inbound) {
				e := in.(RideSearchEvent)
				if e.Kind != KindNormal || e.Name() != SearchDriver {
					t.Errorf("unexpected kind %q", e.Kind)
				}
				if e.Origin.Point() == nil || e.Seats != 2 || e.Fare == nil || *e.Fare != 69.2 {
					t.Errorf("unexpected payload %+v", e)
				}
			},
		},
		{
			name:  "search tour",
			frame: `{"event":"buscar_tour","data":{"pasajero":"p@x.mx","origen":{"lat":19.43,"lng":-99.13},"destinos":[{"lat":19.5,"lng":-99.2}]}}`,
			check: func(t *testing.T, in Inbound) {
				e := in.(RideSearchEvent)
				if e.Kind != KindTour || len(e.Destinations) != 1 {
					t.Errorf("unexpected payload %+v", e)
				}
			},
		},
		{
			name:  "driver accepts",
			frame: `{"event":"conductor_acepta_viaje","data":{"conductor":{"id":"d@x.mx","nombre":"Luis","lat":19.43,"lng":-99.13},"pasajero":"p@x.mx"}}`,
			check: func(t *testing.T, in Inbound) {
				e := in.(DriverAcceptsEvent)
				if e.Driver.Identity() != "d@x.mx" || e.Driver.Point() == nil {
					t.Errorf("unexpected payload %+v", e)
				}
			},
		},
		{
			name:  "passenger confirms tour prefers email",
			frame: `{"event":"conductor_asignado_tour","data":{"pasajero":"p@x.mx","conductor":{"id":"conn-1","email":"d@x.mx"}}}`,
			check: func(t *testing.T, in Inbound) {
				e := in.(PassengerConfirmsEvent)
				if e.Kind != KindTour || e.Driver.Identity() != "d@x.mx" {
					t.Errorf("unexpected payload %+v", e)
				}
			},
		},
		{
			name:  "position with string progress",
			frame: `{"event":"posicion_conductor","data":{"pasajero":"p@x.mx","lat":19.43,"lng":-99.13,"progreso":"45"}}`,
			check: func(t *testing.T, in Inbound) {
				e := in.(PositionEvent)
				if e.Progress == nil || *e.Progress != 45 {
					t.Errorf("unexpected progress %+v", e.Progress)
				}
			},
		},
		{
			name:  "phase event keeps its name",
			frame: `{"event":"iniciar_viaje","data":{"pasajero":"p@x.mx"}}`,
			check: func(t *testing.T, in Inbound) {
				if in.Name() != StartTrip {
					t.Errorf("unexpected name %q", in.Name())
				}
			},
		},
		{
			name:  "inactive without data",
			frame: `{"event":"conductor_inactivo"}`,
			check: func(t *testing.T, in Inbound) {
				if _, ok := in.(DriverInactiveEvent); !ok {
					t.Errorf("unexpected type %T", in)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			tt.check(t, in)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `{"event":`},
		{"missing event", `{"data":{}}`},
		{"unknown event", `{"event":"nope","data":{}}`},
		{"search without passenger", `{"event":"buscar_conductor","data":{"origen":{"lat":1,"lng":1}}}`},
		{"accept without driver", `{"event":"conductor_acepta_viaje","data":{"pasajero":"p@x.mx"}}`},
		{"confirm without driver", `{"event":"conductor_asignado","data":{"pasajero":"p@x.mx"}}`},
		{"position without coordinates", `{"event":"posicion_conductor","data":{"pasajero":"p@x.mx"}}`},
		{"position out of range", `{"event":"posicion_conductor","data":{"pasajero":"p@x.mx","lat":120,"lng":0}}`},
		{"non numeric progress", `{"event":"posicion_conductor","data":{"pasajero":"p@x.mx","lat":1,"lng":1,"progreso":"abc"}}`},
		{"negative fare", `{"event":"viaje_finalizado","data":{"pasajero":"p@x.mx","costo":-3}}`},
		{"wrong type", `{"event":"cancelar_confirmacion","data":{"pasajero":12}}`},
		{"driver active without email", `{"event":"conductor_activo","data":{"nombre":"Luis"}}`},
		{"NaN fare", `{"event":"buscar_conductor","data":{"pasajero":"p","costo":"NaN"}}`},
		{"infinite accept fare", `{"event":"conductor_acepta_viaje","data":{"pasajero":"p","conductor":{"id":"d@x.mx"},"costo":"Infinity"}}`},
		{"infinite progress", `{"event":"posicion_conductor","data":{"pasajero":"p","lat":1,"lng":1,"progreso":"-Inf"}}`},
		{"NaN capacity", `{"event":"conductor_activo","data":{"email":"d@x.mx","capacidad":"nan"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	raw, err := Encode(TripCancelled, CancelledPayload{Passenger: "p@x.mx", Reason: ReasonExpired})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var f struct {
		Event string           `json:"event"`
		Data  CancelledPayload `json:"data"`
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Event != TripCancelled || f.Data.Reason != ReasonExpired {
		t.Errorf("unexpected frame %s", raw)
	}
}

func TestParseKm(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"5,2 km", 5.2, true},
		{"12.5 km", 12.5, true},
		{"850 m", 0.85, true},
		{"3", 3, true},
		{"", 0, false},
		{"lejos", 0, false},
		{"inf km", 0, false},
		{"NaN", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseKm(tt.in)
		if ok != tt.ok || (ok && (got-tt.want > 1e-9 || tt.want-got > 1e-9)) {
			t.Errorf("ParseKm(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
