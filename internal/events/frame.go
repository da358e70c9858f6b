// README: Frame codec for the websocket channel: {"event": name, "data": payload}.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("malformed event")

type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds a frame for an outbound event.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// Decode parses a frame into its typed inbound payload and validates it.
// Unknown event names and invalid payloads wrap ErrMalformed.
func Decode(raw []byte) (Inbound, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	in, err := newInbound(f.Event)
	if err != nil {
		return nil, err
	}
	data := bytes.TrimSpace(f.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, in); err != nil {
		if errors.Is(err, ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, f.Event, err)
	}
	ev := deref(in)
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

func newInbound(name string) (any, error) {
	switch name {
	case DriverActive:
		return &DriverActiveEvent{}, nil
	case DriverInactive:
		return &DriverInactiveEvent{}, nil
	case SearchDriver:
		return &RideSearchEvent{Kind: KindNormal}, nil
	case SearchTour:
		return &RideSearchEvent{Kind: KindTour}, nil
	case DriverAccepts:
		return &DriverAcceptsEvent{}, nil
	case PassengerConfirms:
		return &PassengerConfirmsEvent{Kind: KindNormal}, nil
	case PassengerConfirmsTr:
		return &PassengerConfirmsEvent{Kind: KindTour}, nil
	case CancelConfirmation:
		return &CancelEvent{}, nil
	case PassengerEmergency:
		return &EmergencyEvent{}, nil
	case DriverArrived, StartTrip:
		return &PhaseEvent{Event: name}, nil
	case DriverPosition:
		return &PositionEvent{}, nil
	case TripFinished:
		return &FinishEvent{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing event name", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrMalformed, name)
	}
}

func deref(v any) Inbound {
	switch e := v.(type) {
	case *DriverActiveEvent:
		return *e
	case *DriverInactiveEvent:
		return *e
	case *RideSearchEvent:
		return *e
	case *DriverAcceptsEvent:
		return *e
	case *PassengerConfirmsEvent:
		return *e
	case *CancelEvent:
		return *e
	case *EmergencyEvent:
		return *e
	case *PhaseEvent:
		return *e
	case *PositionEvent:
		return *e
	case *FinishEvent:
		return *e
	}
	panic(fmt.Sprintf("events: unhandled inbound type %T", v))
}
