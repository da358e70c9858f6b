// README: Event names on the realtime channel. The vocabulary is shared with the web and mobile clients.
package events

// Inbound events.
const (
	DriverActive        = "conductor_activo"
	DriverInactive      = "conductor_inactivo"
	SearchDriver        = "buscar_conductor"
	SearchTour          = "buscar_tour"
	DriverAccepts       = "conductor_acepta_viaje"
	PassengerConfirms   = "conductor_asignado"
	PassengerConfirmsTr = "conductor_asignado_tour"
	CancelConfirmation  = "cancelar_confirmacion"
	PassengerEmergency  = "pasajero_emergencia"
	DriverArrived       = "conductor_llego"
	StartTrip           = "iniciar_viaje"
	DriverPosition      = "posicion_conductor"
	TripFinished        = "viaje_finalizado"
)

// Outbound events. Some names are shared with inbound ones.
const (
	Offers             = "ofertas"
	NoDrivers          = "sin_conductores"
	NewRideAvailable   = "nuevo_viaje_disponible"
	TripConfirmed      = "viaje_confirmado"
	StartPickup        = "iniciar_recogida"
	TripStarted        = "viaje_iniciado"
	TripCancelled      = "viaje_cancelado"
	EmergencyCancelled = "viaje_cancelado_emergencia"
	EmergencyAlert     = "alerta_emergencia"
	CommissionRecorded = "comision_registrada"
	Error              = "error"
)

// Request kinds.
const (
	KindNormal = "normal"
	KindTour   = "tour"
)
