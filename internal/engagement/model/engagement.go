package model

import (
	"fmt"
	"time"
)

type ZoneKind string

const (
	ZonePickup      ZoneKind = "pickup"
	ZoneDestination ZoneKind = "destination"
)

type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Zone is a circular geofence around a point of interest. It is immutable for
// the lifetime of an engagement; the ID is derived from the coordinates so it
// stays stable across restarts within a session.
type Zone struct {
	ID           string     `json:"id"`
	Center       Coordinate `json:"center"`
	RadiusMeters float64    `json:"radius_meters"`
	Kind         ZoneKind   `json:"kind"`
}

func NewZone(kind ZoneKind, center Coordinate, radiusMeters float64) Zone {
	return Zone{
		ID:           fmt.Sprintf("%s_%.6f_%.6f", kind, center.Latitude, center.Longitude),
		Center:       center,
		RadiusMeters: radiusMeters,
		Kind:         kind,
	}
}

// Position is one GPS fix from the live position source.
type Position struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	HeadingDegrees float64   `json:"heading_degrees"`
	SpeedKmh       float64   `json:"speed_kmh"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	Timestamp      time.Time `json:"timestamp"`
}

func (p Position) Coordinate() Coordinate {
	return Coordinate{Latitude: p.Latitude, Longitude: p.Longitude}
}

// Attestation is a ledger-recorded statement of a location event. It is
// produced only by the attestation service, never constructed locally.
type Attestation struct {
	UID         string    `json:"uid"`
	TxHash      string    `json:"tx_hash"`
	BlockNumber uint64    `json:"block_number"`
	GasUsed     uint64    `json:"gas_used"`
	Memo        string    `json:"memo"`
	CreatedAt   time.Time `json:"created_at"`
}

// ConfirmationState is a snapshot of one zone's confirmation session.
// HasConfirmed and HasTimedOut are mutually exclusive and each becomes true
// at most once per zone per engagement.
type ConfirmationState struct {
	EntryAttestation         *Attestation `json:"entry_attestation"`
	ConfirmationAttestation  *Attestation `json:"confirmation_attestation"`
	IsWaitingForConfirmation bool         `json:"is_waiting_for_confirmation"`
	HasConfirmed             bool         `json:"has_confirmed"`
	HasTimedOut              bool         `json:"has_timed_out"`
	TimeRemainingSeconds     int          `json:"time_remaining_seconds"`
}

// RideAttestations combines the four possible attestations for display and
// audit. It is derived, always recomputed from the two confirmation states.
type RideAttestations struct {
	PickupEntry      *Attestation `json:"pickup_entry"`
	PickupConfirmed  *Attestation `json:"pickup_confirmed"`
	DropoffEntry     *Attestation `json:"dropoff_entry"`
	DropoffConfirmed *Attestation `json:"dropoff_confirmed"`
}

// Engagement is one active transport assignment from pickup to destination.
type Engagement struct {
	ID                 string          `json:"id"`
	RideID             string          `json:"ride_id"`
	DriverID           string          `json:"driver_id"`
	PassengerID        string          `json:"passenger_id"`
	Phase              NavigationPhase `json:"phase"`
	PickupZone         Zone            `json:"pickup_zone"`
	DropoffZone        Zone            `json:"dropoff_zone"`
	EnableAttestations bool            `json:"enable_attestations"`
	CreatedAt          time.Time       `json:"created_at"`
}

// AttestationKind distinguishes the two statements written per zone.
type AttestationKind string

const (
	AttestationEntry        AttestationKind = "entry"
	AttestationConfirmation AttestationKind = "confirmation"
)

// AttestationInput carries everything the attestation service needs to build
// and correlate one signed location statement.
type AttestationInput struct {
	Kind          AttestationKind
	ZoneID        string
	ZoneKind      ZoneKind
	Phase         NavigationPhase
	Position      *Position
	Memo          string
	RideID        string
	DriverID      string
	PassengerID   string
	AutoConfirmed bool
}
