package rmq

import "time"

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type PhaseChangedMessage struct {
	RideID    string    `json:"ride_id"`
	From      string    `json:"from_phase"`
	To        string    `json:"to_phase"`
	Forced    bool      `json:"forced"`
	Timestamp time.Time `json:"timestamp"`
}

type ZoneEnteredMessage struct {
	RideID         string    `json:"ride_id"`
	ZoneID         string    `json:"zone_id"`
	ZoneKind       string    `json:"zone_kind"`
	Location       LatLng    `json:"location"`
	DistanceMeters float64   `json:"distance_meters"`
	Timestamp      time.Time `json:"timestamp"`
}

type ConfirmationResolvedMessage struct {
	RideID         string    `json:"ride_id"`
	ZoneKind       string    `json:"zone_kind"`
	Confirmed      bool      `json:"confirmed"`
	AutoConfirmed  bool      `json:"auto_confirmed"`
	AttestationUID string    `json:"attestation_uid,omitempty"`
	TxHash         string    `json:"tx_hash,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type AttestationCreatedMessage struct {
	RideID      string    `json:"ride_id"`
	UID         string    `json:"uid"`
	TxHash      string    `json:"tx_hash"`
	BlockNumber uint64    `json:"block_number"`
	GasUsed     uint64    `json:"gas_used"`
	Memo        string    `json:"memo"`
	Timestamp   time.Time `json:"timestamp"`
}

type LocationUpdateMessage struct {
	DriverID  string    `json:"driver_id"`
	RideID    string    `json:"ride_id"`
	Location  LatLng    `json:"location"`
	SpeedKmh  float64   `json:"speed_kmh"`
	Heading   float64   `json:"heading_degrees"`
	Accuracy  float64   `json:"accuracy_meters"`
	Timestamp time.Time `json:"timestamp"`
}
