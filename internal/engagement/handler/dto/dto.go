package dto

import "ride-engagement/internal/engagement/model"

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type BeginEngagementRequest struct {
	RideID      string `json:"ride_id"`
	DriverID    string `json:"driver_id"`
	PassengerID string `json:"passenger_id"`
	Pickup      LatLng `json:"pickup"`
	Destination LatLng `json:"destination"`
}

func (r BeginEngagementRequest) Validate() string {
	switch {
	case r.RideID == "":
		return "ride_id is required"
	case r.DriverID == "":
		return "driver_id is required"
	case r.Pickup.Lat < -90 || r.Pickup.Lat > 90 || r.Destination.Lat < -90 || r.Destination.Lat > 90:
		return "latitude out of range"
	case r.Pickup.Lng < -180 || r.Pickup.Lng > 180 || r.Destination.Lng < -180 || r.Destination.Lng > 180:
		return "longitude out of range"
	}
	return ""
}

func (l LatLng) Coordinate() model.Coordinate {
	return model.Coordinate{Latitude: l.Lat, Longitude: l.Lng}
}

type TransitionRequest struct {
	Target string `json:"target"`
}

type ResolveRouteRequest struct {
	Choice string `json:"choice"`
}

type ConfirmationResponse struct {
	Confirmed bool `json:"confirmed"`
}

type AttestationRecord struct {
	UID           string  `json:"uid"`
	TxHash        string  `json:"tx_hash"`
	BlockNumber   uint64  `json:"block_number"`
	GasUsed       uint64  `json:"gas_used"`
	Kind          string  `json:"kind"`
	ZoneKind      string  `json:"zone_kind"`
	Phase         string  `json:"phase"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Memo          string  `json:"memo"`
	AutoConfirmed bool    `json:"auto_confirmed"`
	CreatedAt     string  `json:"created_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
