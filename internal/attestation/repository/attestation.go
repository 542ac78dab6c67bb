package repository

import (
	"context"
	"fmt"
	"time"

	"ride-engagement/internal/attestation"
	"ride-engagement/internal/engagement/model"

	"github.com/jackc/pgx/v5"
)

// Record is one journalled attestation row.
type Record struct {
	UID           string
	TxHash        string
	BlockNumber   uint64
	GasUsed       uint64
	Kind          string
	ZoneID        string
	ZoneKind      string
	Phase         string
	Latitude      float64
	Longitude     float64
	Memo          string
	RideID        string
	DriverID      string
	PassengerID   string
	AutoConfirmed bool
	CreatedAt     time.Time
}

type AttestationRepository struct {
	conn *pgx.Conn
}

func NewAttestationRepository(conn *pgx.Conn) *AttestationRepository {
	return &AttestationRepository{conn: conn}
}

func (r *AttestationRepository) Insert(ctx context.Context, stmt attestation.Statement, att model.Attestation) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO attestations (
			uid, tx_hash, block_number, gas_used,
			kind, zone_id, zone_kind, phase,
			latitude, longitude, memo,
			ride_id, driver_id, passenger_id,
			auto_confirmed, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		att.UID, att.TxHash, att.BlockNumber, att.GasUsed,
		stmt.Kind, stmt.ZoneID, stmt.ZoneKind, stmt.Phase,
		stmt.Latitude, stmt.Longitude, stmt.Memo,
		stmt.RideID, stmt.DriverID, stmt.PassengerID,
		stmt.AutoConfirmed, att.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert attestation: %w", err)
	}
	return nil
}

func (r *AttestationRepository) ListByRide(ctx context.Context, rideID string) ([]Record, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT uid, tx_hash, block_number, gas_used,
		       kind, zone_id, zone_kind, phase,
		       latitude, longitude, memo,
		       ride_id, driver_id, passenger_id,
		       auto_confirmed, created_at
		FROM attestations
		WHERE ride_id = $1
		ORDER BY created_at`,
		rideID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query attestations: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.UID, &rec.TxHash, &rec.BlockNumber, &rec.GasUsed,
			&rec.Kind, &rec.ZoneID, &rec.ZoneKind, &rec.Phase,
			&rec.Latitude, &rec.Longitude, &rec.Memo,
			&rec.RideID, &rec.DriverID, &rec.PassengerID,
			&rec.AutoConfirmed, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attestation row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
