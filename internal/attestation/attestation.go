package attestation

import (
	"context"
	"fmt"
	"time"

	"ride-engagement/internal/engagement/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Statement is the payload published to the ledger: location plus metadata at
// time T, correlated to the ride and both parties.
type Statement struct {
	UID           string                `json:"uid"`
	Account       string                `json:"account"`
	Kind          model.AttestationKind `json:"kind"`
	ZoneID        string                `json:"zone_id"`
	ZoneKind      model.ZoneKind        `json:"zone_kind"`
	Phase         model.NavigationPhase `json:"phase"`
	Latitude      float64               `json:"latitude"`
	Longitude     float64               `json:"longitude"`
	Memo          string                `json:"memo"`
	RideID        string                `json:"ride_id"`
	DriverID      string                `json:"driver_id"`
	PassengerID   string                `json:"passenger_id"`
	AutoConfirmed bool                  `json:"auto_confirmed"`
	CreatedAt     time.Time             `json:"created_at"`
}

// Receipt is what the ledger returns for a committed write.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
}

// LedgerWriter commits one signed statement. It never retries internally.
type LedgerWriter interface {
	Write(ctx context.Context, token string, stmt Statement) (*Receipt, error)
}

// SigningIdentity is the wallet connection owned by the authentication
// collaborator. Read-only here: the service only checks presence and reads
// the account reference.
type SigningIdentity interface {
	IsConnected() bool
	Account() string
}

// Journal records every attestation written to the ledger, best effort, for
// per-ride audit queries.
type Journal interface {
	Insert(ctx context.Context, stmt Statement, att model.Attestation) error
}

// Service wraps the remote ledger write. One statement in, one attestation or
// a typed error out; callers treat any failure as "no attestation this time".
type Service struct {
	identity SigningIdentity
	signer   *Signer
	ledger   LedgerWriter
	journal  Journal
	log      *zap.Logger
}

func NewService(identity SigningIdentity, signer *Signer, ledger LedgerWriter, journal Journal, log *zap.Logger) *Service {
	return &Service{
		identity: identity,
		signer:   signer,
		ledger:   ledger,
		journal:  journal,
		log:      log,
	}
}

func (s *Service) CreateAttestation(ctx context.Context, in model.AttestationInput) (*model.Attestation, error) {
	if s.identity == nil || !s.identity.IsConnected() {
		return nil, &model.MissingPreconditionError{What: "connected signing identity"}
	}
	if in.Position == nil {
		return nil, &model.MissingPreconditionError{What: "current position"}
	}

	stmt := Statement{
		UID:           uuid.NewString(),
		Account:       s.identity.Account(),
		Kind:          in.Kind,
		ZoneID:        in.ZoneID,
		ZoneKind:      in.ZoneKind,
		Phase:         in.Phase,
		Latitude:      in.Position.Latitude,
		Longitude:     in.Position.Longitude,
		Memo:          in.Memo,
		RideID:        in.RideID,
		DriverID:      in.DriverID,
		PassengerID:   in.PassengerID,
		AutoConfirmed: in.AutoConfirmed,
		CreatedAt:     time.Now().UTC(),
	}

	token, err := s.signer.SignStatement(stmt)
	if err != nil {
		return nil, &model.AttestationWriteError{Cause: fmt.Errorf("sign statement: %w", err)}
	}

	receipt, err := s.ledger.Write(ctx, token, stmt)
	if err != nil {
		s.log.Warn("ledger write failed",
			zap.String("ride_id", in.RideID),
			zap.String("zone_id", in.ZoneID),
			zap.Error(err))
		return nil, &model.AttestationWriteError{Cause: err}
	}

	att := &model.Attestation{
		UID:         stmt.UID,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
		Memo:        stmt.Memo,
		CreatedAt:   stmt.CreatedAt,
	}

	if s.journal != nil {
		if err := s.journal.Insert(ctx, stmt, *att); err != nil {
			// The ledger is the source of truth; a journal miss only costs
			// the local audit row.
			s.log.Warn("attestation journal insert failed",
				zap.String("uid", att.UID), zap.Error(err))
		}
	}

	s.log.Info("attestation created",
		zap.String("uid", att.UID),
		zap.String("tx_hash", att.TxHash),
		zap.Uint64("block_number", att.BlockNumber),
		zap.String("ride_id", in.RideID),
		zap.String("kind", string(in.Kind)))
	return att, nil
}
