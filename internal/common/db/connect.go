package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type Postgres struct {
	Conn *pgx.Conn
	log  *zap.Logger
}

func NewPostgres(log *zap.Logger, host string, port int, user, password, database string) (*Postgres, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		user, password, host, port, database,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		log.Error("failed to connect to postgres", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		log.Error("postgres ping failed", zap.Error(err))
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	log.Info("connected to postgres", zap.String("host", host), zap.String("database", database))
	return &Postgres{Conn: conn, log: log}, nil
}

func (p *Postgres) Close() {
	if p.Conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.Conn.Close(ctx)
		p.log.Info("postgres connection closed")
	}
}
