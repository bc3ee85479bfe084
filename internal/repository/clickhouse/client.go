package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/BarkinBalci/attribution-engine/internal/config"
)

// Client owns the native connection to the tracking-events database.
type Client struct {
	conn driver.Conn
	log  *zap.Logger
}

// NewClient opens the connection. Settings follow the engine's write
// pattern: many small idempotent inserts per backfill run, reads through
// FINAL point lookups and window scans.
func NewClient(ctx context.Context, cfg *config.ClickHouse, log *zap.Logger) (*Client, error) {
	var tlsConfig *tls.Config
	if cfg.UseTLS {
		tlsConfig = &tls.Config{}
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		Settings: clickhouse.Settings{
			// Upsert reads back the row it just wrote, so async inserts
			// must be acknowledged before the insert call returns.
			"async_insert":          1,
			"wait_for_async_insert": 1,
		},
		TLS:             tlsConfig,
		DialTimeout:     5 * time.Second,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open tracking-events connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping tracking-events database: %w", err)
	}

	log.Info("Tracking-events database connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.Bool("tls", cfg.UseTLS))

	return &Client{conn: conn, log: log}, nil
}

// Conn returns the underlying connection.
func (c *Client) Conn() driver.Conn {
	return c.conn
}

// Close closes the connection.
func (c *Client) Close() error {
	c.log.Info("Closing tracking-events connection")
	return c.conn.Close()
}
