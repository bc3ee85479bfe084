package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Service struct {
	Environment string `envconfig:"SERVICE_ENVIRONMENT" required:"true"`
	APIPort     string `envconfig:"SERVICE_API_PORT" default:"8080"`
	Host        string `envconfig:"SERVICE_HOST" default:"localhost:8080"`
}

type ClickHouse struct {
	Host            string `envconfig:"CLICKHOUSE_HOST" required:"true"`
	Port            string `envconfig:"CLICKHOUSE_PORT" required:"true"`
	Database        string `envconfig:"CLICKHOUSE_DB" required:"true"`
	User            string `envconfig:"CLICKHOUSE_USER" default:""`
	Password        string `envconfig:"CLICKHOUSE_PASSWORD" default:""`
	UseTLS          bool   `envconfig:"CLICKHOUSE_USE_TLS" default:"false"`
	MaxOpenConns    int    `envconfig:"CLICKHOUSE_MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns    int    `envconfig:"CLICKHOUSE_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime int    `envconfig:"CLICKHOUSE_CONN_MAX_LIFETIME_SEC" default:"3600"`
}

type Redis struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	PoolSize int    `envconfig:"REDIS_POOL_SIZE" default:"10"`
}

type Backfill struct {
	DefaultDays          int `envconfig:"BACKFILL_DEFAULT_DAYS" default:"7"`
	MaxDays              int `envconfig:"BACKFILL_MAX_DAYS" default:"30"`
	PageSize             int `envconfig:"BACKFILL_PAGE_SIZE" default:"250"`
	MaxPages             int `envconfig:"BACKFILL_MAX_PAGES" default:"40"`
	ExecutionCeilingSec  int `envconfig:"BACKFILL_EXECUTION_CEILING_SEC" default:"270"`
	ProximityWindowMin   int `envconfig:"BACKFILL_PROXIMITY_WINDOW_MIN" default:"120"`
	TaxonomyCacheTTLMin  int `envconfig:"TAXONOMY_CACHE_TTL_MIN" default:"360"`
}

type Matching struct {
	ClickIDThreshold    float64 `envconfig:"MATCHING_CLICK_ID_THRESHOLD" default:"0.20"`
	FBCThreshold        float64 `envconfig:"MATCHING_FBC_THRESHOLD" default:"0.22"`
	FBPOrEmailThreshold float64 `envconfig:"MATCHING_FBP_OR_EMAIL_THRESHOLD" default:"0.28"`
	FloorThreshold      float64 `envconfig:"MATCHING_FLOOR_THRESHOLD" default:"0.25"`
}

type Upstream struct {
	// JSON array of {store_id, domain, token} objects. Deployments with
	// a workspace service inject their own CredentialResolver instead.
	StoreCredentials string `envconfig:"STORE_CREDENTIALS" default:""`
}

type Config struct {
	Service    Service
	ClickHouse ClickHouse
	Redis      Redis
	Backfill   Backfill
	Matching   Matching
	Upstream   Upstream
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
