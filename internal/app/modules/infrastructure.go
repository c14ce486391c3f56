package modules

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"

	"aeroclaim.io/aeroclaim/internal/auth"
	"aeroclaim.io/aeroclaim/internal/config"
	"aeroclaim.io/aeroclaim/internal/eligibility"
	"aeroclaim.io/aeroclaim/internal/infrastructure"
	"aeroclaim.io/aeroclaim/internal/pkg/kms"
	"aeroclaim.io/aeroclaim/internal/pkg/worker"
	"aeroclaim.io/aeroclaim/internal/repository"
	"aeroclaim.io/aeroclaim/internal/storage"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config      *config.Config
	DB          *infrastructure.DatabaseClients
	Pool        *pgxpool.Pool
	RiverClient *river.Client[pgx.Tx]
	Pools       *worker.Pools
	Redis       redis.UniversalClient

	Store      *repository.Store
	FieldCodec *kms.FieldCodec
	FileCipher *kms.FileCipher
	Engine     *eligibility.Engine
	Tokens     *auth.TokenIssuer
	Objects    *storage.Client
}

// NewInfrastructure initializes shared connections, key material and
// the repository store. Domain modules build their services on top.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	// Dev-mode: apply goose migrations + River queue tables at boot.
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	redisClient, err := infrastructure.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		RemotePoolSize:  cfg.Worker.RemotePoolSize,
	})
	if err != nil {
		redisClient.Close()
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	fieldCodec, err := kms.NewFieldCodec([]byte(cfg.Security.DBEncryptionKey))
	if err != nil {
		pools.Shutdown()
		redisClient.Close()
		db.Close()
		return nil, fmt.Errorf("init field codec: %w", err)
	}
	fileCipher, err := kms.NewFileCipher([]byte(cfg.Security.FileEncryptionKey))
	if err != nil {
		pools.Shutdown()
		redisClient.Close()
		db.Close()
		return nil, fmt.Errorf("init file cipher: %w", err)
	}

	registry, err := eligibility.Load()
	if err != nil {
		pools.Shutdown()
		redisClient.Close()
		db.Close()
		return nil, fmt.Errorf("load airport registry: %w", err)
	}

	return &Infrastructure{
		Config:     cfg,
		DB:         db,
		Pool:       db.Pool,
		Pools:      pools,
		Redis:      redisClient,
		Store:      repository.NewStore(db.Pool, fieldCodec),
		FieldCodec: fieldCodec,
		FileCipher: fileCipher,
		Engine:     eligibility.NewEngine(registry),
		Tokens:     auth.NewTokenIssuer([]byte(cfg.Security.SecretKey), cfg.Auth.AccessTokenTTL),
		Objects:    storage.NewClient(cfg.WebDAV, pools.Remote),
	}, nil
}

// InitRiver initializes the River client on top of a worker registry.
// Workers may still be added to the registry afterwards, as long as it
// happens before Start.
func (i *Infrastructure) InitRiver(workers *river.Workers) error {
	if i == nil || i.DB == nil || i.Config == nil {
		return fmt.Errorf("infrastructure is not initialized")
	}
	if err := i.DB.InitRiverClient(workers, i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	i.RiverClient = i.DB.RiverClient
	return nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.Redis != nil {
		i.Redis.Close()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
