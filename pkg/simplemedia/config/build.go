package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/idgen"
	"github.com/tendant/simple-media/pkg/simplemedia/pool"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/postgres"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/sqlite"
	"github.com/tendant/simple-media/pkg/simplemedia/storage/fs"
	"github.com/tendant/simple-media/pkg/simplemedia/storage/s3"
	"github.com/tendant/simple-media/pkg/simplemedia/transform"
)

// BuildService creates a Service from the configuration. Pool metrics are
// registered with reg when it is not nil.
func (c *Config) BuildService(ctx context.Context, reg prometheus.Registerer) (simplemedia.Service, error) {
	if err := os.MkdirAll(c.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data path: %w", err)
	}

	store, err := c.BuildContentStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build content store: %w", err)
	}

	generator, err := idgen.New(c.IDsGeneration)
	if err != nil {
		return nil, err
	}

	transformer, err := c.buildTransformer()
	if err != nil {
		return nil, err
	}

	var metrics *pool.Metrics
	if reg != nil {
		metrics = pool.NewMetrics(reg)
	}
	imagePool := pool.New("image", c.Concurrency, metrics)
	videoPool := pool.New("video", c.VideoCapacity(), metrics)

	repo, err := c.BuildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	svc, err := simplemedia.New(
		simplemedia.WithRepository(repo),
		simplemedia.WithContentStore(store),
		simplemedia.WithIDGenerator(generator),
		simplemedia.WithTransformer(transformer),
		simplemedia.WithWorkerPools(imagePool, videoPool),
		simplemedia.WithDerivedDir(c.DerivedDir()),
		simplemedia.WithAllowedSizes(c.AllowedSizes),
		simplemedia.WithAllowedVideoSizes(c.AllowedVideoSizes),
		simplemedia.WithDeletionKey(c.DeletionKey),
		simplemedia.WithUserAgent(c.UserAgent),
		simplemedia.WithAuths(c.Auths),
		simplemedia.WithFetchTimeout(c.FetchTimeout),
		simplemedia.WithJobTimeout(c.TransformTimeout),
	)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	slog.Info("Media store ready",
		"datapath", c.DataPath,
		"transformer", c.Transformer,
		"ids", c.IDsGeneration,
		"concurrency", c.Concurrency,
		"video_concurrency", c.VideoCapacity())
	return svc, nil
}

// BuildRepository opens the metadata store selected by DATABASE_URL and
// brings its schema up to date.
func (c *Config) BuildRepository(ctx context.Context) (simplemedia.Repository, error) {
	db, err := c.Database()
	if err != nil {
		return nil, err
	}
	switch db.Kind {
	case DatabaseMemory:
		slog.Warn("Using in-memory metadata; records are lost on restart")
		return memory.New(), nil
	case DatabaseSQLite:
		repo, err := sqlite.Open(db.DSN)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case DatabasePostgres:
		repo, err := postgres.Open(ctx, db.DSN)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
	return nil, fmt.Errorf("unsupported database kind: %s", db.Kind)
}

// BuildContentStore creates the blob store selected by STORAGE_URL
func (c *Config) BuildContentStore(ctx context.Context) (simplemedia.ContentStore, error) {
	sc, err := c.Storage()
	if err != nil {
		return nil, err
	}
	switch sc.Kind {
	case StorageFile:
		store, err := fs.New(fs.Config{BaseDir: sc.Dir})
		if err != nil {
			return nil, err
		}
		return store, nil
	case StorageS3:
		store, err := s3.New(ctx, s3.Config{
			Region:                 sc.Region,
			Bucket:                 sc.Bucket,
			AccessKeyID:            os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey:        os.Getenv("AWS_SECRET_ACCESS_KEY"),
			Endpoint:               sc.Endpoint,
			UsePathStyle:           sc.UsePathStyle,
			Prefix:                 sc.Prefix,
			CacheDir:               sc.Dir,
			CreateBucketIfNotExist: sc.CreateBucket,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("Using S3 content store", "bucket", sc.Bucket, "endpoint", sc.Endpoint)
		return store, nil
	}
	return nil, fmt.Errorf("unsupported storage kind: %s", sc.Kind)
}

func (c *Config) buildTransformer() (simplemedia.Transformer, error) {
	switch c.Transformer {
	case TransformerExec:
		return transform.NewExec(c.GMPath, c.FFmpegPath), nil
	case TransformerNative:
		return transform.NewNative(), nil
	}
	return nil, fmt.Errorf("unsupported transformer: %s", c.Transformer)
}

// Migrate applies the schema migrations of the configured metadata store.
// The in-memory store has no schema.
func (c *Config) Migrate() error {
	db, err := c.Database()
	if err != nil {
		return err
	}
	switch db.Kind {
	case DatabaseSQLite:
		if err := os.MkdirAll(c.DataPath, 0o755); err != nil {
			return fmt.Errorf("failed to create data path: %w", err)
		}
		return sqlite.Migrate(db.DSN)
	case DatabasePostgres:
		return postgres.Migrate(db.DSN)
	}
	return nil
}
