package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openmined/drivesync/internal/blob"
	"github.com/openmined/drivesync/internal/client/config"
	"github.com/openmined/drivesync/internal/client/sync"
	"github.com/openmined/drivesync/internal/remote"
	"github.com/openmined/drivesync/internal/remote/drive"
	"github.com/openmined/drivesync/internal/utils"
)

type Client struct {
	config *config.Config
	poller *sync.Poller
	logger *slog.Logger
}

// New connects to the backend named by cfg.Backend.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	r, err := newRemote(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithRemote(cfg, r, logger)
}

func NewWithRemote(cfg *config.Config, r remote.Remote, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	engine, err := sync.NewSyncEngine(r, &sync.EngineConfig{
		SourceFolderID: cfg.SourceFolderID,
		LogFolderID:    cfg.LogFolderID,
		StagingDir:     cfg.StagingDir,
		OutputDir:      cfg.OutputDir,
		LogFile:        cfg.LogFile,
		Exclude:        cfg.Exclude,
		ChunkSize:      cfg.ChunkSize(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync engine: %w", err)
	}

	return &Client{
		config: cfg,
		poller: sync.NewPoller(engine, cfg.PollInterval(), logger),
		logger: logger,
	}, nil
}

func newRemote(ctx context.Context, cfg *config.Config) (remote.Remote, error) {
	switch cfg.Backend {
	case config.BackendS3:
		c, err := blob.NewBlobClientWithS3Config(ctx, &blob.S3BlobConfig{
			BucketName: cfg.S3.Bucket,
			Region:     cfg.S3.Region,
			AccessKey:  cfg.S3.AccessKey,
			SecretKey:  cfg.S3.SecretKey,
			Endpoint:   cfg.S3.Endpoint,

			SkipETagHash: cfg.S3.SkipETagHash,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 remote: %w", err)
		}
		return c, nil
	case config.BackendDrive, "":
		c, err := drive.New(ctx, cfg.CredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create drive remote: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Bootstrap creates the staging and output directories.
func (c *Client) Bootstrap() error {
	for _, dir := range []string{c.config.StagingDir, c.config.OutputDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Start polls until ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	c.logger.Info("drivesync start",
		"backend", c.config.Backend,
		"source", c.config.SourceFolderID,
		"staging", c.config.StagingDir,
		"output", c.config.OutputDir,
		"interval", c.config.PollInterval(),
	)
	if err := c.Bootstrap(); err != nil {
		return err
	}

	err := c.poller.Run(ctx)
	c.logger.Info("drivesync stop")
	return err
}

// RunOnce runs a single cycle and returns its error.
func (c *Client) RunOnce(ctx context.Context) error {
	if err := c.Bootstrap(); err != nil {
		return err
	}
	return c.poller.RunOnce(ctx)
}
