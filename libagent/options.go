package libagent

import (
	"context"
	"fmt"
	"time"

	"github.com/decisionhub/agent"
	"github.com/decisionhub/agent/provider"
)

const (
	// DefaultPollInterval is used when Options.PollInterval is unset.
	DefaultPollInterval = 5 * time.Second
	// MinPollInterval is the smallest accepted refresh interval.
	MinPollInterval = time.Second
)

// ProviderConfig selects and configures the source backend.
type ProviderConfig struct {
	// Kind names the backend: "Zip", "Filesystem", "S3",
	// "AzureStorage", or "GCS".
	Kind string
	// RootDir is the local directory for the Zip and Filesystem kinds.
	RootDir string
	// Bucket, Prefix, Endpoint, and ForcePathStyle configure the S3
	// kind; Prefix is shared with AzureStorage and GCS.
	Bucket         string
	Prefix         string
	Endpoint       string
	ForcePathStyle bool
	// ConnectionString and Container configure the AzureStorage kind.
	ConnectionString string
	Container        string
	// Base64Credentials configures the GCS kind.
	Base64Credentials string
}

// Options configures an Agent.
type Options struct {
	// Source overrides Provider with a caller-constructed backend.
	Source provider.Provider
	// Provider selects the backend when Source is nil.
	Provider ProviderConfig
	// PollInterval is the wall-clock-aligned refresh cadence for
	// backends that report ShouldRefresh. Defaults to
	// DefaultPollInterval; values below MinPollInterval are rejected.
	PollInterval time.Duration
	// ReleaseZipPassword decrypts encrypted bundle entries.
	ReleaseZipPassword string
	// Evaluator builds evaluators over loaded catalogs; nil selects
	// the default engine.
	Evaluator agent.EvaluatorFactory
}

func (o *Options) parse() error {
	if o.PollInterval == 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.PollInterval < MinPollInterval {
		return fmt.Errorf("libagent: poll interval %v below minimum %v", o.PollInterval, MinPollInterval)
	}
	if o.Source == nil && o.Provider.Kind == "" {
		return fmt.Errorf("libagent: no source configured")
	}
	return nil
}

func (o *Options) source(ctx context.Context) (provider.Provider, error) {
	if o.Source != nil {
		return o.Source, nil
	}
	cfg := o.Provider
	switch cfg.Kind {
	case "Zip":
		return provider.NewZip(provider.ZipConfig{
			Root:      cfg.RootDir,
			Password:  o.ReleaseZipPassword,
			Evaluator: o.Evaluator,
		})
	case "Filesystem":
		return provider.NewFilesystem(provider.FilesystemConfig{
			Root:      cfg.RootDir,
			Evaluator: o.Evaluator,
		})
	case "S3":
		return provider.NewS3(ctx, provider.S3Config{
			Bucket:         cfg.Bucket,
			Prefix:         cfg.Prefix,
			Endpoint:       cfg.Endpoint,
			ForcePathStyle: cfg.ForcePathStyle,
			Password:       o.ReleaseZipPassword,
			Evaluator:      o.Evaluator,
		})
	case "AzureStorage":
		return provider.NewAzure(provider.AzureConfig{
			ConnectionString: cfg.ConnectionString,
			Container:        cfg.Container,
			Prefix:           cfg.Prefix,
			Password:         o.ReleaseZipPassword,
			Evaluator:        o.Evaluator,
		})
	case "GCS":
		return provider.NewGCS(ctx, provider.GCSConfig{
			Base64Credentials: cfg.Base64Credentials,
			Bucket:            cfg.Bucket,
			Prefix:            cfg.Prefix,
			Password:          o.ReleaseZipPassword,
			Evaluator:         o.Evaluator,
		})
	}
	return nil, fmt.Errorf("libagent: unknown provider kind %q", cfg.Kind)
}
