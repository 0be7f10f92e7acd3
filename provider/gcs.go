package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/quay/zlog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/decisionhub/agent"
	"github.com/decisionhub/agent/internal/prefix"
)

// GCSConfig configures the Google Cloud Storage provider.
type GCSConfig struct {
	// Base64Credentials is a base64-encoded service-account JSON
	// document. Empty selects application-default credentials.
	Base64Credentials string
	Bucket            string
	Prefix            string
	// Password decrypts encrypted bundle entries.
	Password string
	// Evaluator builds evaluators over loaded catalogs; nil selects
	// the default engine.
	Evaluator agent.EvaluatorFactory
}

// GCS serves projects from a Google Cloud Storage bucket. Objects are
// listed with a "/" delimiter in pages of 1000; the ETag is the
// content hash.
type GCS struct {
	client   *storage.Client
	bucket   string
	prefix   prefix.Prefix
	password string
	factory  agent.EvaluatorFactory
}

var _ Provider = (*GCS)(nil)

// NewGCS constructs the storage client from the supplied credentials.
func NewGCS(ctx context.Context, cfg GCSConfig) (*GCS, error) {
	var opts []option.ClientOption
	if cfg.Base64Credentials != "" {
		creds, err := base64.StdEncoding.DecodeString(cfg.Base64Credentials)
		if err != nil {
			return nil, fmt.Errorf("provider: unable to decode GCS credentials: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(creds))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("provider: unable to build GCS client: %w", err)
	}
	return &GCS{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   prefix.New(cfg.Prefix),
		password: cfg.Password,
		factory:  cfg.Evaluator,
	}, nil
}

// ShouldRefresh implements Provider.
func (*GCS) ShouldRefresh() bool { return true }

// LoadData implements Provider.
func (g *GCS) LoadData(ctx context.Context, store *agent.Store) ([]agent.ProjectDiff, error) {
	ctx = zlog.ContextWithValues(ctx,
		"component", "provider/GCS.LoadData",
		"provider", "gcs")

	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{
		Prefix:    g.prefix.String(),
		Delimiter: "/",
	})
	it.PageInfo().MaxSize = 1000

	var listing []agent.ProjectData
	for {
		attrs, err := it.Next()
		switch {
		case errors.Is(err, iterator.Done):
		case err != nil:
			return nil, fmt.Errorf("provider: unable to list bucket %q: %w", g.bucket, err)
		default:
			// Synthetic entries for common prefixes have no name.
			if attrs.Name == "" {
				continue
			}
			listing = append(listing, agent.ProjectData{
				Key:         g.prefix.Strip(attrs.Name),
				ContentHash: []byte(attrs.Etag),
			})
			continue
		}
		break
	}

	diff := store.CalculateDiff(filterListing(ctx, listing))
	fetched := fetchAll(ctx, refreshKeys(diff), g.fetch)
	return store.Apply(diff, fetched), nil
}

func (g *GCS) fetch(ctx context.Context, key string) (*agent.Project, error) {
	obj := g.client.Bucket(g.bucket).Object(g.prefix.Prepend(key))
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to stat object: %w", err)
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to open object: %w", err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read object: %w", err)
	}
	return projectFromZip(ctx, b, []byte(attrs.Etag), g.password, g.factory)
}
