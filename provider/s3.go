package provider

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/quay/zlog"

	"github.com/decisionhub/agent"
	"github.com/decisionhub/agent/internal/prefix"
)

// S3Config configures the S3-compatible provider.
type S3Config struct {
	Bucket string
	// Prefix restricts listing to keys under it; it is stripped from
	// project keys.
	Prefix string
	// Endpoint overrides the service endpoint, for S3-compatible
	// stores.
	Endpoint string
	// ForcePathStyle addresses the bucket in the path instead of the
	// host, required by most S3-compatible stores.
	ForcePathStyle bool
	// Password decrypts encrypted bundle entries.
	Password string
	// Evaluator builds evaluators over loaded catalogs; nil selects
	// the default engine.
	Evaluator agent.EvaluatorFactory
}

// S3 serves projects from an S3-compatible object store. Objects are
// listed with a "/" delimiter in pages of 1000; the ETag is the
// content hash.
type S3 struct {
	client   *s3.Client
	bucket   string
	prefix   prefix.Prefix
	password string
	factory  agent.EvaluatorFactory
}

var _ Provider = (*S3)(nil)

// NewS3 constructs the client from the ambient AWS credential chain.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	awscfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("provider: unable to load AWS configuration: %w", err)
	}
	client := s3.NewFromConfig(awscfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   prefix.New(cfg.Prefix),
		password: cfg.Password,
		factory:  cfg.Evaluator,
	}, nil
}

// ShouldRefresh implements Provider.
func (*S3) ShouldRefresh() bool { return true }

// LoadData implements Provider.
func (p *S3) LoadData(ctx context.Context, store *agent.Store) ([]agent.ProjectDiff, error) {
	ctx = zlog.ContextWithValues(ctx,
		"component", "provider/S3.LoadData",
		"provider", "s3")

	in := &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.bucket),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int32(1000),
	}
	if s := p.prefix.String(); s != "" {
		in.Prefix = aws.String(s)
	}

	var listing []agent.ProjectData
	pager := s3.NewListObjectsV2Paginator(p.client, in)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("provider: unable to list bucket %q: %w", p.bucket, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			d := agent.ProjectData{Key: p.prefix.Strip(*obj.Key)}
			if obj.ETag != nil {
				d.ContentHash = []byte(*obj.ETag)
			}
			listing = append(listing, d)
		}
	}

	diff := store.CalculateDiff(filterListing(ctx, listing))
	fetched := fetchAll(ctx, refreshKeys(diff), p.fetch)
	return store.Apply(diff, fetched), nil
}

func (p *S3) fetch(ctx context.Context, key string) (*agent.Project, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.prefix.Prepend(key)),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to get object: %w", err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read object: %w", err)
	}
	var hash []byte
	if out.ETag != nil {
		hash = []byte(*out.ETag)
	}
	return projectFromZip(ctx, b, hash, p.password, p.factory)
}
