package provider

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/quay/zlog"

	"github.com/decisionhub/agent"
	"github.com/decisionhub/agent/internal/prefix"
)

// AzureConfig configures the Azure blob provider.
type AzureConfig struct {
	// ConnectionString names the account and optionally carries the
	// shared key. Without a key the default Azure credential chain is
	// used.
	ConnectionString string
	Container        string
	Prefix           string
	// Password decrypts encrypted bundle entries.
	Password string
	// Evaluator builds evaluators over loaded catalogs; nil selects
	// the default engine.
	Evaluator agent.EvaluatorFactory
}

// Azure serves projects from an Azure blob container. Blobs are listed
// hierarchically with a "/" delimiter in pages of 1000; the ETag,
// quotes trimmed, is the content hash.
type Azure struct {
	client    *azblob.Client
	container string
	prefix    prefix.Prefix
	password  string
	factory   agent.EvaluatorFactory
}

var _ Provider = (*Azure)(nil)

// NewAzure constructs the blob client from the connection string,
// falling back to the default credential chain when the string names
// an account without a shared key.
func NewAzure(cfg AzureConfig) (*Azure, error) {
	cs, err := parseConnectionString(cfg.ConnectionString)
	if err != nil {
		return nil, err
	}
	var client *azblob.Client
	if cs.AccountKey != "" {
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	} else {
		var cred *azidentity.DefaultAzureCredential
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("provider: unable to build Azure credential: %w", err)
		}
		client, err = azblob.NewClient(cs.serviceURL(), cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("provider: unable to build Azure client: %w", err)
	}
	return &Azure{
		client:    client,
		container: cfg.Container,
		prefix:    prefix.New(cfg.Prefix),
		password:  cfg.Password,
		factory:   cfg.Evaluator,
	}, nil
}

// ShouldRefresh implements Provider.
func (*Azure) ShouldRefresh() bool { return true }

// LoadData implements Provider.
func (a *Azure) LoadData(ctx context.Context, store *agent.Store) ([]agent.ProjectDiff, error) {
	ctx = zlog.ContextWithValues(ctx,
		"component", "provider/Azure.LoadData",
		"provider", "azure")

	cc := a.client.ServiceClient().NewContainerClient(a.container)
	opts := &container.ListBlobsHierarchyOptions{
		MaxResults: to.Ptr(int32(1000)),
	}
	if s := a.prefix.String(); s != "" {
		opts.Prefix = to.Ptr(s)
	}

	var listing []agent.ProjectData
	pager := cc.NewListBlobsHierarchyPager("/", opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("provider: unable to list container %q: %w", a.container, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			d := agent.ProjectData{Key: a.prefix.Strip(*item.Name)}
			if item.Properties != nil {
				d.ContentHash = etagBytes(item.Properties.ETag)
			}
			listing = append(listing, d)
		}
	}

	diff := store.CalculateDiff(filterListing(ctx, listing))
	fetched := fetchAll(ctx, refreshKeys(diff), a.fetch)
	return store.Apply(diff, fetched), nil
}

func (a *Azure) fetch(ctx context.Context, key string) (*agent.Project, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, a.prefix.Prepend(key), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to download blob: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read blob: %w", err)
	}
	return projectFromZip(ctx, b, etagBytes(resp.ETag), a.password, a.factory)
}

// EtagBytes turns a blob ETag into content-hash bytes. The service
// reports the tag quoted; the quotes are not part of the identity.
func etagBytes(tag *azcore.ETag) []byte {
	if tag == nil {
		return nil
	}
	return []byte(strings.Trim(string(*tag), `"`))
}

// ConnectionString is the parsed subset of an Azure storage connection
// string this provider needs.
type connectionString struct {
	AccountName  string
	AccountKey   string
	BlobEndpoint string
}

func parseConnectionString(s string) (*connectionString, error) {
	var cs connectionString
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch k {
		case "AccountName":
			cs.AccountName = v
		case "AccountKey":
			cs.AccountKey = v
		case "BlobEndpoint":
			cs.BlobEndpoint = v
		}
	}
	if cs.AccountName == "" && cs.BlobEndpoint == "" {
		return nil, fmt.Errorf("provider: connection string names neither an account nor a blob endpoint")
	}
	return &cs, nil
}

func (cs *connectionString) serviceURL() string {
	if cs.BlobEndpoint != "" {
		return cs.BlobEndpoint
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", cs.AccountName)
}
