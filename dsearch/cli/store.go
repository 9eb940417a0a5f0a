package cli

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/drive-search/dsearch/config"
	"github.com/ZanzyTHEbar/drive-search/dsearch/search"
	"github.com/ZanzyTHEbar/drive-search/dsearch/store/drive"
	"github.com/ZanzyTHEbar/drive-search/dsearch/store/memstore"
	"github.com/ZanzyTHEbar/drive-search/dsearch/store/s3store"
)

// driveRootAlias addresses the user's own drive
const driveRootAlias = "root"

// remote is an opened store plus the rules for turning a user supplied root
// into a container ref
type remote struct {
	lister search.Lister
	label  string
	root   func(string) search.ContainerRef
}

func openStore(ctx context.Context, cfg config.StoreConfig) (*remote, error) {
	switch cfg.Kind {
	case "memory":
		if cfg.Memory.Fixture == "" {
			return nil, fmt.Errorf("memory store needs store.memory.fixture")
		}
		s, fixtureRoot, err := memstore.LoadFile(cfg.Memory.Fixture)
		if err != nil {
			return nil, err
		}
		return &remote{
			lister: s,
			label:  "memory",
			root:   withDefault(fixtureRoot),
		}, nil

	case "s3":
		s, err := s3store.New(ctx, s3store.Config{
			Endpoint:     cfg.S3.Endpoint,
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return &remote{lister: s, label: "s3", root: s3store.RootRef}, nil

	case "drive":
		s, err := drive.New(ctx, drive.Config{CredentialsFile: cfg.Drive.CredentialsFile})
		if err != nil {
			return nil, err
		}
		return &remote{lister: s, label: "drive", root: withDefault(driveRootAlias)}, nil

	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}

func withDefault(def search.ContainerRef) func(string) search.ContainerRef {
	return func(root string) search.ContainerRef {
		if root == "" {
			return def
		}
		return search.ContainerRef(root)
	}
}

// newEngine maps the search config onto fetcher and engine options
func newEngine(cfg config.SearchConfig, r *remote, a *app, progress chan<- search.Progress) *search.Engine {
	fetcher := search.NewPageFetcher(r.lister,
		search.WithPageSize(cfg.PageSize),
		search.WithRetry(search.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			InitialWait: msToDuration(cfg.Retry.InitialWaitMs),
			MaxWait:     msToDuration(cfg.Retry.MaxWaitMs),
		}),
		search.WithRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		search.WithFetcherLogger(a.logger),
		search.WithStoreLabel(r.label),
	)

	return search.NewEngine(fetcher,
		search.WithWorkers(cfg.Workers),
		search.WithErrorPolicy(search.PolicyFromMode(cfg.Policy.Mode, cfg.Policy.MaxConsecutiveFailures)),
		search.WithTimeout(cfg.Timeout()),
		search.WithResultDedupe(cfg.Dedupe),
		search.WithExcludePatterns(cfg.Exclude...),
		search.WithProgressChannel(progress),
		search.WithLogger(a.logger.With().Str("store", r.label).Logger()),
	)
}
