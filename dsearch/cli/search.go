package cli

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZanzyTHEbar/drive-search/dsearch/ports"
	"github.com/ZanzyTHEbar/drive-search/dsearch/search"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type searchOptions struct {
	root           string
	store          string
	fixture        string
	workers        int
	pageSize       int
	timeout        time.Duration
	exclude        []string
	policy         string
	maxConsecutive int
	dedupe         bool
	output         string
	metricsAddr    string
	quiet          bool
}

func newSearchCmd(a *app) *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <fragment>",
		Short: "Find images whose names contain fragment anywhere below the root folder",
		Long: `Walks every folder below the root, listing children page by page, and
prints each image whose name contains the fragment (case-insensitive).

Folders that fail to list are skipped and reported; the result is then
marked incomplete. Interrupting the search prints what was found so far.`,
		Example: `  dsearch search cat --root 0AFolderId
  dsearch search invoice --store s3 --root scans/ --output json
  dsearch search cat --store memory --fixture tree.yaml --exclude 'node_modules/'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, a, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.root, "root", "", "root container id or key prefix (default from search.root, then the store's root)")
	f.StringVar(&opts.store, "store", "", "store kind: drive, s3 or memory")
	f.StringVar(&opts.fixture, "fixture", "", "YAML tree for the memory store")
	f.IntVarP(&opts.workers, "workers", "w", 0, "concurrent folder listings (default based on CPU count)")
	f.IntVar(&opts.pageSize, "page-size", 0, "children requested per page, at most 1000")
	f.DurationVar(&opts.timeout, "timeout", 0, "budget for the whole traversal, e.g. 2m")
	f.StringSliceVar(&opts.exclude, "exclude", nil, "gitignore-style patterns for names to skip")
	f.StringVar(&opts.policy, "policy", "", "error policy: skip or classify")
	f.IntVar(&opts.maxConsecutive, "max-consecutive-failures", 0, "abort after this many failed folders in a row")
	f.BoolVar(&opts.dedupe, "dedupe", false, "report a file reachable through several folders once")
	f.StringVarP(&opts.output, "output", "o", "table", "output format: table, json or yaml")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while searching")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "no progress spinner")

	return cmd
}

// applyFlags lets explicitly set flags win over the loaded configuration
func applyFlags(cmd *cobra.Command, a *app, opts *searchOptions) error {
	cfg := a.cfg
	changed := cmd.Flags().Changed

	if changed("store") {
		cfg.Store.Kind = opts.store
	}
	if changed("fixture") {
		cfg.Store.Memory.Fixture = opts.fixture
		if !changed("store") {
			cfg.Store.Kind = "memory"
		}
	}
	if changed("root") {
		cfg.Search.Root = opts.root
	}
	if changed("workers") {
		cfg.Search.Workers = opts.workers
	}
	if changed("page-size") {
		cfg.Search.PageSize = opts.pageSize
	}
	if changed("timeout") {
		cfg.Search.TimeoutSeconds = int(math.Ceil(opts.timeout.Seconds()))
	}
	if changed("exclude") {
		cfg.Search.Exclude = append(cfg.Search.Exclude, opts.exclude...)
	}
	if changed("policy") {
		cfg.Search.Policy.Mode = opts.policy
	}
	if changed("max-consecutive-failures") {
		cfg.Search.Policy.MaxConsecutiveFailures = opts.maxConsecutive
	}
	if changed("dedupe") {
		cfg.Search.Dedupe = opts.dedupe
	}
	if changed("metrics-addr") {
		cfg.Metrics.Listen = opts.metricsAddr
	}

	switch opts.output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("output must be table, json or yaml: %q", opts.output)
	}
	return cfg.Validate()
}

func runSearch(cmd *cobra.Command, a *app, opts *searchOptions, fragment string) error {
	if err := applyFlags(cmd, a, opts); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := openStore(ctx, a.cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", a.cfg.Store.Kind, err)
	}

	ui := newConsole(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts.quiet || opts.output != "table")

	if a.cfg.Metrics.Listen != "" {
		shutdown, err := serveMetrics(a, ui, a.cfg.Metrics.Listen)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	progress := make(chan search.Progress, 64)
	engine := newEngine(a.cfg.Search, r, a, progress)
	query := search.SearchQuery{Root: r.root(a.cfg.Search.Root), Fragment: fragment}

	ui.StartSpinner(fmt.Sprintf("searching %s for %q", query.Root, fragment))
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for p := range progress {
			ui.UpdateSpinner(progressMessage(p))
		}
	}()

	res := engine.Search(ctx, query)
	close(progress)
	<-drained

	ui.StopSpinner(res.Complete, progressMessage(search.Progress{
		Matches:           len(res.Items),
		ContainersVisited: res.Stats.ContainersVisited,
		Skipped:           len(res.Skipped),
	}))

	if warning := res.Warning(); warning != nil {
		ui.Warning(warning.Error())
	}

	if err := render(cmd.OutOrStdout(), res, opts.output); err != nil {
		return fmt.Errorf("failed to render results: %w", err)
	}
	if opts.output == "table" {
		ui.Output(fmt.Sprintf("(%d matches)", len(res.Items)))
	}

	switch {
	case res.Err == nil:
		return nil
	case search.IsCancellation(res.Err):
		return fmt.Errorf("search interrupted with %d folder(s) unexplored: %w", res.Pending, res.Err)
	default:
		return fmt.Errorf("search failed: %w", res.Err)
	}
}

func progressMessage(p search.Progress) string {
	msg := fmt.Sprintf("found %d image(s) in %d folder(s)", p.Matches, p.ContainersVisited)
	if p.Skipped > 0 {
		msg += fmt.Sprintf(", %d skipped", p.Skipped)
	}
	return msg
}

// serveMetrics exposes the Prometheus registry for the lifetime of the search
func serveMetrics(a *app, ui ports.Interactor, addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("metrics server stopped")
			ui.Error("metrics server stopped", err)
		}
	}()
	a.logger.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
