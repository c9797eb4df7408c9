// Package fetcher retrieves the complete system list from the monitoring API,
// paging until the upstream runs dry or the record cap is reached.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/graphql"
	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/types"
)

// Poster sends one GraphQL request. *graphql.Client implements it.
type Poster interface {
	Post(ctx context.Context, query string, variables map[string]any) (graphql.Data, error)
}

// Limits and retry defaults.
const (
	DefaultMaxRecords    = 5000
	DefaultRetryAttempts = 3
	defaultRetryDelay    = 500 * time.Millisecond
	defaultRetryMaxDelay = 10 * time.Second
)

// Config controls what is queried and how far the loop may go.
type Config struct {
	PageQuery        string
	FallbackQuery    string
	PageRootKeys     []string
	FallbackRootKeys []string
	MaxRecords       int
	MaxPages         int // 0 means MaxRecords+1
	RetryAttempts    int
	RetryDelay       time.Duration
	RetryMaxDelay    time.Duration
}

// DefaultConfig returns the configuration matching the observed upstream schema.
func DefaultConfig() Config {
	return Config{
		PageQuery:        pageQuery,
		FallbackQuery:    fallbackQuery,
		PageRootKeys:     []string{"allSystemsV1", "allSystems"},
		FallbackRootKeys: []string{"allSystems", "systems"},
		MaxRecords:       DefaultMaxRecords,
		MaxPages:         DefaultMaxRecords + 1,
		RetryAttempts:    DefaultRetryAttempts,
		RetryDelay:       defaultRetryDelay,
		RetryMaxDelay:    defaultRetryMaxDelay,
	}
}

// Fetcher walks the paginated system listing.
type Fetcher struct {
	client Poster
	cfg    Config
}

// New creates a Fetcher. Zero-valued fields in cfg take their defaults.
func New(client Poster, cfg Config) *Fetcher {
	def := DefaultConfig()
	if cfg.PageQuery == "" {
		cfg.PageQuery = def.PageQuery
	}
	if cfg.FallbackQuery == "" {
		cfg.FallbackQuery = def.FallbackQuery
	}
	if len(cfg.PageRootKeys) == 0 {
		cfg.PageRootKeys = def.PageRootKeys
	}
	if len(cfg.FallbackRootKeys) == 0 {
		cfg.FallbackRootKeys = def.FallbackRootKeys
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = def.MaxRecords
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = cfg.MaxRecords + 1
	}
	// retry.Attempts(0) retries forever.
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = def.RetryMaxDelay
	}
	return &Fetcher{client: client, cfg: cfg}
}

// FetchAll returns every record the upstream yields, in fetch order, capped at
// MaxRecords.
//
// A page error with nothing accumulated triggers one non-paginated fallback
// query. A page error after some pages succeeded returns what was collected.
// Either way the loop ends at the first error.
func (f *Fetcher) FetchAll(ctx context.Context) ([]types.RawSystemRecord, error) {
	start := time.Now()
	var records []types.RawSystemRecord

	page := 1
	for ; page <= f.cfg.MaxPages; page++ {
		if len(records) >= f.cfg.MaxRecords {
			slog.InfoContext(ctx, "Record cap reached", "component", "fetcher", "page", page, "count", len(records))
			break
		}

		batch, err := f.fetchPage(ctx, page)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("fetch page %d: %w", page, ctxErr)
			}
			if len(records) > 0 {
				slog.WarnContext(ctx, "Page failed, returning partial results",
					"component", "fetcher", "page", page, "count", len(records), "error", err)
				break
			}
			slog.WarnContext(ctx, "Page failed with no data, trying fallback query",
				"component", "fetcher", "page", page, "error", err)
			fallback, fbErr := f.fetchFallback(ctx)
			if fbErr != nil {
				return nil, fmt.Errorf("page %d: %w; fallback: %w", page, err, fbErr)
			}
			records = fallback
			break
		}

		if len(batch) == 0 {
			slog.DebugContext(ctx, "Empty page, stopping", "component", "fetcher", "page", page)
			break
		}

		records = append(records, batch...)
		if len(records) > f.cfg.MaxRecords {
			records = records[:f.cfg.MaxRecords]
		}
		slog.DebugContext(ctx, "Fetched page", "component", "fetcher", "page", page, "page_size", len(batch), "count", len(records))
	}
	if page > f.cfg.MaxPages {
		slog.WarnContext(ctx, "Page ceiling reached before an empty page", "component", "fetcher", "max_pages", f.cfg.MaxPages, "count", len(records))
	}

	if dups := countDuplicates(records); dups > 0 {
		slog.WarnContext(ctx, "Upstream returned duplicate system ids", "component", "fetcher", "duplicates", dups, "count", len(records))
	}

	slog.InfoContext(ctx, "Fetched systems", "component", "fetcher", "count", len(records), "duration", time.Since(start))
	if records == nil {
		records = []types.RawSystemRecord{}
	}
	return records, nil
}

// fetchPage requests one page, retrying transient transport failures.
func (f *Fetcher) fetchPage(ctx context.Context, page int) ([]types.RawSystemRecord, error) {
	var batch []types.RawSystemRecord
	err := retry.Do(
		func() error {
			data, err := f.client.Post(ctx, f.cfg.PageQuery, map[string]any{"page": page})
			if err != nil {
				return err
			}
			batch, err = extractRecords(data, f.cfg.PageRootKeys)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(f.cfg.RetryAttempts)),
		retry.Delay(f.cfg.RetryDelay),
		retry.MaxDelay(f.cfg.RetryMaxDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(max(f.cfg.RetryDelay/4, time.Millisecond)),
		retry.OnRetry(func(n uint, err error) {
			slog.InfoContext(ctx, "Retry attempt", "component", "fetcher", "page", page,
				"attempt", n+1, "max_attempts", f.cfg.RetryAttempts, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
	)
	return batch, err
}

// fetchFallback issues the one-shot full listing query.
func (f *Fetcher) fetchFallback(ctx context.Context) ([]types.RawSystemRecord, error) {
	data, err := f.client.Post(ctx, f.cfg.FallbackQuery, nil)
	if err != nil {
		return nil, err
	}
	records, err := extractRecords(data, f.cfg.FallbackRootKeys)
	if err != nil {
		return nil, err
	}
	if len(records) > f.cfg.MaxRecords {
		records = records[:f.cfg.MaxRecords]
	}
	slog.InfoContext(ctx, "Fallback query succeeded", "component", "fetcher", "count", len(records))
	return records, nil
}

func isTransient(err error) bool {
	var te *graphql.TransportError
	return errors.As(err, &te) && te.Retryable()
}

func countDuplicates(records []types.RawSystemRecord) int {
	seen := make(map[string]struct{}, len(records))
	dups := 0
	for i := range records {
		if _, ok := seen[records[i].ID]; ok {
			dups++
			continue
		}
		seen[records[i].ID] = struct{}{}
	}
	return dups
}
