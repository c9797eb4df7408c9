package cache

import (
	"context"
	"time"

	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/types"
)

// Source produces the raw system records for a refresh.
type Source interface {
	FetchAll(ctx context.Context) ([]types.RawSystemRecord, error)
}

// Scorer turns raw records into leads as of now.
type Scorer interface {
	ScoreAll(records []types.RawSystemRecord, now time.Time) []types.ScoredLead
}

// Clock abstracts time for freshness checks.
type Clock interface {
	Now() time.Time
}

// Observer receives cache events. Implementations must be safe for concurrent use.
type Observer interface {
	CacheHit()
	CacheMiss()
	RefreshSucceeded(records int, d time.Duration)
	RefreshFailed(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type nopObserver struct{}

func (nopObserver) CacheHit()                           {}
func (nopObserver) CacheMiss()                          {}
func (nopObserver) RefreshSucceeded(int, time.Duration) {}
func (nopObserver) RefreshFailed(time.Duration)         {}
