// Package stats keeps per-decision rates over a fixed window.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// DefaultWindow is used when no window is configured.
const DefaultWindow = time.Hour

// Service counts decisions in the cache and, when a repository is
// configured, reads mirrored totals for the same window.
type Service struct {
	cache  domain.Cache
	repo   domain.Repository
	window time.Duration
	now    func() time.Time
}

// NewService creates a stats service. repo may be nil.
func NewService(cache domain.Cache, repo domain.Repository, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{
		cache:  cache,
		repo:   repo,
		window: window,
		now:    time.Now,
	}
}

// Window returns the counting window.
func (s *Service) Window() time.Duration {
	return s.window
}

// Record increments the counter for d.
func (s *Service) Record(ctx context.Context, d domain.Decision) (int64, error) {
	if !d.Valid() {
		return 0, fmt.Errorf("unknown decision %q", d)
	}
	n, err := s.cache.IncrementCounter(ctx, counterKey(d), s.window)
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s counter: %w", d, err)
	}
	return n, nil
}

// Snapshot is the payload of the stats endpoint.
type Snapshot struct {
	Window   string                    `json:"window"`
	Counts   map[domain.Decision]int64 `json:"counts"`
	Total    int64                     `json:"total"`
	Mirrored map[domain.Decision]int64 `json:"mirrored,omitempty"`
}

// Snapshot reads every decision counter. Mirrored totals are included when
// a repository is configured; a repository failure is returned as an error.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Window: s.window.String(),
		Counts: make(map[domain.Decision]int64, len(domain.Decisions)),
	}

	for _, d := range domain.Decisions {
		n, err := s.cache.Counter(ctx, counterKey(d))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s counter: %w", d, err)
		}
		snap.Counts[d] = n
		snap.Total += n
	}

	if s.repo != nil {
		mirrored, err := s.repo.CountByDecision(ctx, s.now().Add(-s.window))
		if err != nil {
			return nil, fmt.Errorf("failed to count mirrored records: %w", err)
		}
		snap.Mirrored = mirrored
	}

	return snap, nil
}

func counterKey(d domain.Decision) string {
	return "decision:" + string(d)
}
