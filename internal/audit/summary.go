package audit

import (
	"sort"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// ReviewQueueSize is the number of REVIEW rows surfaced for human follow-up.
const ReviewQueueSize = 10

// Summary is the set of aggregates the monitoring dashboard renders.
type Summary struct {
	Window          int                     `json:"window"`
	Total           int                     `json:"total"`
	Counts          map[domain.Decision]int `json:"counts"`
	MeanProbability float64                 `json:"mean_probability"`
	ReviewQueue     []domain.AuditRecord    `json:"review_queue"`
}

// Summarize aggregates the last window records. A window <= 0 covers the whole log.
func Summarize(records []domain.AuditRecord, window int) Summary {
	if window > 0 && len(records) > window {
		records = records[len(records)-window:]
	}

	s := Summary{
		Window:      window,
		Total:       len(records),
		Counts:      make(map[domain.Decision]int, len(domain.Decisions)),
		ReviewQueue: []domain.AuditRecord{},
	}
	for _, d := range domain.Decisions {
		s.Counts[d] = 0
	}

	var sum float64
	for _, rec := range records {
		s.Counts[rec.Decision]++
		sum += rec.Probability
		if rec.Decision == domain.DecisionReview {
			s.ReviewQueue = append(s.ReviewQueue, rec)
		}
	}
	if len(records) > 0 {
		s.MeanProbability = domain.RoundProbability(sum / float64(len(records)))
	}

	sort.SliceStable(s.ReviewQueue, func(i, j int) bool {
		return s.ReviewQueue[i].Probability > s.ReviewQueue[j].Probability
	})
	if len(s.ReviewQueue) > ReviewQueueSize {
		s.ReviewQueue = s.ReviewQueue[:ReviewQueueSize]
	}

	return s
}
