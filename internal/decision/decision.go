// Package decision maps a fraud probability to an operator-facing decision.
package decision

import (
	"github.com/opensource-finance/fraudscore/internal/domain"
)

// Decide returns BLOCK when p >= block, REVIEW when p >= review, ALLOW otherwise.
// A probability equal to a threshold lands in the more severe bucket.
func Decide(p float64, policy domain.ThresholdPolicy) domain.Decision {
	if p >= policy.Block {
		return domain.DecisionBlock
	} else if p >= policy.Review {
		return domain.DecisionReview
	}
	return domain.DecisionAllow
}

// ShouldEscalate reports whether a decision needs action beyond allowing the transaction.
func ShouldEscalate(d domain.Decision) bool {
	return d.Severity() >= domain.DecisionReview.Severity()
}
