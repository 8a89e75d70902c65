package decision

import (
	"math"
	"testing"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

func TestDecide(t *testing.T) {
	policy := domain.ThresholdPolicy{Review: 0.90, Block: 0.993}

	tests := []struct {
		name string
		p    float64
		want domain.Decision
	}{
		{"Zero", 0.0, domain.DecisionAllow},
		{"Low", 0.5, domain.DecisionAllow},
		{"JustBelowReview", math.Nextafter(0.90, 0), domain.DecisionAllow},
		{"ExactlyReview", 0.90, domain.DecisionReview},
		{"Review", 0.95, domain.DecisionReview},
		{"JustBelowBlock", math.Nextafter(0.993, 0), domain.DecisionReview},
		{"ExactlyBlock", 0.993, domain.DecisionBlock},
		{"One", 1.0, domain.DecisionBlock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.p, policy); got != tt.want {
				t.Errorf("Decide(%v) = %s, want %s", tt.p, got, tt.want)
			}
		})
	}
}

func TestDecideSweep(t *testing.T) {
	policy := domain.ThresholdPolicy{Review: 0.3, Block: 0.7}

	for i := 0; i <= 1000; i++ {
		p := float64(i) / 1000
		got := Decide(p, policy)

		var want domain.Decision
		switch {
		case p >= policy.Block:
			want = domain.DecisionBlock
		case p >= policy.Review:
			want = domain.DecisionReview
		default:
			want = domain.DecisionAllow
		}
		if got != want {
			t.Fatalf("Decide(%v) = %s, want %s", p, got, want)
		}

		if again := Decide(p, policy); again != got {
			t.Fatalf("Decide(%v) not stable: %s then %s", p, got, again)
		}
	}
}

func TestDecideMonotonic(t *testing.T) {
	policy := domain.DefaultThresholdPolicy()

	prev := Decide(0, policy)
	for i := 1; i <= 10000; i++ {
		cur := Decide(float64(i)/10000, policy)
		if cur.Severity() < prev.Severity() {
			t.Fatalf("severity decreased at p=%v: %s -> %s", float64(i)/10000, prev, cur)
		}
		prev = cur
	}
}

func TestShouldEscalate(t *testing.T) {
	if ShouldEscalate(domain.DecisionAllow) {
		t.Error("ALLOW should not escalate")
	}
	if !ShouldEscalate(domain.DecisionReview) {
		t.Error("REVIEW should escalate")
	}
	if !ShouldEscalate(domain.DecisionBlock) {
		t.Error("BLOCK should escalate")
	}
}
