package scoring

import (
	"math"
	"time"

	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/types"
)

// Summarize aggregates leads for the dashboard summary cards.
func Summarize(leads []types.ScoredLead, cachedAt time.Time) types.Summary {
	sum := types.Summary{
		CachedAt:     cachedAt,
		TotalSystems: len(leads),
	}

	totalScore := 0
	for i := range leads {
		lead := &leads[i]
		switch lead.Priority {
		case types.PriorityHigh:
			sum.HighPriority++
		case types.PriorityMedium:
			sum.MediumPriority++
		default:
			sum.LowPriority++
		}
		if lead.Customer.ServicePlanStatus == types.ServicePlanNone {
			sum.WithoutServicePlan++
		}
		sum.TotalPotentialRevenue += lead.PotentialRevenue
		totalScore += lead.Score
	}

	if len(leads) > 0 {
		sum.AverageScore = int(math.Floor(float64(totalScore)/float64(len(leads)) + 0.5))
	}
	return sum
}
