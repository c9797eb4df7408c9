// Package scoring derives service-lead priority scores from raw system records.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/types"
)

// Scoring weights. Engagement has no upstream input yet and stays at zero.
const (
	ageWeight        = 0.40
	healthWeight     = 0.35
	valueWeight      = 0.15
	statusWeight     = 0.10
	engagementWeight = 0
)

// Thresholds and business constants.
const (
	ageSaturationYears   = 5.0
	valueSaturationKw    = 20.0
	defaultCapacityKw    = 5.0
	disconnectedHealth   = 50
	alertPenalty         = 15
	minAlertHealth       = 60
	highPriorityScore    = 65
	mediumPriorityScore  = 35
	premiumCapacityKw    = 12.0
	premiumAnnualFee     = 120000
	basicAnnualFee       = 55000
	revenueYears         = 3
	daysPerYear          = 365.25
	emailIDPrefixLength  = 8
	defaultEmailDomain   = "skyelectric.pk"
	defaultDisplayName   = "Authorized User"
	defaultCity          = "Unknown"
	defaultLastService   = "Check Records"
	actionHighPriority   = "Priority System Optimization"
	actionStandard       = "Standard Maintenance Outreach"
	statusDisconnected   = "disconnected"
	fullScore            = 100
	deployedAtDateLayout = "2006-01-02"
)

// Scorer maps raw records to scored leads.
type Scorer struct {
	emailDomain string
}

// New creates a Scorer. An empty emailDomain uses the default contact domain.
func New(emailDomain string) *Scorer {
	if emailDomain == "" {
		emailDomain = defaultEmailDomain
	}
	return &Scorer{emailDomain: emailDomain}
}

// ScoreAll scores records in order.
func (s *Scorer) ScoreAll(records []types.RawSystemRecord, now time.Time) []types.ScoredLead {
	leads := make([]types.ScoredLead, len(records))
	for i := range records {
		leads[i] = s.Score(records[i], now)
	}
	return leads
}

// Score computes the lead for one record as of now. It never fails: missing or
// malformed optional fields fall back to their defaults.
func (s *Scorer) Score(rec types.RawSystemRecord, now time.Time) types.ScoredLead {
	capacity := resolveCapacity(rec)
	ageYears := SystemAgeYears(rec.DeployedAt, now)
	hasPlan := rec.NOCServicesExpiryDate != nil

	agePoints := ageScore(ageYears)
	health := HealthScore(rec.Status, rec.OpenAlertsCount)
	healthPotential := float64(fullScore - health)
	valuePoints := valueScore(capacity)
	statusPoints := 0.0
	if !hasPlan {
		statusPoints = fullScore
	}

	breakdown := types.Breakdown{
		AgeWeight:        int(agePoints * ageWeight),
		HealthWeight:     int(healthPotential * healthWeight),
		ValueWeight:      int(valuePoints * valueWeight),
		StatusWeight:     int(statusPoints * statusWeight),
		EngagementWeight: engagementWeight,
	}

	// The sum is floored once, so it can exceed the sum of the breakdown entries.
	score := int(agePoints*ageWeight + healthPotential*healthWeight + valuePoints*valueWeight + statusPoints*statusWeight)
	priority := PriorityFor(score)

	action := actionStandard
	if priority == types.PriorityHigh {
		action = actionHighPriority
	}

	planStatus := types.ServicePlanNone
	if hasPlan {
		planStatus = types.ServicePlanActive
	}

	return types.ScoredLead{
		Customer: types.Customer{
			ID:                rec.ID,
			Name:              resolveDisplayName(rec),
			Email:             s.contactEmail(rec.ID),
			SystemSizeKw:      capacity,
			SystemAgeYears:    ageYears,
			HealthScore:       health,
			ServicePlanStatus: planStatus,
			LastServiceDate:   firstNonEmpty(defaultLastService, rec.PMDate),
			City:              resolveCity(rec.Location),
		},
		Score:             score,
		Priority:          priority,
		Breakdown:         breakdown,
		PotentialRevenue:  PotentialRevenue(capacity, hasPlan),
		RecommendedAction: action,
	}
}

// PriorityFor buckets a final score: [0,35) Low, [35,65) Medium, [65,100] High.
func PriorityFor(score int) types.Priority {
	switch {
	case score >= highPriorityScore:
		return types.PriorityHigh
	case score >= mediumPriorityScore:
		return types.PriorityMedium
	default:
		return types.PriorityLow
	}
}

// HealthScore is 50 for disconnected systems, otherwise 100 less 15 per open
// alert with a floor of 60. Disconnection wins over alerts.
func HealthScore(status string, openAlerts *int) int {
	if strings.EqualFold(status, statusDisconnected) {
		return disconnectedHealth
	}
	if openAlerts != nil && *openAlerts > 0 {
		if *openAlerts > (fullScore-minAlertHealth)/alertPenalty {
			return minAlertHealth
		}
		return max(fullScore-*openAlerts*alertPenalty, minAlertHealth)
	}
	return fullScore
}

// SystemAgeYears returns whole days since the date part of deployedAt divided
// by 365.25, floored at zero and rounded to one decimal. Unparseable input is 0.
func SystemAgeYears(deployedAt string, now time.Time) float64 {
	deployed, ok := parseDeployedDate(deployedAt)
	if !ok {
		return 0
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := math.Floor(today.Sub(deployed).Hours() / 24)
	years := math.Max(days/daysPerYear, 0)
	return math.Round(years*10) / 10
}

// ageScore saturates at 100 for systems five or more years old.
func ageScore(years float64) float64 {
	return math.Min(years/ageSaturationYears, 1) * fullScore
}

// valueScore saturates at 100 for systems of 20 kW or more.
func valueScore(capacityKw float64) float64 {
	return math.Min(capacityKw/valueSaturationKw, 1) * fullScore
}

// PotentialRevenue is three years of the annual fee for a new plan, or three
// years at half rate (integer division) as an upsell for existing plans.
func PotentialRevenue(capacityKw float64, hasPlan bool) int {
	fee := basicAnnualFee
	if capacityKw > premiumCapacityKw {
		fee = premiumAnnualFee
	}
	if hasPlan {
		return (fee / 2) * revenueYears
	}
	return fee * revenueYears
}

func parseDeployedDate(deployedAt string) (time.Time, bool) {
	s := strings.TrimSpace(deployedAt)
	if s == "" {
		return time.Time{}, false
	}
	if i := strings.IndexAny(s, "T "); i != -1 {
		s = s[:i]
	}
	d, err := time.Parse(deployedAtDateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

func resolveDisplayName(rec types.RawSystemRecord) string {
	return firstNonEmpty(defaultDisplayName, rec.CustomerName, rec.Name)
}

// resolveCapacity takes the first positive capacity in panels, inverters,
// batteries order.
func resolveCapacity(rec types.RawSystemRecord) float64 {
	for _, c := range []*float64{rec.PanelsCapacity, rec.InvertersCapacity, rec.BatteriesCapacity} {
		if c != nil && *c > 0 && !math.IsInf(*c, 0) && !math.IsNaN(*c) {
			return *c
		}
	}
	return defaultCapacityKw
}

func resolveCity(location *string) string {
	if location == nil || *location == "" {
		return defaultCity
	}
	city, _, _ := strings.Cut(*location, ",")
	return strings.TrimSpace(city)
}

func (s *Scorer) contactEmail(id string) string {
	prefix := id
	if r := []rune(id); len(r) > emailIDPrefixLength {
		prefix = string(r[:emailIDPrefixLength])
	}
	return "service_" + prefix + "@" + s.emailDomain
}

func firstNonEmpty(fallback string, candidates ...*string) string {
	for _, c := range candidates {
		if c != nil && *c != "" {
			return *c
		}
	}
	return fallback
}
