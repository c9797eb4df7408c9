// Package types contains shared data structures used across the lead service.
//
//nolint:revive // "types" is a standard Go package name for shared data structures
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Priority is the coarse outreach bucket derived from a lead score.
type Priority string

// Priority tiers.
const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Service plan states reported on a customer.
const (
	ServicePlanNone   = "none"
	ServicePlanActive = "active"
)

// RawSystemRecord is the upstream representation of one deployed solar system.
// Optional fields are nil when the upstream omitted them, sent null, or sent a
// value of the wrong type.
type RawSystemRecord struct {
	Name                  *string  `json:"name,omitempty"`
	CustomerName          *string  `json:"customerName,omitempty"`
	State                 *string  `json:"state,omitempty"`
	Location              *string  `json:"location,omitempty"`
	SystemNo              *string  `json:"systemNo,omitempty"`
	UpdatedAt             *string  `json:"updatedAt,omitempty"`
	PMDate                *string  `json:"pmDate,omitempty"`
	NOCServicesExpiryDate *string  `json:"nocServicesExpiryDate,omitempty"`
	MACAddress            *string  `json:"macAddress,omitempty"`
	PanelsCapacity        *float64 `json:"panelsCapacity,omitempty"`
	InvertersCapacity     *float64 `json:"invertersCapacity,omitempty"`
	BatteriesCapacity     *float64 `json:"batteriesCapacity,omitempty"`
	BackupInHours         *float64 `json:"backupInHours,omitempty"`
	InvertersCount        *int     `json:"invertersCount,omitempty"`
	BatteriesCount        *int     `json:"batteriesCount,omitempty"`
	OpenAlertsCount       *int     `json:"openAlertsCount,omitempty"`
	ID                    string   `json:"id"`
	Status                string   `json:"status,omitempty"`
	DeployedAt            string   `json:"deployedAt,omitempty"`
}

// UnmarshalJSON decodes a record field by field so that one malformed optional
// value degrades to nil instead of failing the whole record.
func (r *RawSystemRecord) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("system record is not an object: %w", err)
	}

	*r = RawSystemRecord{
		ID:                    derefString(looseString(fields["id"])),
		Status:                derefString(looseString(fields["status"])),
		DeployedAt:            derefString(looseString(fields["deployedAt"])),
		Name:                  looseString(fields["name"]),
		CustomerName:          looseString(fields["customerName"]),
		State:                 looseString(fields["state"]),
		Location:              looseString(fields["location"]),
		SystemNo:              looseString(fields["systemNo"]),
		UpdatedAt:             looseString(fields["updatedAt"]),
		PMDate:                looseString(fields["pmDate"]),
		NOCServicesExpiryDate: looseString(fields["nocServicesExpiryDate"]),
		MACAddress:            looseString(fields["macAddress"]),
		PanelsCapacity:        looseFloat(fields["panelsCapacity"]),
		InvertersCapacity:     looseFloat(fields["invertersCapacity"]),
		BatteriesCapacity:     looseFloat(fields["batteriesCapacity"]),
		BackupInHours:         looseFloat(fields["backupInHours"]),
		InvertersCount:        looseInt(fields["invertersCount"]),
		BatteriesCount:        looseInt(fields["batteriesCount"]),
		OpenAlertsCount:       looseInt(fields["openAlertsCount"]),
	}
	return nil
}

// Customer is the customer-facing view embedded in a scored lead.
type Customer struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Email             string  `json:"email"`
	ServicePlanStatus string  `json:"servicePlanStatus"`
	LastServiceDate   string  `json:"lastServiceDate"`
	City              string  `json:"city"`
	SystemSizeKw      float64 `json:"systemSizeKw"`
	SystemAgeYears    float64 `json:"systemAgeYears"`
	HealthScore       int     `json:"healthScore"`
}

// Breakdown holds the weighted sub-scores of a lead, each floored independently.
type Breakdown struct {
	AgeWeight        int `json:"ageWeight"`
	HealthWeight     int `json:"healthWeight"`
	ValueWeight      int `json:"valueWeight"`
	StatusWeight     int `json:"statusWeight"`
	EngagementWeight int `json:"engagementWeight"`
}

// ScoredLead is the scoring result for one system. It is never mutated after
// it is produced.
type ScoredLead struct {
	Priority          Priority  `json:"priority"`
	RecommendedAction string    `json:"recommendedAction"`
	Customer          Customer  `json:"customer"`
	Breakdown         Breakdown `json:"breakdown"`
	Score             int       `json:"score"`
	PotentialRevenue  int       `json:"potentialRevenue"`
}

// Summary aggregates a lead list for dashboard cards.
type Summary struct {
	CachedAt              time.Time `json:"cachedAt"`
	TotalSystems          int       `json:"totalSystems"`
	HighPriority          int       `json:"highPriority"`
	MediumPriority        int       `json:"mediumPriority"`
	LowPriority           int       `json:"lowPriority"`
	TotalPotentialRevenue int       `json:"totalPotentialRevenue"`
	AverageScore          int       `json:"averageScore"`
	WithoutServicePlan    int       `json:"withoutServicePlan"`
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// looseString returns strings as-is and the literal JSON text of any other
// non-null value, so presence checks keep working on odd upstream types.
func looseString(raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	s = string(bytes.TrimSpace(raw))
	return &s
}

func looseFloat(raw json.RawMessage) *float64 {
	if isNull(raw) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseFloat(s, 64); err == nil {
			return &parsed
		}
	}
	return nil
}

func looseInt(raw json.RawMessage) *int {
	f := looseFloat(raw)
	if f == nil {
		return nil
	}
	var n int
	switch {
	case math.IsNaN(*f):
		return nil
	case *f >= math.MaxInt:
		n = math.MaxInt
	case *f <= math.MinInt:
		n = math.MinInt
	default:
		n = int(*f)
	}
	return &n
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
