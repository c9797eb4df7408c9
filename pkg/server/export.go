package server

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jszwec/csvutil"

	"github.com/FarrukhTahir5/Lead-Potential-Dashboard/pkg/types"
)

const exportFilename = "lead_potential_report.csv"

// exportRow is one CSV line. Tags give the column headers in output order.
type exportRow struct {
	ID                string  `csv:"ID"`
	Name              string  `csv:"Name"`
	City              string  `csv:"City"`
	Priority          string  `csv:"Priority"`
	Score             int     `csv:"Score"`
	SystemSizeKw      float64 `csv:"System Size (kW)"`
	SystemAgeYears    float64 `csv:"Age (Years)"`
	HealthScore       int     `csv:"Health Score"`
	Status            string  `csv:"Status"`
	PotentialRevenue  int     `csv:"Potential Revenue (PKR)"`
	RecommendedAction string  `csv:"Recommended Action"`
}

func newExportRow(lead *types.ScoredLead) exportRow {
	return exportRow{
		ID:                lead.Customer.ID,
		Name:              lead.Customer.Name,
		City:              lead.Customer.City,
		Priority:          string(lead.Priority),
		Score:             lead.Score,
		SystemSizeKw:      lead.Customer.SystemSizeKw,
		SystemAgeYears:    lead.Customer.SystemAgeYears,
		HealthScore:       lead.Customer.HealthScore,
		Status:            lead.Customer.ServicePlanStatus,
		PotentialRevenue:  lead.PotentialRevenue,
		RecommendedAction: lead.RecommendedAction,
	}
}

// handleExport serves whatever is cached, however old. Only an empty cache
// triggers a fetch.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	entry, err := s.store.Cached(r.Context())
	if err != nil {
		s.writeFailure(w, r, "export leads", err)
		return
	}

	body, err := encodeCSV(entry.Leads)
	if err != nil {
		s.writeFailure(w, r, "export leads", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+exportFilename)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		slog.WarnContext(r.Context(), "Failed to write export", "component", "server", "error", err)
	}
}

// encodeCSV renders the header row and one row per lead.
func encodeCSV(leads []types.ScoredLead) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	enc := csvutil.NewEncoder(cw)
	enc.AutoHeader = false

	if err := enc.EncodeHeader(exportRow{}); err != nil {
		return nil, fmt.Errorf("encode csv header: %w", err)
	}
	for i := range leads {
		if err := enc.Encode(newExportRow(&leads[i])); err != nil {
			return nil, fmt.Errorf("encode csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
