package quality

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Report is the batch summary written after every run. Partial success
// (some records loaded, some quarantined) is the expected common case and
// is still a successful run.
type Report struct {
	RunID      string `json:"run_id"`
	RunUTC     string `json:"run_utc"`
	LoadPolicy string `json:"load_policy"`

	RawRecords  int `json:"raw_records"`
	Accepted    int `json:"accepted"`
	Duplicates  int `json:"dedup_removed"`
	FactsLoaded int `json:"facts_loaded"`
	FactsSkipped int `json:"facts_skipped"`

	Quarantined      map[string]int `json:"quarantined_by_reason"`
	QuarantinedTotal int            `json:"quarantined_total"`
	RejectRate       float64        `json:"reject_rate"`

	LoaderWarnings []string `json:"loader_warnings,omitempty"`

	DurationSeconds float64 `json:"duration_seconds"`
}

// NowUTC returns the run timestamp in the report's wire format.
func NowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Finalize fills the totals derived from the per-reason counts.
func (r *Report) Finalize() {
	r.QuarantinedTotal = 0
	for _, n := range r.Quarantined {
		r.QuarantinedTotal += n
	}
	if r.RawRecords > 0 {
		r.RejectRate = float64(r.QuarantinedTotal) / float64(r.RawRecords)
	}
}

// Write persists the report as indented JSON.
func Write(path string, report Report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode quality report: %w", err)
	}
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}
