package quality

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalize(t *testing.T) {
	report := Report{
		RawRecords: 10,
		Accepted:   7,
		Quarantined: map[string]int{
			"missing_required_field": 2,
			"invalid_timestamp":      1,
		},
	}
	report.Finalize()

	assert.Equal(t, 3, report.QuarantinedTotal)
	assert.InDelta(t, 0.3, report.RejectRate, 1e-9)
}

func TestFinalizeEmptyBatch(t *testing.T) {
	var report Report
	report.Finalize()
	assert.Zero(t, report.QuarantinedTotal)
	assert.Zero(t, report.RejectRate)
}

func TestWriteCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "data_quality_report.json")
	report := Report{
		RunID:       "01J0TEST",
		RunUTC:      NowUTC(),
		LoadPolicy:  "atomic",
		RawRecords:  2,
		Accepted:    2,
		FactsLoaded: 2,
		Quarantined: map[string]int{},
	}
	report.Finalize()
	require.NoError(t, Write(path, report))

	payload, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, report.RunID, decoded.RunID)
	assert.Equal(t, report.RawRecords, decoded.RawRecords)
	assert.Equal(t, "atomic", decoded.LoadPolicy)
}
