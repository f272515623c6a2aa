package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// QuarantineSink appends rejected records, in input order, as one JSON
// object per line carrying the original payload plus its reason.
type QuarantineSink struct {
	f      *os.File
	counts map[string]int
}

func NewQuarantineSink(path string) (*QuarantineSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open quarantine sink: %w", err)
	}
	return &QuarantineSink{f: f, counts: make(map[string]int)}, nil
}

// Reject writes one quarantined record. The original fields are preserved
// verbatim for auditability; only "reason" is added.
func (s *QuarantineSink) Reject(q Quarantined) error {
	payload := make(map[string]any, len(q.Raw.Fields)+1)
	for k, v := range q.Raw.Fields {
		payload[k] = v
	}
	payload["reason"] = q.Reason

	line, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode quarantined record: %w", err)
	}
	if _, err := s.f.Write(append(line, '\n')); err != nil {
		return err
	}
	s.counts[q.Reason]++
	return nil
}

// Counts returns the number of rejected records per reason.
func (s *QuarantineSink) Counts() map[string]int {
	out := make(map[string]int, len(s.counts))
	for reason, n := range s.counts {
		out[reason] = n
	}
	return out
}

// Total returns the number of rejected records across all reasons.
func (s *QuarantineSink) Total() int {
	total := 0
	for _, n := range s.counts {
		total += n
	}
	return total
}

func (s *QuarantineSink) Close() error {
	return s.f.Close()
}
