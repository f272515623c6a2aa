package ingest

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/smallbiznis/starmart/internal/pipeline"
)

// ReadEvents reads behavioral events, one JSON object per line. Lines that
// fail to decode come back as malformed raw records so the validator can
// quarantine them instead of the batch aborting.
func ReadEvents(path string) ([]pipeline.RawRecord, error) {
	return readJSONL(path, pipeline.KindEvent)
}

// ReadSales reads international-sale records, one JSON object per line.
func ReadSales(path string) ([]pipeline.RawRecord, error) {
	return readJSONL(path, pipeline.KindSale)
}

func readJSONL(path string, kind pipeline.Kind) ([]pipeline.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s feed: %w", kind, err)
	}
	defer f.Close()

	var records []pipeline.RawRecord
	seq := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields, ok := decodeLine(line)
		records = append(records, pipeline.RawRecord{
			Kind:      kind,
			Seq:       seq,
			Fields:    fields,
			Malformed: !ok,
		})
		seq++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s feed: %w", kind, err)
	}
	return records, nil
}

// decodeLine decodes with UseNumber so monetary values keep their source
// precision until the enricher coerces them to decimals.
func decodeLine(line string) (map[string]any, bool) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return map[string]any{"_raw": line}, false
	}
	return fields, true
}

// ReadUsers reads the delimited user reference feed. The first row is the
// header; each following row becomes a raw record keyed by header names.
func ReadUsers(path string) ([]pipeline.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open user feed: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read user feed header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []pipeline.RawRecord
	seq := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			records = append(records, pipeline.RawRecord{
				Kind:      pipeline.KindUser,
				Seq:       seq,
				Fields:    map[string]any{"_raw": strings.Join(row, ",")},
				Malformed: true,
			})
			seq++
			continue
		}

		fields := make(map[string]any, len(header))
		for i, col := range header {
			if i >= len(row) {
				break
			}
			value := strings.TrimSpace(row[i])
			if value == "" {
				continue
			}
			fields[col] = value
		}
		records = append(records, pipeline.RawRecord{Kind: pipeline.KindUser, Seq: seq, Fields: fields})
		seq++
	}
	return records, nil
}
