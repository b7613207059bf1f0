package audit

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// ExportJSONL writes records matching the query to w, one JSON object
// per line, in append order.
func ExportJSONL(store Store, q Query, w io.Writer) (int, error) {
	records, err := store.List(q)
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}

	enc := json.NewEncoder(w)
	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return i, fmt.Errorf("encode record %s: %w", r.ID, err)
		}
	}
	return len(records), nil
}

// ReadJSONL parses records previously written by ExportJSONL.
func ReadJSONL(r io.Reader) ([]*models.ExecutionRecord, error) {
	dec := json.NewDecoder(r)
	var out []*models.ExecutionRecord
	for {
		var rec models.ExecutionRecord
		if err := dec.Decode(&rec); err == io.EOF {
			return out, nil
		} else if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(out), err)
		}
		out = append(out, &rec)
	}
}
