package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// WriteCSV renders ledger entries for a compliance export.
func WriteCSV(rows []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"occurred_at", "decision_id", "actor_id", "action", "resource_type", "resource_id", "decision", "reason", "source", "context"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, row := range rows {
		contextJSON := ""
		if len(row.Context) > 0 {
			raw, err := json.Marshal(row.Context)
			if err != nil {
				return nil, fmt.Errorf("audit: marshal context: %w", err)
			}
			contextJSON = string(raw)
		}
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			row.DecisionID.String(),
			strconv.FormatInt(row.ActorID, 10),
			row.Action,
			row.ResourceType,
			row.ResourceID,
			row.Decision,
			row.Reason,
			row.Source,
			contextJSON,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("audit: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
