package syncer

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// rowString extracts a non-empty string field from a wire row.
func rowString(row Row, key string) string {
	value, ok := row[key]
	if !ok {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(typed, 10)
	case int:
		return strconv.Itoa(typed)
	default:
		return ""
	}
}

// rowInt64 extracts an integer field from a wire row. JSON decoding yields
// float64 for numbers, so that is the common case.
func rowInt64(row Row, key string) (int64, bool) {
	value, ok := row[key]
	if !ok {
		return 0, false
	}
	switch typed := value.(type) {
	case float64:
		return int64(typed), true
	case int64:
		return typed, true
	case int:
		return int64(typed), true
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// rowVersion reads the submitted version, defaulting to 1 when absent so a
// freshly created client row without an explicit counter still inserts.
func rowVersion(row Row) int64 {
	if version, ok := rowInt64(row, columnVersion); ok {
		return version
	}
	return 1
}

// normalizeRow converts wire representations into storable values: RFC3339
// timestamp strings become time.Time and the version counter becomes an
// integer. The input map is not mutated.
func normalizeRow(row Row) Row {
	normalized := make(Row, len(row))
	for key, value := range row {
		normalized[key] = value
	}
	for _, key := range []string{columnCreatedAt, columnUpdatedAt} {
		if raw, ok := normalized[key].(string); ok {
			if parsed, err := parseTimestamp(raw); err == nil {
				normalized[key] = parsed
			}
		}
	}
	if _, ok := normalized[columnVersion]; ok {
		normalized[columnVersion] = rowVersion(normalized)
	}
	return normalized
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02 15:04:05.999999999-07:00", raw)
}

// updateAssignments builds the column assignments for overwriting an
// existing row: the full client payload minus identity and creation
// metadata, with sync bookkeeping stamped by the server. The company id is
// never taken from the payload.
func updateAssignments(row Row, deviceID string) map[string]any {
	assignments := make(map[string]any, len(row)+2)
	for key, value := range normalizeRow(row) {
		switch key {
		case columnID, columnCreatedAt, columnCompanyID:
			continue
		}
		assignments[key] = value
	}
	assignments[columnSyncStatus] = StatusSynced
	assignments[columnDeviceID] = deviceID
	return assignments
}

// insertRecord builds the column values for a brand-new row: the client
// payload with server-stamped company, device and sync status, and creation
// metadata defaulted when the client omitted it.
func insertRecord(row Row, companyID, deviceID string, companyScoped bool, now time.Time) map[string]any {
	record := normalizeRow(row)
	delete(record, columnCompanyID)
	if companyScoped {
		record[columnCompanyID] = companyID
	}
	record[columnSyncStatus] = StatusSynced
	record[columnDeviceID] = deviceID
	if _, ok := record[columnVersion]; !ok {
		record[columnVersion] = int64(1)
	}
	if _, ok := record[columnCreatedAt]; !ok {
		record[columnCreatedAt] = now
	}
	if _, ok := record[columnUpdatedAt]; !ok {
		record[columnUpdatedAt] = now
	}
	return record
}
