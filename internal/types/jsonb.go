package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions. These ensure the JSONB column types
// implement both sql.Scanner and driver.Valuer, catching signature drift at
// compile time rather than at runtime. Scan is on pointer receivers; Value
// is on value receivers.
var (
	_ sql.Scanner   = (*SubscriptionParams)(nil)
	_ driver.Valuer = SubscriptionParams{}
	_ sql.Scanner   = (*RunStats)(nil)
	_ driver.Valuer = RunStats{}
)

// scanJSONB scans a JSONB database value into a Go pointer. It handles nil
// values, []byte, and string representations from different drivers.
func scanJSONB(dest any, value any) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (p *SubscriptionParams) Scan(value any) error {
	return scanJSONB(p, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (p SubscriptionParams) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (s *RunStats) Scan(value any) error {
	return scanJSONB(s, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (s RunStats) Value() (driver.Value, error) {
	return json.Marshal(s)
}
