package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Value stores a task as a JSONB document.
func (t Task) Value() (driver.Value, error) {
	return json.Marshal(t)
}

// Scan loads a task from a JSONB column.
func (t *Task) Scan(value interface{}) error {
	if value == nil {
		return fmt.Errorf("task document is null")
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported task document type %T", value)
	}
	return json.Unmarshal(raw, t)
}
