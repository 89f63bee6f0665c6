package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// StringList stores a list of strings as a single comma-joined text
// column. Empty lists are stored as an empty string.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	return strings.Join(l, ","), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
	if s == "" {
		*l = nil
		return nil
	}
	*l = strings.Split(s, ",")
	return nil
}

// Contains reports whether the list holds the given value.
func (l StringList) Contains(value string) bool {
	for _, item := range l {
		if item == value {
			return true
		}
	}
	return false
}
