// Package models defines the alarmdesk domain entities shared by the
// store, the sync engine and the HTTP modules.
package models

import "fmt"

// ValidationError reports malformed create or update input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}
