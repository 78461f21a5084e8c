package models

import (
	"strings"
	"time"
)

// AlarmType groups alarms in the dashboard.
type AlarmType string

const (
	AlarmCritical AlarmType = "critical"
	AlarmWarning  AlarmType = "warning"
	AlarmInfo     AlarmType = "info"
)

// Valid reports whether t is a known alarm type.
func (t AlarmType) Valid() bool {
	switch t {
	case AlarmCritical, AlarmWarning, AlarmInfo:
		return true
	}
	return false
}

// Severity drives escalation.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// AlarmStatus is the alarm lifecycle. Resolved is terminal for sync.
type AlarmStatus string

const (
	AlarmActive       AlarmStatus = "active"
	AlarmAcknowledged AlarmStatus = "acknowledged"
	AlarmResolved     AlarmStatus = "resolved"
)

// Valid reports whether s is a known alarm status.
func (s AlarmStatus) Valid() bool {
	switch s {
	case AlarmActive, AlarmAcknowledged, AlarmResolved:
		return true
	}
	return false
}

// Alarm is a Zabbix event mirrored locally and attached to equipment.
type Alarm struct {
	ID              int64       `json:"id"`
	ZabbixEventID   string      `json:"zabbix_event_id"`
	EquipmentID     int64       `json:"equipment_id"`
	AlarmType       AlarmType   `json:"alarm_type"`
	Severity        Severity    `json:"severity"`
	Title           string      `json:"title"`
	Description     string      `json:"description,omitempty"`
	Status          AlarmStatus `json:"status"`
	AcknowledgedBy  *string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time  `json:"acknowledged_at,omitempty"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       *time.Time  `json:"updated_at,omitempty"`
	ZabbixTriggerID *string     `json:"zabbix_trigger_id,omitempty"`
	ZabbixItemID    *string     `json:"zabbix_item_id,omitempty"`
	ZabbixHostID    *string     `json:"zabbix_host_id,omitempty"`
}

// Validate checks the fields required for manual creation and fills defaults.
func (a *Alarm) Validate() error {
	a.ZabbixEventID = strings.TrimSpace(a.ZabbixEventID)
	a.Title = strings.TrimSpace(a.Title)
	switch {
	case a.ZabbixEventID == "":
		return &ValidationError{Field: "zabbix_event_id", Message: "is required"}
	case a.EquipmentID <= 0:
		return &ValidationError{Field: "equipment_id", Message: "is required"}
	case a.Title == "":
		return &ValidationError{Field: "title", Message: "is required"}
	}
	if a.Status == "" {
		a.Status = AlarmActive
	}
	if !a.AlarmType.Valid() {
		return &ValidationError{Field: "alarm_type", Message: "must be critical, warning or info"}
	}
	if !a.Severity.Valid() {
		return &ValidationError{Field: "severity", Message: "must be high, medium or low"}
	}
	if !a.Status.Valid() {
		return &ValidationError{Field: "status", Message: "must be active, acknowledged or resolved"}
	}
	return nil
}

// AlarmUpdate is a partial update; nil fields are left untouched.
type AlarmUpdate struct {
	AlarmType      *AlarmType   `json:"alarm_type,omitempty"`
	Severity       *Severity    `json:"severity,omitempty"`
	Title          *string      `json:"title,omitempty"`
	Description    *string      `json:"description,omitempty"`
	Status         *AlarmStatus `json:"status,omitempty"`
	AcknowledgedBy *string      `json:"acknowledged_by,omitempty"`
}

// Validate rejects present-but-invalid fields.
func (u AlarmUpdate) Validate() error {
	if u.AlarmType != nil && !u.AlarmType.Valid() {
		return &ValidationError{Field: "alarm_type", Message: "must be critical, warning or info"}
	}
	if u.Severity != nil && !u.Severity.Valid() {
		return &ValidationError{Field: "severity", Message: "must be high, medium or low"}
	}
	if u.Status != nil && !u.Status.Valid() {
		return &ValidationError{Field: "status", Message: "must be active, acknowledged or resolved"}
	}
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return &ValidationError{Field: "title", Message: "must not be empty"}
	}
	return nil
}

// Apply merges the present fields of u into a. acknowledged_at is stamped
// the first time acknowledged_by is populated, and resolved_at whenever the
// status moves to resolved from another state.
func (u AlarmUpdate) Apply(a *Alarm, now time.Time) {
	setIf(&a.AlarmType, u.AlarmType)
	setIf(&a.Severity, u.Severity)
	setIf(&a.Title, u.Title)
	setIf(&a.Description, u.Description)

	if u.AcknowledgedBy != nil {
		first := a.AcknowledgedBy == nil || *a.AcknowledgedBy == ""
		by := *u.AcknowledgedBy
		a.AcknowledgedBy = &by
		if first && by != "" {
			a.AcknowledgedAt = &now
		}
	}
	if u.Status != nil {
		if *u.Status == AlarmResolved && a.Status != AlarmResolved {
			a.ResolvedAt = &now
		}
		a.Status = *u.Status
	}
}
