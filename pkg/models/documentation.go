package models

import (
	"strings"
	"time"
)

// DocType classifies a documentation entry.
type DocType string

const (
	DocProcedure       DocType = "procedure"
	DocTroubleshooting DocType = "troubleshooting"
	DocMaintenance     DocType = "maintenance"
)

// Valid reports whether t is a known documentation type.
func (t DocType) Valid() bool {
	switch t {
	case DocProcedure, DocTroubleshooting, DocMaintenance:
		return true
	}
	return false
}

// Documentation is operator knowledge attached to equipment and optionally an alarm.
type Documentation struct {
	ID          int64      `json:"id"`
	EquipmentID int64      `json:"equipment_id"`
	AlarmID     *int64     `json:"alarm_id,omitempty"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	DocType     DocType    `json:"doc_type"`
	Author      string     `json:"author,omitempty"`
	Tags        []string   `json:"tags"`
	IsPublic    bool       `json:"is_public"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Validate checks required fields and fills defaults.
func (d *Documentation) Validate() error {
	d.Title = strings.TrimSpace(d.Title)
	switch {
	case d.EquipmentID <= 0:
		return &ValidationError{Field: "equipment_id", Message: "is required"}
	case d.Title == "":
		return &ValidationError{Field: "title", Message: "is required"}
	case strings.TrimSpace(d.Content) == "":
		return &ValidationError{Field: "content", Message: "is required"}
	}
	if d.DocType == "" {
		d.DocType = DocProcedure
	}
	if !d.DocType.Valid() {
		return &ValidationError{Field: "doc_type", Message: "must be procedure, troubleshooting or maintenance"}
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	return nil
}

// DocumentationUpdate is a partial update; nil fields are left untouched.
type DocumentationUpdate struct {
	Title    *string   `json:"title,omitempty"`
	Content  *string   `json:"content,omitempty"`
	DocType  *DocType  `json:"doc_type,omitempty"`
	Author   *string   `json:"author,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
	IsPublic *bool     `json:"is_public,omitempty"`
	AlarmID  *int64    `json:"alarm_id,omitempty"`
}

// Validate rejects present-but-invalid fields.
func (u DocumentationUpdate) Validate() error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if u.DocType != nil && !u.DocType.Valid() {
		return &ValidationError{Field: "doc_type", Message: "must be procedure, troubleshooting or maintenance"}
	}
	return nil
}

// Apply merges the present fields of u into d.
func (u DocumentationUpdate) Apply(d *Documentation) {
	setIf(&d.Title, u.Title)
	setIf(&d.Content, u.Content)
	setIf(&d.DocType, u.DocType)
	setIf(&d.Author, u.Author)
	setIf(&d.IsPublic, u.IsPublic)
	if u.Tags != nil {
		d.Tags = append([]string{}, (*u.Tags)...)
	}
	if u.AlarmID != nil {
		id := *u.AlarmID
		d.AlarmID = &id
	}
}
