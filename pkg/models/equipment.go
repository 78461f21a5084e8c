package models

import (
	"strings"
	"time"
)

// EquipmentStatus is the lifecycle state of a piece of equipment.
type EquipmentStatus string

const (
	EquipmentOnline      EquipmentStatus = "online"
	EquipmentOffline     EquipmentStatus = "offline"
	EquipmentMaintenance EquipmentStatus = "maintenance"
)

// Valid reports whether s is a known equipment status.
func (s EquipmentStatus) Valid() bool {
	switch s {
	case EquipmentOnline, EquipmentOffline, EquipmentMaintenance:
		return true
	}
	return false
}

// EquipmentTypeUnknown is assigned to hosts first seen through sync.
const EquipmentTypeUnknown = "unknown"

// Equipment is a monitored host mirrored from Zabbix or created by hand.
// ZabbixHostID is unique across all equipment.
type Equipment struct {
	ID            int64           `json:"id"`
	ZabbixHostID  string          `json:"zabbix_host_id"`
	Name          string          `json:"name"`
	Hostname      string          `json:"hostname,omitempty"`
	IPAddress     string          `json:"ip_address,omitempty"`
	EquipmentType string          `json:"equipment_type"`
	Location      string          `json:"location,omitempty"`
	ClientName    string          `json:"client_name,omitempty"`
	Status        EquipmentStatus `json:"status"`
	LastSeen      *time.Time      `json:"last_seen,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     *time.Time      `json:"updated_at,omitempty"`
}

// Validate checks the fields required for manual creation and fills defaults.
func (e *Equipment) Validate() error {
	e.ZabbixHostID = strings.TrimSpace(e.ZabbixHostID)
	e.Name = strings.TrimSpace(e.Name)
	if e.ZabbixHostID == "" {
		return &ValidationError{Field: "zabbix_host_id", Message: "is required"}
	}
	if e.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if e.EquipmentType == "" {
		e.EquipmentType = EquipmentTypeUnknown
	}
	if e.Status == "" {
		e.Status = EquipmentOnline
	}
	if !e.Status.Valid() {
		return &ValidationError{Field: "status", Message: "must be online, offline or maintenance"}
	}
	return nil
}

// EquipmentUpdate is a partial update; nil fields are left untouched.
type EquipmentUpdate struct {
	Name          *string          `json:"name,omitempty"`
	Hostname      *string          `json:"hostname,omitempty"`
	IPAddress     *string          `json:"ip_address,omitempty"`
	EquipmentType *string          `json:"equipment_type,omitempty"`
	Location      *string          `json:"location,omitempty"`
	ClientName    *string          `json:"client_name,omitempty"`
	Status        *EquipmentStatus `json:"status,omitempty"`
	LastSeen      *time.Time       `json:"last_seen,omitempty"`
}

// Validate rejects present-but-invalid fields.
func (u EquipmentUpdate) Validate() error {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if u.Status != nil && !u.Status.Valid() {
		return &ValidationError{Field: "status", Message: "must be online, offline or maintenance"}
	}
	return nil
}

// Apply merges the present fields of u into e.
func (u EquipmentUpdate) Apply(e *Equipment) {
	setIf(&e.Name, u.Name)
	setIf(&e.Hostname, u.Hostname)
	setIf(&e.IPAddress, u.IPAddress)
	setIf(&e.EquipmentType, u.EquipmentType)
	setIf(&e.Location, u.Location)
	setIf(&e.ClientName, u.ClientName)
	setIf(&e.Status, u.Status)
	if u.LastSeen != nil {
		t := *u.LastSeen
		e.LastSeen = &t
	}
}

// Empty reports whether no field is set.
func (u EquipmentUpdate) Empty() bool {
	return u == EquipmentUpdate{}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
