// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/alarmdesk/internal/store"
	"github.com/HerbHall/alarmdesk/pkg/models"
)

// NewStore opens an in-memory SQLite store closed at test cleanup.
func NewStore(tb testing.TB) *store.Store {
	tb.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		tb.Fatalf("open in-memory store: %v", err)
	}
	tb.Cleanup(func() { s.Close() })
	return s
}

// NewEquipment returns Equipment with sensible defaults and a unique host id.
// Override individual fields with options.
func NewEquipment(opts ...func(*models.Equipment)) models.Equipment {
	seen := time.Now().UTC()
	e := models.Equipment{
		ZabbixHostID:  "h-" + uuid.NewString()[:8],
		Name:          "test-switch",
		Hostname:      "test-switch.lan",
		IPAddress:     "192.168.1.10",
		EquipmentType: "switch",
		Location:      "rack 1",
		ClientName:    "acme",
		Status:        models.EquipmentOnline,
		LastSeen:      &seen,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// WithHostID sets the Zabbix host id.
func WithHostID(id string) func(*models.Equipment) {
	return func(e *models.Equipment) { e.ZabbixHostID = id }
}

// WithName sets the equipment display name.
func WithName(name string) func(*models.Equipment) {
	return func(e *models.Equipment) { e.Name = name }
}

// WithClient sets the client (tenant) name.
func WithClient(client string) func(*models.Equipment) {
	return func(e *models.Equipment) { e.ClientName = client }
}

// WithEquipmentStatus sets the equipment status.
func WithEquipmentStatus(s models.EquipmentStatus) func(*models.Equipment) {
	return func(e *models.Equipment) { e.Status = s }
}

// NewAlarm returns an active warning alarm on equipmentID with a unique event id.
func NewAlarm(equipmentID int64, opts ...func(*models.Alarm)) models.Alarm {
	a := models.Alarm{
		ZabbixEventID: "e-" + uuid.NewString()[:8],
		EquipmentID:   equipmentID,
		AlarmType:     models.AlarmWarning,
		Severity:      models.SeverityMedium,
		Title:         "High CPU utilization",
		Description:   "Event from Zabbix: High CPU utilization",
		Status:        models.AlarmActive,
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// WithEventID sets the Zabbix event id.
func WithEventID(id string) func(*models.Alarm) {
	return func(a *models.Alarm) { a.ZabbixEventID = id }
}

// WithAlarmStatus sets the alarm status.
func WithAlarmStatus(s models.AlarmStatus) func(*models.Alarm) {
	return func(a *models.Alarm) { a.Status = s }
}

// WithClassification sets the alarm type and severity.
func WithClassification(t models.AlarmType, s models.Severity) func(*models.Alarm) {
	return func(a *models.Alarm) {
		a.AlarmType = t
		a.Severity = s
	}
}

// NewDocumentation returns a procedure entry for equipmentID.
func NewDocumentation(equipmentID int64, opts ...func(*models.Documentation)) models.Documentation {
	d := models.Documentation{
		EquipmentID: equipmentID,
		Title:       "Restart uplink",
		Content:     "1. Log in\n2. Bounce port 24",
		DocType:     models.DocProcedure,
		Author:      "noc",
		Tags:        []string{"uplink"},
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}
