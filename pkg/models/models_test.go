package models

import (
	"errors"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestEquipmentUpdate_ApplyOnlyPresentFields(t *testing.T) {
	seen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := Equipment{
		Name:          "core-sw",
		Hostname:      "core-sw.lan",
		EquipmentType: "switch",
		Location:      "rack 4",
		ClientName:    "acme",
		Status:        EquipmentOnline,
	}

	EquipmentUpdate{
		Location: ptr("rack 7"),
		Status:   ptr(EquipmentMaintenance),
		LastSeen: &seen,
	}.Apply(&e)

	if e.Location != "rack 7" || e.Status != EquipmentMaintenance {
		t.Errorf("present fields not applied: %+v", e)
	}
	if e.Name != "core-sw" || e.EquipmentType != "switch" || e.ClientName != "acme" {
		t.Errorf("absent fields changed: %+v", e)
	}
	if e.LastSeen == nil || !e.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want %v", e.LastSeen, seen)
	}
	if !(EquipmentUpdate{}).Empty() {
		t.Error("zero update should be empty")
	}
}

func TestEquipment_Validate(t *testing.T) {
	e := Equipment{ZabbixHostID: " 10084 ", Name: "fw"}
	if err := e.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if e.ZabbixHostID != "10084" || e.EquipmentType != EquipmentTypeUnknown || e.Status != EquipmentOnline {
		t.Errorf("defaults not applied: %+v", e)
	}

	bad := Equipment{ZabbixHostID: "1", Name: "x", Status: "exploded"}
	var ve *ValidationError
	if err := bad.Validate(); !errors.As(err, &ve) || ve.Field != "status" {
		t.Errorf("Validate error = %v, want status ValidationError", err)
	}
	missing := Equipment{Name: "x"}
	if err := missing.Validate(); !errors.As(err, &ve) || ve.Field != "zabbix_host_id" {
		t.Errorf("Validate error = %v, want zabbix_host_id ValidationError", err)
	}
}

func TestAlarmUpdate_AcknowledgedAtSetOnFirstAcknowledger(t *testing.T) {
	t1 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	a := Alarm{Status: AlarmActive}

	AlarmUpdate{AcknowledgedBy: ptr("alice")}.Apply(&a, t1)
	if a.AcknowledgedAt == nil || !a.AcknowledgedAt.Equal(t1) {
		t.Fatalf("AcknowledgedAt = %v, want %v", a.AcknowledgedAt, t1)
	}

	AlarmUpdate{AcknowledgedBy: ptr("bob")}.Apply(&a, t2)
	if *a.AcknowledgedBy != "bob" {
		t.Errorf("AcknowledgedBy = %q, want bob", *a.AcknowledgedBy)
	}
	if !a.AcknowledgedAt.Equal(t1) {
		t.Errorf("AcknowledgedAt moved to %v on second acknowledger", a.AcknowledgedAt)
	}
}

func TestAlarmUpdate_ResolvedAtSetOnTransition(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	a := Alarm{Status: AlarmActive, Title: "CPU high"}

	AlarmUpdate{Description: ptr("load > 8")}.Apply(&a, now)
	if a.ResolvedAt != nil || a.Status != AlarmActive {
		t.Fatalf("unrelated update touched status: %+v", a)
	}
	if a.Title != "CPU high" || a.Description != "load > 8" {
		t.Errorf("merge wrong: %+v", a)
	}

	AlarmUpdate{Status: ptr(AlarmResolved)}.Apply(&a, now)
	if a.Status != AlarmResolved || a.ResolvedAt == nil || !a.ResolvedAt.Equal(now) {
		t.Errorf("resolve transition: status=%s resolved_at=%v", a.Status, a.ResolvedAt)
	}

	later := now.Add(time.Hour)
	AlarmUpdate{Status: ptr(AlarmResolved)}.Apply(&a, later)
	if !a.ResolvedAt.Equal(now) {
		t.Errorf("resolved_at moved on repeated resolve: %v", a.ResolvedAt)
	}
}

func TestAlarmValidation(t *testing.T) {
	a := Alarm{ZabbixEventID: "e1", EquipmentID: 1, Title: "t", AlarmType: AlarmInfo, Severity: SeverityLow}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if a.Status != AlarmActive {
		t.Errorf("default status = %s, want active", a.Status)
	}

	tests := []struct {
		name string
		u    AlarmUpdate
		ok   bool
	}{
		{"empty", AlarmUpdate{}, true},
		{"bad type", AlarmUpdate{AlarmType: ptr(AlarmType("fatal"))}, false},
		{"bad severity", AlarmUpdate{Severity: ptr(Severity("extreme"))}, false},
		{"bad status", AlarmUpdate{Status: ptr(AlarmStatus("closed"))}, false},
		{"blank title", AlarmUpdate{Title: ptr("  ")}, false},
		{"good", AlarmUpdate{Status: ptr(AlarmAcknowledged)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.u.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, ok want %v", err, tt.ok)
			}
		})
	}
}

func TestDocumentationUpdate_Apply(t *testing.T) {
	d := Documentation{Title: "Reboot core", Content: "steps", DocType: DocProcedure, Tags: []string{"core"}}
	tags := []string{"core", "reboot"}
	DocumentationUpdate{Tags: &tags, IsPublic: ptr(true), AlarmID: ptr(int64(9))}.Apply(&d)

	if d.Title != "Reboot core" || d.Content != "steps" {
		t.Errorf("absent fields changed: %+v", d)
	}
	if len(d.Tags) != 2 || !d.IsPublic || d.AlarmID == nil || *d.AlarmID != 9 {
		t.Errorf("present fields not applied: %+v", d)
	}
	tags[0] = "mutated"
	if d.Tags[0] != "core" {
		t.Error("Apply aliased the caller's tag slice")
	}
}

func TestDocumentation_Validate(t *testing.T) {
	d := Documentation{EquipmentID: 1, Title: "x", Content: "y"}
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if d.DocType != DocProcedure || d.Tags == nil {
		t.Errorf("defaults not applied: %+v", d)
	}
	bad := Documentation{EquipmentID: 1, Title: "x", Content: "y", DocType: "novel"}
	if err := bad.Validate(); err == nil {
		t.Error("expected doc_type validation error")
	}
}
