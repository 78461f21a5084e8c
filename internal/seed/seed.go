// Package seed populates an empty inventory with a small demo site so the
// API and dashboards have something to show without a Zabbix server.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HerbHall/alarmdesk/internal/inventory"
	"github.com/HerbHall/alarmdesk/pkg/models"
)

// Summary counts the rows a seeding run created.
type Summary struct {
	Equipment     int `json:"equipment"`
	Alarms        int `json:"alarms"`
	Documentation int `json:"documentation"`
}

// Demo seeds demo equipment, alarms and documentation. It is idempotent:
// equipment is matched on its upstream host id and alarms on their event
// id, so re-running only fills in what is missing.
func Demo(ctx context.Context, store *inventory.Store, now time.Time) (*Summary, error) {
	sum := &Summary{}
	ids := make(map[string]int64)

	for _, eq := range demoEquipment(now) {
		existing, err := store.FindEquipmentByHostID(ctx, eq.ZabbixHostID)
		switch {
		case err == nil:
			ids[eq.ZabbixHostID] = existing.ID
			continue
		case !errors.Is(err, inventory.ErrNotFound):
			return sum, fmt.Errorf("seed equipment %s: %w", eq.Name, err)
		}
		if err := store.CreateEquipment(ctx, &eq); err != nil {
			return sum, fmt.Errorf("seed equipment %s: %w", eq.Name, err)
		}
		ids[eq.ZabbixHostID] = eq.ID
		sum.Equipment++

		for _, doc := range demoDocs(eq) {
			if err := store.CreateDocumentation(ctx, &doc); err != nil {
				return sum, fmt.Errorf("seed documentation %s: %w", doc.Title, err)
			}
			sum.Documentation++
		}
	}

	for _, a := range demoAlarms(ids, now) {
		_, err := store.FindAlarmByEventID(ctx, a.ZabbixEventID)
		if err == nil {
			continue
		}
		if !errors.Is(err, inventory.ErrNotFound) {
			return sum, fmt.Errorf("seed alarm %s: %w", a.Title, err)
		}
		if err := store.CreateAlarm(ctx, &a); err != nil {
			return sum, fmt.Errorf("seed alarm %s: %w", a.Title, err)
		}
		sum.Alarms++
	}
	return sum, nil
}

func demoEquipment(now time.Time) []models.Equipment {
	seen := now.Add(-2 * time.Minute)
	stale := now.Add(-3 * time.Hour)
	return []models.Equipment{
		{ZabbixHostID: "demo-10001", Name: "Core Switch", Hostname: "core-sw-01", IPAddress: "10.10.0.2",
			EquipmentType: "switch", Location: "Rack A1", ClientName: "Acme Logistics", Status: models.EquipmentOnline, LastSeen: &seen},
		{ZabbixHostID: "demo-10002", Name: "Edge Firewall", Hostname: "fw-01", IPAddress: "10.10.0.1",
			EquipmentType: "firewall", Location: "Rack A1", ClientName: "Acme Logistics", Status: models.EquipmentOnline, LastSeen: &seen},
		{ZabbixHostID: "demo-10003", Name: "File Server", Hostname: "fs-01", IPAddress: "10.10.1.20",
			EquipmentType: "server", Location: "Rack A2", ClientName: "Acme Logistics", Status: models.EquipmentOnline, LastSeen: &seen},
		{ZabbixHostID: "demo-10004", Name: "Warehouse AP", Hostname: "ap-wh-03", IPAddress: "10.10.5.13",
			EquipmentType: "access_point", Location: "Warehouse", ClientName: "Acme Logistics", Status: models.EquipmentOffline, LastSeen: &stale},
		{ZabbixHostID: "demo-20001", Name: "Clinic Router", Hostname: "rtr-clinic", IPAddress: "192.168.40.1",
			EquipmentType: "router", Location: "Front Office", ClientName: "Northside Clinic", Status: models.EquipmentOnline, LastSeen: &seen},
		{ZabbixHostID: "demo-20002", Name: "Backup NAS", Hostname: "nas-01", IPAddress: "192.168.40.30",
			EquipmentType: "storage", Location: "Server Closet", ClientName: "Northside Clinic", Status: models.EquipmentMaintenance, LastSeen: &seen},
	}
}

func demoAlarms(ids map[string]int64, now time.Time) []models.Alarm {
	ackBy := "demo"
	ackAt := now.Add(-40 * time.Minute)
	resolvedAt := now.Add(-20 * time.Hour)
	hostID := func(s string) *string { return &s }

	return []models.Alarm{
		{ZabbixEventID: "demo-e1", EquipmentID: ids["demo-10004"], AlarmType: models.AlarmCritical, Severity: models.SeverityHigh,
			Title: "Unavailable by ICMP ping", Status: models.AlarmActive, ZabbixHostID: hostID("demo-10004")},
		{ZabbixEventID: "demo-e2", EquipmentID: ids["demo-10003"], AlarmType: models.AlarmWarning, Severity: models.SeverityMedium,
			Title: "Free disk space is less than 20% on /srv", Status: models.AlarmAcknowledged, AcknowledgedBy: &ackBy, AcknowledgedAt: &ackAt,
			ZabbixHostID: hostID("demo-10003")},
		{ZabbixEventID: "demo-e3", EquipmentID: ids["demo-10002"], AlarmType: models.AlarmCritical, Severity: models.SeverityHigh,
			Title: "High CPU utilization on fw-01", Status: models.AlarmActive, ZabbixHostID: hostID("demo-10002")},
		{ZabbixEventID: "demo-e4", EquipmentID: ids["demo-20001"], AlarmType: models.AlarmWarning, Severity: models.SeverityMedium,
			Title: "WAN link latency above 150ms", Status: models.AlarmActive, ZabbixHostID: hostID("demo-20001")},
		{ZabbixEventID: "demo-e5", EquipmentID: ids["demo-10001"], AlarmType: models.AlarmInfo, Severity: models.SeverityLow,
			Title: "Configuration changed", Status: models.AlarmResolved, ResolvedAt: &resolvedAt,
			ZabbixHostID: hostID("demo-10001")},
	}
}

func demoDocs(eq models.Equipment) []models.Documentation {
	switch eq.EquipmentType {
	case "switch":
		return []models.Documentation{{
			EquipmentID: eq.ID, Title: "Replacing a failed uplink", DocType: models.DocProcedure,
			Content: "Move the uplink to the spare SFP port and update the LAG membership.",
			Author:  "demo", Tags: []string{"network", "uplink"}, IsPublic: true,
		}}
	case "storage":
		return []models.Documentation{{
			EquipmentID: eq.ID, Title: "Monthly scrub", DocType: models.DocMaintenance,
			Content: "Run a scrub on every volume during the first weekend of the month.",
			Author:  "demo", Tags: []string{"storage"},
		}}
	}
	return nil
}
