package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/HerbHall/alarmdesk/pkg/models"
)

const alarmColumns = `id, zabbix_event_id, equipment_id, alarm_type, severity, title, description,
	status, acknowledged_by, acknowledged_at, resolved_at, created_at, updated_at,
	zabbix_trigger_id, zabbix_item_id, zabbix_host_id`

// AlarmFilter narrows ListAlarms. Zero values match everything.
type AlarmFilter struct {
	Status      models.AlarmStatus
	AlarmType   models.AlarmType
	EquipmentID int64
	Since       time.Time
	Skip        int
	Limit       int
}

func scanAlarm(r rowScanner) (*models.Alarm, error) {
	var a models.Alarm
	var ackBy, triggerID, itemID, hostID sql.NullString
	var ackAt, resolvedAt, updatedAt sql.NullTime
	err := r.Scan(&a.ID, &a.ZabbixEventID, &a.EquipmentID, &a.AlarmType, &a.Severity, &a.Title,
		&a.Description, &a.Status, &ackBy, &ackAt, &resolvedAt, &a.CreatedAt, &updatedAt,
		&triggerID, &itemID, &hostID)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.AcknowledgedBy = nullString(ackBy)
	a.AcknowledgedAt = nullTime(ackAt)
	a.ResolvedAt = nullTime(resolvedAt)
	a.UpdatedAt = nullTime(updatedAt)
	a.ZabbixTriggerID = nullString(triggerID)
	a.ZabbixItemID = nullString(itemID)
	a.ZabbixHostID = nullString(hostID)
	return &a, nil
}

// CreateAlarm inserts a and fills its ID and CreatedAt. The equipment
// reference must exist.
func (s *Store) CreateAlarm(ctx context.Context, a *models.Alarm) error {
	a.CreatedAt = s.now()
	err := s.db.QueryRowContext(ctx, s.q(`INSERT INTO alarms
		(zabbix_event_id, equipment_id, alarm_type, severity, title, description, status,
		 acknowledged_by, acknowledged_at, resolved_at, created_at,
		 zabbix_trigger_id, zabbix_item_id, zabbix_host_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		a.ZabbixEventID, a.EquipmentID, a.AlarmType, a.Severity, a.Title, a.Description, a.Status,
		a.AcknowledgedBy, a.AcknowledgedAt, a.ResolvedAt, a.CreatedAt,
		a.ZabbixTriggerID, a.ZabbixItemID, a.ZabbixHostID,
	).Scan(&a.ID)
	return classify(err, "create alarm")
}

// GetAlarm returns an alarm by local id.
func (s *Store) GetAlarm(ctx context.Context, id int64) (*models.Alarm, error) {
	a, err := scanAlarm(s.db.QueryRowContext(ctx,
		s.q("SELECT "+alarmColumns+" FROM alarms WHERE id = ?"), id))
	if err != nil {
		return nil, classify(err, fmt.Sprintf("get alarm %d", id))
	}
	return a, nil
}

// FindAlarmByEventID returns the alarm mirrored from a Zabbix event id.
func (s *Store) FindAlarmByEventID(ctx context.Context, eventID string) (*models.Alarm, error) {
	a, err := scanAlarm(s.db.QueryRowContext(ctx,
		s.q("SELECT "+alarmColumns+" FROM alarms WHERE zabbix_event_id = ?"), eventID))
	if err != nil {
		return nil, classify(err, fmt.Sprintf("find alarm by event %q", eventID))
	}
	return a, nil
}

// UpdateAlarm writes every mutable column of a and stamps UpdatedAt.
func (s *Store) UpdateAlarm(ctx context.Context, a *models.Alarm) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE alarms SET
		alarm_type = ?, severity = ?, title = ?, description = ?, status = ?,
		acknowledged_by = ?, acknowledged_at = ?, resolved_at = ?, updated_at = ?
		WHERE id = ?`),
		a.AlarmType, a.Severity, a.Title, a.Description, a.Status,
		a.AcknowledgedBy, a.AcknowledgedAt, a.ResolvedAt, now, a.ID)
	if err != nil {
		return classify(err, fmt.Sprintf("update alarm %d", a.ID))
	}
	if err := checkAffected(res, fmt.Sprintf("update alarm %d", a.ID)); err != nil {
		return err
	}
	a.UpdatedAt = &now
	return nil
}

// DeleteAlarm removes an alarm.
func (s *Store) DeleteAlarm(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q("DELETE FROM alarms WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete alarm %d: %w", id, err)
	}
	return checkAffected(res, fmt.Sprintf("delete alarm %d", id))
}

func (f AlarmFilter) where() where {
	var w where
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.AlarmType != "" {
		w.add("alarm_type = ?", f.AlarmType)
	}
	if f.EquipmentID > 0 {
		w.add("equipment_id = ?", f.EquipmentID)
	}
	if !f.Since.IsZero() {
		w.add("created_at >= ?", f.Since.UTC())
	}
	return w
}

// CountAlarms returns the number of alarms matching f, ignoring Skip and Limit.
func (s *Store) CountAlarms(ctx context.Context, f AlarmFilter) (int, error) {
	w := f.where()
	var n int
	err := s.db.QueryRowContext(ctx, s.q("SELECT COUNT(*) FROM alarms"+w.String()), w.args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count alarms: %w", err)
	}
	return n, nil
}

// ListAlarms returns alarms newest first.
func (s *Store) ListAlarms(ctx context.Context, f AlarmFilter) ([]models.Alarm, error) {
	w := f.where()
	skip, limit := page(f.Skip, f.Limit)
	args := append(w.args, limit, skip)

	rows, err := s.db.QueryContext(ctx,
		s.q("SELECT "+alarmColumns+" FROM alarms"+w.String()+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"),
		args...)
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}
	defer rows.Close()

	out := []models.Alarm{}
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alarm: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// AlarmStats summarizes alarm counts.
type AlarmStats struct {
	Total      int            `json:"total"`
	Active     int            `json:"active"`
	ByStatus   map[string]int `json:"by_status"`
	ByType     map[string]int `json:"by_type"`
	BySeverity map[string]int `json:"by_severity"`
}

// AlarmSummary counts alarms by status, type and severity.
func (s *Store) AlarmSummary(ctx context.Context) (*AlarmStats, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, alarm_type, severity, COUNT(*) FROM alarms GROUP BY status, alarm_type, severity")
	if err != nil {
		return nil, fmt.Errorf("alarm summary: %w", err)
	}
	defer rows.Close()

	stats := &AlarmStats{
		ByStatus:   map[string]int{},
		ByType:     map[string]int{},
		BySeverity: map[string]int{},
	}
	for rows.Next() {
		var status, typ, sev string
		var n int
		if err := rows.Scan(&status, &typ, &sev, &n); err != nil {
			return nil, fmt.Errorf("scan alarm summary: %w", err)
		}
		stats.Total += n
		stats.ByStatus[status] += n
		stats.ByType[typ] += n
		stats.BySeverity[sev] += n
		if models.AlarmStatus(status) != models.AlarmResolved {
			stats.Active += n
		}
	}
	return stats, rows.Err()
}

// TrendPoint is the number of alarms created on one UTC day.
type TrendPoint struct {
	Date     string `json:"date"`
	Total    int    `json:"total"`
	Critical int    `json:"critical"`
	Warning  int    `json:"warning"`
	Info     int    `json:"info"`
}

// AlarmTrends buckets alarms created in the last days days by UTC date,
// oldest first. Days without alarms are included with zero counts.
func (s *Store) AlarmTrends(ctx context.Context, days int) ([]TrendPoint, error) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))

	rows, err := s.db.QueryContext(ctx,
		s.q("SELECT alarm_type, created_at FROM alarms WHERE created_at >= ?"), start)
	if err != nil {
		return nil, fmt.Errorf("alarm trends: %w", err)
	}
	defer rows.Close()

	points := make([]TrendPoint, days)
	index := make(map[string]int, days)
	for i := range points {
		d := start.AddDate(0, 0, i).Format(time.DateOnly)
		points[i].Date = d
		index[d] = i
	}
	for rows.Next() {
		var typ models.AlarmType
		var created time.Time
		if err := rows.Scan(&typ, &created); err != nil {
			return nil, fmt.Errorf("scan alarm trend: %w", err)
		}
		i, ok := index[created.UTC().Format(time.DateOnly)]
		if !ok {
			continue
		}
		points[i].Total++
		switch typ {
		case models.AlarmCritical:
			points[i].Critical++
		case models.AlarmWarning:
			points[i].Warning++
		default:
			points[i].Info++
		}
	}
	return points, rows.Err()
}
