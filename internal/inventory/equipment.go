package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/alarmdesk/internal/store"
	"github.com/HerbHall/alarmdesk/pkg/models"
)

const equipmentColumns = `id, zabbix_host_id, name, hostname, ip_address, equipment_type,
	location, client_name, status, last_seen, created_at, updated_at`

// EquipmentFilter narrows ListEquipment. Zero values match everything.
type EquipmentFilter struct {
	ClientName string
	Status     models.EquipmentStatus
	Skip       int
	Limit      int
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEquipment(r rowScanner) (*models.Equipment, error) {
	var e models.Equipment
	var lastSeen, updatedAt sql.NullTime
	err := r.Scan(&e.ID, &e.ZabbixHostID, &e.Name, &e.Hostname, &e.IPAddress, &e.EquipmentType,
		&e.Location, &e.ClientName, &e.Status, &lastSeen, &e.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.LastSeen = nullTime(lastSeen)
	e.UpdatedAt = nullTime(updatedAt)
	return &e, nil
}

func (s *Store) queryEquipment(ctx context.Context, query string, args ...any) ([]models.Equipment, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query equipment: %w", err)
	}
	defer rows.Close()

	out := []models.Equipment{}
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan equipment: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// CreateEquipment inserts e and fills its ID and CreatedAt.
func (s *Store) CreateEquipment(ctx context.Context, e *models.Equipment) error {
	e.CreatedAt = s.now()
	err := s.db.QueryRowContext(ctx, s.q(`INSERT INTO equipment
		(zabbix_host_id, name, hostname, ip_address, equipment_type, location, client_name, status, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		e.ZabbixHostID, e.Name, e.Hostname, e.IPAddress, e.EquipmentType,
		e.Location, e.ClientName, e.Status, e.LastSeen, e.CreatedAt,
	).Scan(&e.ID)
	return classify(err, "create equipment")
}

// GetEquipment returns equipment by local id.
func (s *Store) GetEquipment(ctx context.Context, id int64) (*models.Equipment, error) {
	e, err := scanEquipment(s.db.QueryRowContext(ctx,
		s.q("SELECT "+equipmentColumns+" FROM equipment WHERE id = ?"), id))
	if err != nil {
		return nil, classify(err, fmt.Sprintf("get equipment %d", id))
	}
	return e, nil
}

// FindEquipmentByHostID returns the equipment mirrored from a Zabbix host id.
func (s *Store) FindEquipmentByHostID(ctx context.Context, hostID string) (*models.Equipment, error) {
	e, err := scanEquipment(s.db.QueryRowContext(ctx,
		s.q("SELECT "+equipmentColumns+" FROM equipment WHERE zabbix_host_id = ?"), hostID))
	if err != nil {
		return nil, classify(err, fmt.Sprintf("find equipment by host %q", hostID))
	}
	return e, nil
}

// UpdateEquipment writes every mutable column of e and stamps UpdatedAt.
func (s *Store) UpdateEquipment(ctx context.Context, e *models.Equipment) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE equipment SET
		name = ?, hostname = ?, ip_address = ?, equipment_type = ?, location = ?,
		client_name = ?, status = ?, last_seen = ?, updated_at = ?
		WHERE id = ?`),
		e.Name, e.Hostname, e.IPAddress, e.EquipmentType, e.Location,
		e.ClientName, e.Status, e.LastSeen, now, e.ID)
	if err != nil {
		return classify(err, fmt.Sprintf("update equipment %d", e.ID))
	}
	if err := checkAffected(res, fmt.Sprintf("update equipment %d", e.ID)); err != nil {
		return err
	}
	e.UpdatedAt = &now
	return nil
}

// DeleteEquipment removes equipment and, by cascade, its alarms and documentation.
func (s *Store) DeleteEquipment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q("DELETE FROM equipment WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete equipment %d: %w", id, err)
	}
	return checkAffected(res, fmt.Sprintf("delete equipment %d", id))
}

// ListEquipment returns equipment ordered by name.
func (s *Store) ListEquipment(ctx context.Context, f EquipmentFilter) ([]models.Equipment, error) {
	var w where
	if f.ClientName != "" {
		w.add("client_name = ?", f.ClientName)
	}
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	skip, limit := page(f.Skip, f.Limit)
	args := append(w.args, limit, skip)
	return s.queryEquipment(ctx,
		"SELECT "+equipmentColumns+" FROM equipment"+w.String()+" ORDER BY name, id LIMIT ? OFFSET ?",
		args...)
}

// SearchEquipment matches term case-insensitively against name, hostname,
// IP address and client name.
func (s *Store) SearchEquipment(ctx context.Context, term string, limit int) ([]models.Equipment, error) {
	_, limit = page(0, limit)
	like := "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
	return s.queryEquipment(ctx, "SELECT "+equipmentColumns+` FROM equipment
		WHERE LOWER(name) LIKE ? OR LOWER(hostname) LIKE ? OR ip_address LIKE ? OR LOWER(client_name) LIKE ?
		ORDER BY name, id LIMIT ?`,
		like, like, like, like, limit)
}

// EquipmentStats summarizes equipment counts.
type EquipmentStats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	ByType   map[string]int `json:"by_type"`
	ByClient map[string]int `json:"by_client"`
}

// EquipmentSummary counts equipment by status, type and client.
func (s *Store) EquipmentSummary(ctx context.Context) (*EquipmentStats, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, equipment_type, client_name, COUNT(*) FROM equipment GROUP BY status, equipment_type, client_name")
	if err != nil {
		return nil, fmt.Errorf("equipment summary: %w", err)
	}
	defer rows.Close()

	stats := &EquipmentStats{
		ByStatus: map[string]int{},
		ByType:   map[string]int{},
		ByClient: map[string]int{},
	}
	for rows.Next() {
		var status, typ, client string
		var n int
		if err := rows.Scan(&status, &typ, &client, &n); err != nil {
			return nil, fmt.Errorf("scan equipment summary: %w", err)
		}
		stats.Total += n
		stats.ByStatus[status] += n
		stats.ByType[typ] += n
		if client != "" {
			stats.ByClient[client] += n
		}
	}
	return stats, rows.Err()
}

// MarkEquipmentOfflineExcept sets every equipment whose Zabbix host id is
// not in hostIDs to offline in one statement. An empty hostIDs marks all
// equipment offline. Rows already offline are left alone. Returns the
// number of rows changed.
func (s *Store) MarkEquipmentOfflineExcept(ctx context.Context, hostIDs []string) (int64, error) {
	now := s.now()
	query := "UPDATE equipment SET status = ?, updated_at = ? WHERE status <> ?"
	args := []any{models.EquipmentOffline, now, models.EquipmentOffline}
	if len(hostIDs) > 0 {
		query += " AND zabbix_host_id NOT IN (" + store.Placeholders(len(hostIDs)) + ")"
		for _, id := range hostIDs {
			args = append(args, id)
		}
	}
	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, fmt.Errorf("mark equipment offline: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark equipment offline: rows affected: %w", err)
	}
	return n, nil
}

// EquipmentHealth is the per-equipment health view derived from its alarms.
type EquipmentHealth struct {
	EquipmentID    int64                  `json:"equipment_id"`
	Status         models.EquipmentStatus `json:"status"`
	LastSeen       *time.Time             `json:"last_seen,omitempty"`
	ActiveAlarms   int                    `json:"active_alarms"`
	CriticalAlarms int                    `json:"critical_alarms"`
	WarningAlarms  int                    `json:"warning_alarms"`
	Health         string                 `json:"health"`
}

// Health derives a health label from the equipment's unresolved alarms:
// offline or any critical is "critical", any warning is "warning", otherwise "healthy".
func (s *Store) Health(ctx context.Context, id int64) (*EquipmentHealth, error) {
	e, err := s.GetEquipment(ctx, id)
	if err != nil {
		return nil, err
	}
	h := &EquipmentHealth{EquipmentID: e.ID, Status: e.Status, LastSeen: e.LastSeen}

	rows, err := s.db.QueryContext(ctx, s.q(`SELECT alarm_type, COUNT(*) FROM alarms
		WHERE equipment_id = ? AND status <> ? GROUP BY alarm_type`), id, models.AlarmResolved)
	if err != nil {
		return nil, fmt.Errorf("equipment %d health: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ models.AlarmType
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan equipment health: %w", err)
		}
		h.ActiveAlarms += n
		switch typ {
		case models.AlarmCritical:
			h.CriticalAlarms += n
		case models.AlarmWarning:
			h.WarningAlarms += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch {
	case e.Status == models.EquipmentOffline || h.CriticalAlarms > 0:
		h.Health = "critical"
	case h.WarningAlarms > 0 || e.Status == models.EquipmentMaintenance:
		h.Health = "warning"
	default:
		h.Health = "healthy"
	}
	return h, nil
}
