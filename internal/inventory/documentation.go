package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/HerbHall/alarmdesk/pkg/models"
)

const documentationColumns = `id, equipment_id, alarm_id, title, content, doc_type, author,
	tags, is_public, created_at, updated_at`

// DocumentationFilter narrows ListDocumentation. Zero values match everything.
type DocumentationFilter struct {
	EquipmentID int64
	AlarmID     int64
	DocType     models.DocType
	PublicOnly  bool
	Skip        int
	Limit       int
}

func scanDocumentation(r rowScanner) (*models.Documentation, error) {
	var d models.Documentation
	var alarmID sql.NullInt64
	var tags string
	var updatedAt sql.NullTime
	err := r.Scan(&d.ID, &d.EquipmentID, &alarmID, &d.Title, &d.Content, &d.DocType, &d.Author,
		&tags, &d.IsPublic, &d.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if alarmID.Valid {
		id := alarmID.Int64
		d.AlarmID = &id
	}
	if err := json.Unmarshal([]byte(tags), &d.Tags); err != nil || d.Tags == nil {
		d.Tags = []string{}
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = nullTime(updatedAt)
	return &d, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

// CreateDocumentation inserts d and fills its ID and CreatedAt.
func (s *Store) CreateDocumentation(ctx context.Context, d *models.Documentation) error {
	tags, err := encodeTags(d.Tags)
	if err != nil {
		return err
	}
	d.CreatedAt = s.now()
	err = s.db.QueryRowContext(ctx, s.q(`INSERT INTO documentation
		(equipment_id, alarm_id, title, content, doc_type, author, tags, is_public, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		d.EquipmentID, d.AlarmID, d.Title, d.Content, d.DocType, d.Author, tags, d.IsPublic, d.CreatedAt,
	).Scan(&d.ID)
	return classify(err, "create documentation")
}

// GetDocumentation returns a documentation entry by id.
func (s *Store) GetDocumentation(ctx context.Context, id int64) (*models.Documentation, error) {
	d, err := scanDocumentation(s.db.QueryRowContext(ctx,
		s.q("SELECT "+documentationColumns+" FROM documentation WHERE id = ?"), id))
	if err != nil {
		return nil, classify(err, fmt.Sprintf("get documentation %d", id))
	}
	return d, nil
}

// UpdateDocumentation writes every mutable column of d and stamps UpdatedAt.
func (s *Store) UpdateDocumentation(ctx context.Context, d *models.Documentation) error {
	tags, err := encodeTags(d.Tags)
	if err != nil {
		return err
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE documentation SET
		alarm_id = ?, title = ?, content = ?, doc_type = ?, author = ?, tags = ?, is_public = ?, updated_at = ?
		WHERE id = ?`),
		d.AlarmID, d.Title, d.Content, d.DocType, d.Author, tags, d.IsPublic, now, d.ID)
	if err != nil {
		return classify(err, fmt.Sprintf("update documentation %d", d.ID))
	}
	if err := checkAffected(res, fmt.Sprintf("update documentation %d", d.ID)); err != nil {
		return err
	}
	d.UpdatedAt = &now
	return nil
}

// DeleteDocumentation removes a documentation entry.
func (s *Store) DeleteDocumentation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q("DELETE FROM documentation WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete documentation %d: %w", id, err)
	}
	return checkAffected(res, fmt.Sprintf("delete documentation %d", id))
}

// ListDocumentation returns documentation newest first.
func (s *Store) ListDocumentation(ctx context.Context, f DocumentationFilter) ([]models.Documentation, error) {
	var w where
	if f.EquipmentID > 0 {
		w.add("equipment_id = ?", f.EquipmentID)
	}
	if f.AlarmID > 0 {
		w.add("alarm_id = ?", f.AlarmID)
	}
	if f.DocType != "" {
		w.add("doc_type = ?", f.DocType)
	}
	if f.PublicOnly {
		w.add("is_public = ?", true)
	}
	skip, limit := page(f.Skip, f.Limit)
	args := append(w.args, limit, skip)

	rows, err := s.db.QueryContext(ctx,
		s.q("SELECT "+documentationColumns+" FROM documentation"+w.String()+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"),
		args...)
	if err != nil {
		return nil, fmt.Errorf("list documentation: %w", err)
	}
	defer rows.Close()

	out := []models.Documentation{}
	for rows.Next() {
		d, err := scanDocumentation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan documentation: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
