package inventory

import (
	"database/sql"
	"fmt"

	"github.com/HerbHall/alarmdesk/pkg/plugin"
)

// migrations returns the schema for driver. Column types differ only in
// the key and timestamp declarations.
func migrations(driver string) []plugin.Migration {
	pk, ts, boolean := "INTEGER PRIMARY KEY AUTOINCREMENT", "DATETIME", "INTEGER"
	if driver == "postgres" {
		pk, ts, boolean = "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ", "BOOLEAN"
	}

	return []plugin.Migration{
		{
			Version:     1,
			Description: "create equipment, alarms and documentation tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					fmt.Sprintf(`CREATE TABLE IF NOT EXISTS equipment (
						id             %[1]s,
						zabbix_host_id TEXT NOT NULL UNIQUE,
						name           TEXT NOT NULL,
						hostname       TEXT NOT NULL DEFAULT '',
						ip_address     TEXT NOT NULL DEFAULT '',
						equipment_type TEXT NOT NULL DEFAULT 'unknown',
						location       TEXT NOT NULL DEFAULT '',
						client_name    TEXT NOT NULL DEFAULT '',
						status         TEXT NOT NULL DEFAULT 'online',
						last_seen      %[2]s,
						created_at     %[2]s NOT NULL,
						updated_at     %[2]s
					)`, pk, ts),
					`CREATE INDEX IF NOT EXISTS idx_equipment_client ON equipment(client_name)`,
					`CREATE INDEX IF NOT EXISTS idx_equipment_status ON equipment(status)`,
					fmt.Sprintf(`CREATE TABLE IF NOT EXISTS alarms (
						id                %[1]s,
						zabbix_event_id   TEXT NOT NULL UNIQUE,
						equipment_id      BIGINT NOT NULL REFERENCES equipment(id) ON DELETE CASCADE,
						alarm_type        TEXT NOT NULL,
						severity          TEXT NOT NULL,
						title             TEXT NOT NULL,
						description       TEXT NOT NULL DEFAULT '',
						status            TEXT NOT NULL DEFAULT 'active',
						acknowledged_by   TEXT,
						acknowledged_at   %[2]s,
						resolved_at       %[2]s,
						created_at        %[2]s NOT NULL,
						updated_at        %[2]s,
						zabbix_trigger_id TEXT,
						zabbix_item_id    TEXT,
						zabbix_host_id    TEXT
					)`, pk, ts),
					`CREATE INDEX IF NOT EXISTS idx_alarms_equipment ON alarms(equipment_id)`,
					`CREATE INDEX IF NOT EXISTS idx_alarms_status ON alarms(status)`,
					`CREATE INDEX IF NOT EXISTS idx_alarms_created ON alarms(created_at)`,
					fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documentation (
						id           %[1]s,
						equipment_id BIGINT NOT NULL REFERENCES equipment(id) ON DELETE CASCADE,
						alarm_id     BIGINT REFERENCES alarms(id) ON DELETE SET NULL,
						title        TEXT NOT NULL,
						content      TEXT NOT NULL,
						doc_type     TEXT NOT NULL DEFAULT 'procedure',
						author       TEXT NOT NULL DEFAULT '',
						tags         TEXT NOT NULL DEFAULT '[]',
						is_public    %[3]s NOT NULL DEFAULT %[4]s,
						created_at   %[2]s NOT NULL,
						updated_at   %[2]s
					)`, pk, ts, boolean, falseLiteral(driver)),
					`CREATE INDEX IF NOT EXISTS idx_documentation_equipment ON documentation(equipment_id)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}

func falseLiteral(driver string) string {
	if driver == "postgres" {
		return "FALSE"
	}
	return "0"
}
