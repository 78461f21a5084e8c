package equipment

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/HerbHall/alarmdesk/internal/inventory"
	"github.com/HerbHall/alarmdesk/pkg/models"
)

const exportSheet = "Equipment"

var exportHeader = []string{
	"ID", "Zabbix Host ID", "Name", "Hostname", "IP Address", "Type",
	"Location", "Client", "Status", "Last Seen",
}

// Workbook renders equipment as a single-sheet XLSX document.
func Workbook(list []models.Equipment) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, e := range list {
		lastSeen := ""
		if e.LastSeen != nil {
			lastSeen = e.LastSeen.UTC().Format(time.RFC3339)
		}
		row := []any{
			e.ID, e.ZabbixHostID, e.Name, e.Hostname, e.IPAddress, e.EquipmentType,
			e.Location, e.ClientName, string(e.Status), lastSeen,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return &buf, nil
}

// handleExport streams the filtered equipment list as an XLSX download.
func (m *Module) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := m.store.ListEquipment(r.Context(), inventory.EquipmentFilter{
		ClientName: q.Get("client_name"),
		Status:     models.EquipmentStatus(q.Get("status")),
		Limit:      1000,
	})
	if err != nil {
		m.storeError(w, err)
		return
	}
	buf, err := Workbook(list)
	if err != nil {
		m.logger.Error("equipment export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build export")
		return
	}

	name := fmt.Sprintf("equipment-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
