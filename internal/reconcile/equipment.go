package reconcile

import (
	"context"
	"fmt"

	"github.com/HerbHall/alarmdesk/internal/zabbix"
	"github.com/HerbHall/alarmdesk/pkg/models"
	"go.uber.org/zap"
)

// Topics published by the equipment pass.
const (
	TopicEquipmentCreated = "equipment.created"
	TopicEquipmentOffline = "equipment.offline"
)

// hostStatus maps host.get status: "0" (monitored) is online, anything else offline.
func hostStatus(code string) models.EquipmentStatus {
	if code == "0" {
		return models.EquipmentOnline
	}
	return models.EquipmentOffline
}

// SyncEquipment mirrors the upstream host list. New hosts are created;
// known hosts get status and last_seen refreshed and nothing else. Every
// local host missing from the snapshot is then marked offline, never deleted.
//
// An upstream failure aborts before any write. A store failure aborts the
// pass without undoing earlier writes.
func (e *Engine) SyncEquipment(ctx context.Context) (*Result, error) {
	if e.upstream == nil {
		return nil, ErrNotConfigured
	}
	res := &Result{Kind: KindEquipment, StartedAt: e.now()}

	hosts, err := e.upstream.ListHosts(ctx, e.opts.HostFilter)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}

	seen := make([]string, 0, len(hosts))
	for _, h := range hosts {
		seen = append(seen, h.HostID)
		if err := e.syncHost(ctx, h, res); err != nil {
			if err := e.recordFailure(res, h.HostID, err); err != nil {
				return nil, fmt.Errorf("sync host %s: %w", h.HostID, err)
			}
			continue
		}
		res.Synced++
	}

	n, err := e.store.MarkEquipmentOfflineExcept(ctx, seen)
	if err != nil {
		return nil, err
	}
	res.MarkedOffline = n
	if n > 0 {
		e.notify(ctx, TopicEquipmentOffline, OfflinePayload{Count: n})
	}

	res.FinishedAt = e.now()
	e.logger.Info("equipment sync completed",
		zap.Int("synced", res.Synced),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int64("marked_offline", res.MarkedOffline),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (e *Engine) syncHost(ctx context.Context, h zabbix.Host, res *Result) error {
	if h.HostID == "" {
		return fmt.Errorf("host %q has no hostid", h.Name)
	}
	now := e.now()

	existing, ok, err := e.resolver.Equipment(ctx, h.HostID)
	if err != nil {
		return err
	}
	if ok {
		existing.Status = hostStatus(h.Status)
		existing.LastSeen = &now
		if err := e.store.UpdateEquipment(ctx, existing); err != nil {
			return err
		}
		res.Updated++
		return nil
	}

	name := h.Name
	if name == "" {
		name = h.Host
	}
	eq := &models.Equipment{
		ZabbixHostID:  h.HostID,
		Name:          name,
		Hostname:      h.Host,
		IPAddress:     h.FirstIP(),
		EquipmentType: models.EquipmentTypeUnknown,
		Status:        hostStatus(h.Status),
		LastSeen:      &now,
	}
	if err := e.store.CreateEquipment(ctx, eq); err != nil {
		return err
	}
	res.Created++
	e.notify(ctx, TopicEquipmentCreated, eq)
	return nil
}

// OfflinePayload accompanies TopicEquipmentOffline.
type OfflinePayload struct {
	Count int64 `json:"count"`
}
