package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/HerbHall/alarmdesk/internal/zabbix"
	"github.com/HerbHall/alarmdesk/pkg/models"
	"go.uber.org/zap"
)

// Topics published for alarm state changes.
const (
	TopicAlarmCreated      = "alarm.created"
	TopicAlarmResolved     = "alarm.resolved"
	TopicAlarmAcknowledged = "alarm.acknowledged"
)

// SyncAlarms mirrors upstream events from the lookback window ending now.
//
// A known event only ever moves forward: an unresolved alarm whose event
// has cleared becomes resolved, and nothing else changes. An unknown event
// becomes a new alarm on the equipment it belongs to, active if the event
// is a problem and resolved if it has already cleared. Events for hosts not
// in the inventory are skipped.
func (e *Engine) SyncAlarms(ctx context.Context) (*Result, error) {
	if e.upstream == nil {
		return nil, ErrNotConfigured
	}
	res := &Result{Kind: KindAlarms, StartedAt: e.now()}

	until := res.StartedAt
	events, err := e.upstream.ListEvents(ctx, until.Add(-e.opts.Lookback), until, nil)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	for _, ev := range events {
		if err := e.syncEvent(ctx, ev, res); err != nil {
			if err := e.recordFailure(res, ev.EventID, err); err != nil {
				return nil, fmt.Errorf("sync event %s: %w", ev.EventID, err)
			}
			continue
		}
		res.Synced++
	}

	res.FinishedAt = e.now()
	e.logger.Info("alarm sync completed",
		zap.Int("synced", res.Synced),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (e *Engine) syncEvent(ctx context.Context, ev zabbix.Event, res *Result) error {
	if ev.EventID == "" {
		return fmt.Errorf("event %q has no eventid", ev.Name)
	}

	existing, ok, err := e.resolver.Alarm(ctx, ev.EventID)
	if err != nil {
		return err
	}
	if ok {
		if existing.Status == models.AlarmResolved || ev.Value != zabbix.ValueOK {
			return nil
		}
		now := e.now()
		existing.Status = models.AlarmResolved
		existing.ResolvedAt = &now
		if err := e.store.UpdateAlarm(ctx, existing); err != nil {
			return err
		}
		res.Updated++
		e.notify(ctx, TopicAlarmResolved, existing)
		return nil
	}

	hostID := ev.HostID()
	eq, ok, err := e.resolver.Equipment(ctx, hostID)
	if err != nil {
		return err
	}
	if !ok {
		res.Skipped++
		e.logger.Debug("skipping event for unknown host",
			zap.String("event_id", ev.EventID),
			zap.String("host_id", hostID),
		)
		return nil
	}

	a := newAlarm(ev, eq, e.now())
	if err := e.store.CreateAlarm(ctx, a); err != nil {
		return err
	}
	res.Created++
	e.notify(ctx, TopicAlarmCreated, a)
	return nil
}

// newAlarm builds the local alarm for a first-seen event.
func newAlarm(ev zabbix.Event, eq *models.Equipment, now time.Time) *models.Alarm {
	c := Classify(ev.Priority())
	title := ev.Name
	if title == "" {
		title = "Zabbix Event"
	}
	triggerID := ev.ObjectID
	hostID := eq.ZabbixHostID

	a := &models.Alarm{
		ZabbixEventID:   ev.EventID,
		EquipmentID:     eq.ID,
		AlarmType:       c.Type,
		Severity:        c.Severity,
		Title:           title,
		Description:     "Event from Zabbix: " + ev.Name,
		Status:          models.AlarmActive,
		ZabbixTriggerID: &triggerID,
		ZabbixHostID:    &hostID,
	}
	if ev.Value != zabbix.ValueProblem {
		a.Status = models.AlarmResolved
		a.ResolvedAt = &now
	}
	return a
}
