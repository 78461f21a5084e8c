package reconcile

import (
	"context"
	"strings"

	"github.com/HerbHall/alarmdesk/pkg/models"
	"github.com/codeGROOVE-dev/retry"
	"go.uber.org/zap"
)

// Acknowledge marks alarm id acknowledged by actor and then mirrors the
// acknowledgement to Zabbix. The local write is authoritative: mirroring is
// retried within Options.AckTimeout and any failure is logged, never returned.
// A missing alarm yields an error matching inventory.ErrNotFound.
func (e *Engine) Acknowledge(ctx context.Context, id int64, actor string) (*models.Alarm, error) {
	a, err := e.store.GetAlarm(ctx, id)
	if err != nil {
		return nil, err
	}

	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = "system"
	}
	status := models.AlarmAcknowledged
	models.AlarmUpdate{Status: &status, AcknowledgedBy: &actor}.Apply(a, e.now())
	if err := e.store.UpdateAlarm(ctx, a); err != nil {
		return nil, err
	}
	e.notify(ctx, TopicAlarmAcknowledged, a)

	e.mirrorAcknowledge(ctx, a, actor)
	return a, nil
}

func (e *Engine) mirrorAcknowledge(ctx context.Context, a *models.Alarm, actor string) {
	if e.acker == nil || a.ZabbixEventID == "" {
		return
	}
	// The local write has landed; a caller hanging up must not cut the
	// mirror short, but the mirror must not outlive AckTimeout either.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.AckTimeout)
	defer cancel()

	note := "Acknowledged by " + actor
	err := retry.Do(func() error {
		_, err := e.acker.AcknowledgeEvent(ctx, a.ZabbixEventID, note)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(uint(e.opts.AckAttempts)),
		retry.Delay(e.opts.AckDelay),
		retry.MaxDelay(4*e.opts.AckDelay),
	)
	if err != nil {
		e.logger.Warn("failed to mirror acknowledgement to zabbix",
			zap.Int64("alarm_id", a.ID),
			zap.String("event_id", a.ZabbixEventID),
			zap.Error(err),
		)
	}
}

// Resolve marks alarm id resolved. Resolution is not pushed upstream; it is
// expected to arrive from Zabbix through the alarm pass.
func (e *Engine) Resolve(ctx context.Context, id int64) (*models.Alarm, error) {
	a, err := e.store.GetAlarm(ctx, id)
	if err != nil {
		return nil, err
	}

	status := models.AlarmResolved
	models.AlarmUpdate{Status: &status}.Apply(a, e.now())
	if err := e.store.UpdateAlarm(ctx, a); err != nil {
		return nil, err
	}
	e.notify(ctx, TopicAlarmResolved, a)
	return a, nil
}
