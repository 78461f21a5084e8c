package reconcile

import (
	"context"
	"errors"

	"github.com/HerbHall/alarmdesk/internal/inventory"
	"github.com/HerbHall/alarmdesk/pkg/models"
)

// Resolver maps upstream identifiers to local records by exact match.
// A miss is reported as found=false with a nil error; only store failures
// are errors.
type Resolver struct {
	store Store
}

// NewResolver returns a Resolver over store.
func NewResolver(store Store) Resolver {
	return Resolver{store: store}
}

// Equipment resolves a Zabbix host id.
func (r Resolver) Equipment(ctx context.Context, hostID string) (*models.Equipment, bool, error) {
	if hostID == "" {
		return nil, false, nil
	}
	e, err := r.store.FindEquipmentByHostID(ctx, hostID)
	return found(e, err)
}

// Alarm resolves a Zabbix event id.
func (r Resolver) Alarm(ctx context.Context, eventID string) (*models.Alarm, bool, error) {
	if eventID == "" {
		return nil, false, nil
	}
	a, err := r.store.FindAlarmByEventID(ctx, eventID)
	return found(a, err)
}

func found[T any](v *T, err error) (*T, bool, error) {
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	case v == nil:
		return nil, false, nil
	}
	return v, true, nil
}
