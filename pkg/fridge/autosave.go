package fridge

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// Autosaver periodically persists the registry on a cron schedule.
type Autosaver struct {
	registry *Registry
	path     string
	schedule string
	onError  func(error)
}

// NewAutosaver validates the cron expression up front and returns a
// runner that saves the registry each time the schedule comes due.
func NewAutosaver(registry *Registry, path, schedule string, onError func(error)) (*Autosaver, error) {
	if !gronx.New().IsValid(schedule) {
		return nil, fmt.Errorf("invalid autosave schedule %q", schedule)
	}
	return &Autosaver{
		registry: registry,
		path:     path,
		schedule: schedule,
		onError:  onError,
	}, nil
}

// Run blocks until ctx is cancelled, checking due-ness once a minute.
// A final save happens on shutdown so no mutations are lost.
func (a *Autosaver) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := a.registry.SaveFile(a.path); err != nil && a.onError != nil {
				a.onError(err)
			}
			return
		case tick := <-ticker.C:
			due, err := gronx.New().IsDue(a.schedule, tick)
			if err != nil || !due {
				continue
			}
			if err := a.registry.SaveFile(a.path); err != nil && a.onError != nil {
				a.onError(err)
			}
		}
	}
}
