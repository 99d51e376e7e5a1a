package engine

import (
	"log/slog"

	"github.com/robfig/cron"

	"github.com/antigravity-dev/agentengine/internal/manifest"
)

// cronDriver wraps a robfig/cron.Cron, auto-enqueuing a task for every
// enabled scheduler.yaml entry on its own cron schedule (spec.md §4.10;
// SPEC_FULL.md §2's robfig/cron wiring). No pack example imports
// robfig/cron directly; this file grounds its use on the library's own
// v1.2.0 README usage (cron.New, AddFunc, Start, Stop).
type cronDriver struct {
	c *cron.Cron
}

// initScheduler starts one cron entry per enabled ScheduleEntry, each
// calling Engine.Enqueue against the workflow's default start node.
// A malformed cron expression fails Engine construction outright rather
// than silently dropping the entry, mirroring manifest.Load's fail-fast
// validation of every other manifest file.
func (e *Engine) initScheduler(m manifest.SchedulerManifest) error {
	if len(m.Entries) == 0 {
		return nil
	}
	c := cron.New()
	for _, entry := range m.Entries {
		if !entry.Enabled {
			continue
		}
		entry := entry
		if err := c.AddFunc(entry.Cron, func() {
			if _, err := e.Enqueue(entry.Input, ""); err != nil {
				e.logger.Error("scheduled enqueue failed", slog.String("schedule_id", entry.ID), slog.String("error", err.Error()))
			}
		}); err != nil {
			return err
		}
	}
	c.Start()
	e.cron = &cronDriver{c: c}
	return nil
}

// Stop halts the cron driver's scheduling loop.
func (d *cronDriver) Stop() {
	d.c.Stop()
}
