package configdb

import (
	"time"

	"github.com/cyclopcam/dbh"
)

// Keep at most this many idle alerts. Older alerts are purged as new ones arrive.
const MaxIdleAlerts = 10000

func (c *ConfigDB) AddIdleAlert(alert *IdleAlert) error {
	if err := c.DB.Create(alert).Error; err != nil {
		return err
	}
	if alert.ID%100 == 0 {
		c.purgeOldAlerts()
	}
	return nil
}

func (c *ConfigDB) purgeOldAlerts() {
	if err := c.DB.Exec("DELETE FROM idle_alert WHERE id <= (SELECT MAX(id) FROM idle_alert) - ?", MaxIdleAlerts).Error; err != nil {
		c.Log.Warnf("Failed to purge old idle alerts: %v", err)
	}
}

// ListIdleAlerts returns up to 'limit' of the most recent alerts, newest first
func (c *ConfigDB) ListIdleAlerts(limit int) ([]IdleAlert, error) {
	alerts := []IdleAlert{}
	if err := c.DB.Order("id DESC").Limit(limit).Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

func (c *ConfigDB) StartRun(runID, source string, startedAt time.Time) error {
	run := &PipelineRun{
		RunID:     runID,
		Source:    source,
		StartedAt: dbh.MakeIntTime(startedAt),
	}
	return c.DB.Create(run).Error
}

// FinishRun records the end of a run. runErr is nil when the run was stopped by request,
// or its source was exhausted.
func (c *ConfigDB) FinishRun(runID string, stoppedAt time.Time, frames, idleAlerts int64, runErr error) error {
	updates := map[string]any{
		"stopped_at":  dbh.MakeIntTime(stoppedAt),
		"frames":      frames,
		"idle_alerts": idleAlerts,
	}
	if runErr != nil {
		updates["error"] = runErr.Error()
	}
	return c.DB.Model(&PipelineRun{}).Where("run_id = ?", runID).Updates(updates).Error
}

// ListRuns returns up to 'limit' of the most recent runs, newest first
func (c *ConfigDB) ListRuns(limit int) ([]PipelineRun, error) {
	runs := []PipelineRun{}
	if err := c.DB.Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
