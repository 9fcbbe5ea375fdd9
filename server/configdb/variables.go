package configdb

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cyclopcam/idlewatch/server/config"
	"github.com/cyclopcam/idlewatch/server/tracking"
	"gorm.io/gorm"
)

// VariableKey is a piece of runtime state, stored as JSON in the 'variable' table
type VariableKey string

const (
	VarPipelineSettings VariableKey = "PipelineSettings"
	VarROI              VariableKey = "ROI"
)

// GetVariable returns the value of the variable, or ("", false) if it has never been set
func (c *ConfigDB) GetVariable(key VariableKey) (string, bool, error) {
	v := Variable{}
	err := c.DB.Where("key = ?", string(key)).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return v.Value, true, nil
}

func (c *ConfigDB) SetVariable(key VariableKey, value string) error {
	return c.DB.Save(&Variable{Key: string(key), Value: value}).Error
}

func (c *ConfigDB) getJSON(key VariableKey, obj any) (bool, error) {
	raw, ok, err := c.GetVariable(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), obj); err != nil {
		return false, fmt.Errorf("Invalid JSON in variable %v: %w", key, err)
	}
	return true, nil
}

func (c *ConfigDB) setJSON(key VariableKey, obj any) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return c.SetVariable(key, string(raw))
}

// LoadPipelineSettings returns the saved settings, laid over 'defaults'.
// If nothing has been saved, or the saved settings are no longer valid, then 'defaults' is returned.
func (c *ConfigDB) LoadPipelineSettings(defaults config.PipelineSettings) (config.PipelineSettings, error) {
	s := defaults
	if ok, err := c.getJSON(VarPipelineSettings, &s); err != nil || !ok {
		return defaults, err
	}
	if err := s.Validate(); err != nil {
		c.Log.Warnf("Ignoring saved pipeline settings: %v", err)
		return defaults, nil
	}
	return s, nil
}

func (c *ConfigDB) SavePipelineSettings(s *config.PipelineSettings) error {
	return c.setJSON(VarPipelineSettings, s)
}

// LoadROI returns the saved ROI, or a disabled ROI if there is none
func (c *ConfigDB) LoadROI() (tracking.ROI, error) {
	roi := tracking.ROI{}
	if ok, err := c.getJSON(VarROI, &roi); err != nil || !ok {
		return tracking.ROI{}, err
	}
	if err := roi.Validate(); err != nil {
		c.Log.Warnf("Ignoring saved ROI: %v", err)
		return tracking.ROI{}, nil
	}
	return roi, nil
}

func (c *ConfigDB) SaveROI(roi *tracking.ROI) error {
	return c.setJSON(VarROI, roi)
}
