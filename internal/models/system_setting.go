package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// SystemSetting is a runtime switch stored as a JSON value, e.g.
// "feature.sweeper" = true.
type SystemSetting struct {
	Key string `gorm:"type:varchar(120);primaryKey" json:"key"`

	Value datatypes.JSON `gorm:"type:jsonb;not null" json:"value"`

	Description string    `gorm:"type:text" json:"description"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;not null;index" json:"updated_at"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}

// Bool decodes the value as a boolean switch.
func (s SystemSetting) Bool() (bool, bool) {
	if len(s.Value) == 0 {
		return false, false
	}
	var out bool
	if err := json.Unmarshal(s.Value, &out); err != nil {
		return false, false
	}
	return out, true
}
