package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"gorm.io/datatypes"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/clock"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository"
)

const (
	FeatureMatching    = "feature.matching"
	FeatureSweeper     = "feature.sweeper"
	FeatureRetryPass   = "feature.retry_pass"
	FeatureEventStream = "feature.event_stream"
)

const featurePrefix = "feature."

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureMatching:    true,
		FeatureSweeper:     true,
		FeatureRetryPass:   true,
		FeatureEventStream: true,
	}
}

type Switch struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type SystemSettingsService struct {
	Repo   repository.Repository
	Clock  clock.Clock
	Cipher *SettingsCipher
}

// EnsureDefaultSwitches writes defaults for switches that have never been
// stored. Stored values win.
func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	for key, enabled := range DefaultFeatureSwitches() {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := s.SetEnabled(ctx, key, enabled); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil {
		return fallback
	}
	enabled, ok := item.Bool()
	if !ok {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		UpdatedAt:   nowFrom(s.Clock),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}

// Switches lists every known switch, falling back to defaults for keys that
// were never stored.
func (s *SystemSettingsService) Switches(ctx context.Context) ([]Switch, error) {
	values := DefaultFeatureSwitches()
	if s != nil && s.Repo != nil {
		prefix := featurePrefix
		items, err := s.Repo.ListSystemSettings(ctx, repository.ListSystemSettingsParams{Prefix: &prefix, Limit: 500})
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if enabled, ok := item.Bool(); ok {
				values[item.Key] = enabled
			}
		}
	}
	out := make([]Switch, 0, len(values))
	for name, enabled := range values {
		out = append(out, Switch{Name: name, Enabled: enabled})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SwitchKey maps a short name like "sweeper" to its stored key.
func SwitchKey(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, featurePrefix) {
		return name
	}
	return featurePrefix + name
}

var errSettingsUnavailable = errors.New("system settings are not configured")

// Put stores value as JSON, sealing it first when the key names a
// credential. The returned item carries the redacted value.
func (s *SystemSettingsService) Put(ctx context.Context, key string, value any, description string) (*models.SystemSetting, error) {
	if s == nil || s.Repo == nil {
		return nil, errSettingsUnavailable
	}
	key = strings.TrimSpace(key)
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	stored, err := s.Cipher.Protect(key, raw)
	if err != nil {
		return nil, err
	}
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(stored),
		Description: strings.TrimSpace(description),
		UpdatedAt:   nowFrom(s.Clock),
	}
	if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
		return nil, err
	}
	out := RedactSetting(*item)
	return &out, nil
}

// Get returns the setting with sealed values opened, or nil when the key
// was never stored.
func (s *SystemSettingsService) Get(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.Repo == nil {
		return nil, errSettingsUnavailable
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, strings.TrimSpace(key))
	if err != nil || item == nil {
		return item, err
	}
	item.Value = datatypes.JSON(s.Cipher.Reveal(item.Key, item.Value))
	return item, nil
}

// ResealSecrets moves every sensitive setting onto the current key, sealing
// values that were stored in the clear. It returns how many were rewritten.
func (s *SystemSettingsService) ResealSecrets(ctx context.Context) (int, error) {
	if s == nil || s.Repo == nil || s.Cipher == nil {
		return 0, nil
	}
	items, err := s.Repo.ListSystemSettings(ctx, repository.ListSystemSettingsParams{Limit: 500})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range items {
		sealed, changed, err := s.Cipher.Reseal(item.Key, item.Value)
		if err != nil {
			return n, err
		}
		if !changed {
			continue
		}
		item.Value = datatypes.JSON(sealed)
		item.UpdatedAt = nowFrom(s.Clock)
		if err := s.Repo.UpsertSystemSetting(ctx, &item); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
