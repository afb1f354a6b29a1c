package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
	memoryrepository "github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository/memory"
)

const (
	primaryKey  = "0123456789abcdef0123456789abcdef"
	previousKey = "fedcba9876543210fedcba9876543210"
)

func mustCipher(t *testing.T, key, prev string) *SettingsCipher {
	t.Helper()
	c, err := NewSettingsCipher(key, prev)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	return c
}

func TestSettingsCipher_RoundTrip(t *testing.T) {
	c := mustCipher(t, primaryKey, "")
	raw := []byte(`"hook-signing-secret"`)

	sealed, err := c.Protect("webhook.secret", raw)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if bytes.Contains(sealed, []byte("hook-signing")) {
		t.Fatalf("sealed value leaks plaintext: %s", sealed)
	}
	if got := c.Reveal("webhook.secret", sealed); !bytes.Equal(got, raw) {
		t.Fatalf("reveal=%s want=%s", got, raw)
	}
	if got := c.Reveal("other.secret", sealed); bytes.Equal(got, raw) {
		t.Fatalf("value opened under a different key name")
	}

	plain, err := c.Protect("feature.matching", []byte("true"))
	if err != nil || string(plain) != "true" {
		t.Fatalf("plain=%s err=%v want=true", plain, err)
	}
}

func TestSettingsCipher_Config(t *testing.T) {
	c, err := NewSettingsCipher("", previousKey)
	if err != nil || c != nil {
		t.Fatalf("cipher=%v err=%v want=nil", c, err)
	}
	if _, err := NewSettingsCipher("short", ""); err == nil {
		t.Fatalf("short key accepted")
	}
	var none *SettingsCipher
	if got, _ := none.Protect("paas.api_key", []byte(`"k"`)); string(got) != `"k"` {
		t.Fatalf("nil cipher sealed the value: %s", got)
	}
}

func TestSettingsCipher_ResealAfterRotation(t *testing.T) {
	old := mustCipher(t, previousKey, "")
	sealedOld, err := old.Protect("paas.api_key", []byte(`"k1"`))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	stranger := mustCipher(t, strings.Repeat("z", 32), "")
	sealedUnknown, err := stranger.Protect("paas.api_key", []byte(`"k2"`))
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	c := mustCipher(t, primaryKey, previousKey)
	out, changed, err := c.Reseal("paas.api_key", sealedOld)
	if err != nil || !changed {
		t.Fatalf("changed=%v err=%v want=true", changed, err)
	}
	if got := mustCipher(t, primaryKey, "").Reveal("paas.api_key", out); string(got) != `"k1"` {
		t.Fatalf("resealed=%s want=\"k1\"", got)
	}
	if _, changed, _ := c.Reseal("paas.api_key", out); changed {
		t.Fatalf("value under the primary key was resealed")
	}
	if _, changed, _ := c.Reseal("paas.api_key", sealedUnknown); changed {
		t.Fatalf("value under an unknown key was resealed")
	}
}

func TestSystemSettings_PutSealsAndGetReveals(t *testing.T) {
	ctx := context.Background()
	repo := memoryrepository.New()
	s := &SystemSettingsService{Repo: repo, Cipher: mustCipher(t, primaryKey, "")}

	item, err := s.Put(ctx, "webhook.secret", "s3cret", "signing secret")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if string(item.Value) != RedactedValue {
		t.Fatalf("value=%s want=%s", item.Value, RedactedValue)
	}
	stored, err := repo.GetSystemSettingByKey(ctx, "webhook.secret")
	if err != nil || stored == nil {
		t.Fatalf("stored=%v err=%v", stored, err)
	}
	if bytes.Contains(stored.Value, []byte("s3cret")) {
		t.Fatalf("stored in the clear: %s", stored.Value)
	}
	got, err := s.Get(ctx, "webhook.secret")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if string(got.Value) != `"s3cret"` {
		t.Fatalf("value=%s want=\"s3cret\"", got.Value)
	}
}

func TestSystemSettings_ResealSecrets(t *testing.T) {
	ctx := context.Background()
	repo := memoryrepository.New()
	plain := &SystemSettingsService{Repo: repo}
	if _, err := plain.Put(ctx, "paas.api_key", "k", ""); err != nil {
		t.Fatalf("err=%v", err)
	}
	if err := plain.SetEnabled(ctx, FeatureSweeper, true); err != nil {
		t.Fatalf("err=%v", err)
	}

	s := &SystemSettingsService{Repo: repo, Cipher: mustCipher(t, primaryKey, "")}
	n, err := s.ResealSecrets(ctx)
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v want=1", n, err)
	}
	n, err = s.ResealSecrets(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second pass n=%d err=%v want=0", n, err)
	}
	got, _ := s.Get(ctx, "paas.api_key")
	if string(got.Value) != `"k"` {
		t.Fatalf("value=%s want=\"k\"", got.Value)
	}
	if red := RedactSetting(models.SystemSetting{Key: FeatureSweeper, Value: []byte("true")}); string(red.Value) != "true" {
		t.Fatalf("switch redacted: %s", red.Value)
	}
}
