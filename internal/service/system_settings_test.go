package service

import (
	"context"
	"testing"

	memoryrepository "github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository/memory"
)

func TestSystemSettings_StoredValueWins(t *testing.T) {
	ctx := context.Background()
	s := &SystemSettingsService{Repo: memoryrepository.New()}
	if err := s.SetEnabled(ctx, FeatureSweeper, false); err != nil {
		t.Fatalf("err=%v", err)
	}
	if err := s.EnsureDefaultSwitches(ctx); err != nil {
		t.Fatalf("err=%v", err)
	}
	if s.IsEnabled(ctx, FeatureSweeper, true) {
		t.Fatalf("sweeper=true want=false")
	}
	if !s.IsEnabled(ctx, FeatureMatching, false) {
		t.Fatalf("matching=false want=true")
	}
}

func TestSystemSettings_Switches(t *testing.T) {
	ctx := context.Background()
	s := &SystemSettingsService{Repo: memoryrepository.New()}
	if err := s.SetEnabled(ctx, SwitchKey("retry_pass"), false); err != nil {
		t.Fatalf("err=%v", err)
	}
	got, err := s.Switches(ctx)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(got) != len(DefaultFeatureSwitches()) {
		t.Fatalf("len=%d want=%d", len(got), len(DefaultFeatureSwitches()))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Name >= got[i].Name {
			t.Fatalf("switches not sorted: %v", got)
		}
	}
	for _, sw := range got {
		if sw.Name == FeatureRetryPass && sw.Enabled {
			t.Fatalf("retry_pass=true want=false")
		}
	}
}

func TestSystemSettings_NilFallsBack(t *testing.T) {
	var s *SystemSettingsService
	if !s.IsEnabled(context.Background(), FeatureMatching, true) {
		t.Fatalf("fallback ignored")
	}
	if err := s.SetEnabled(context.Background(), FeatureMatching, false); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestSwitchKey(t *testing.T) {
	cases := map[string]string{
		"sweeper":          FeatureSweeper,
		"feature.matching": FeatureMatching,
		" ":                "",
	}
	for in, want := range cases {
		if got := SwitchKey(in); got != want {
			t.Fatalf("SwitchKey(%q)=%q want=%q", in, got, want)
		}
	}
}
