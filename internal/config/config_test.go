package config

import (
	"testing"
	"time"
)

func baseStrategy() StrategyConfig {
	return StrategyConfig{
		DropThreshold:    0.15,
		MonitorWindowMin: 2,
		SubWindow:        5 * time.Second,
		HedgeSumTarget:   0.95,
		Shares:           100,
		FeeRate:          0.002,
		BufferSize:       300,
		TickInterval:     3 * time.Second,
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Market: MarketConfig{SeriesSlug: "bitcoin-up-or-down"}}
	applyDefaults(cfg)
	if cfg.Strategy.DropThreshold != 0.15 {
		t.Fatalf("expected default drop threshold 0.15, got %v", cfg.Strategy.DropThreshold)
	}
	if cfg.Strategy.TickInterval != 3*time.Second {
		t.Fatalf("expected default tick interval 3s, got %v", cfg.Strategy.TickInterval)
	}
	if cfg.Strategy.HedgeSumTarget != 0.95 {
		t.Fatalf("expected default hedge sum target 0.95, got %v", cfg.Strategy.HedgeSumTarget)
	}
	if cfg.WS.URL == "" {
		t.Fatalf("expected ws url default")
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("defaulted config should validate: %v", err)
	}
}

func TestValidateRequiresMarket(t *testing.T) {
	cfg := &Config{Strategy: baseStrategy()}
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing market config")
	}
}

func TestValidateFallbackRequiresTokens(t *testing.T) {
	cfg := &Config{
		Market:   MarketConfig{FallbackSlug: "btc-up-or-down-1h"},
		Strategy: baseStrategy(),
	}
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for fallback without token ids")
	}
}

func TestValidateStrategyRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*StrategyConfig)
	}{
		{"drop threshold too low", func(s *StrategyConfig) { s.DropThreshold = 0.005 }},
		{"drop threshold too high", func(s *StrategyConfig) { s.DropThreshold = 0.31 }},
		{"window too short", func(s *StrategyConfig) { s.MonitorWindowMin = 0 }},
		{"window too long", func(s *StrategyConfig) { s.MonitorWindowMin = 16 }},
		{"sum target too low", func(s *StrategyConfig) { s.HedgeSumTarget = 0.49 }},
		{"sum target too high", func(s *StrategyConfig) { s.HedgeSumTarget = 1.01 }},
		{"non-positive shares", func(s *StrategyConfig) { s.Shares = 0 }},
		{"negative fee rate", func(s *StrategyConfig) { s.FeeRate = -0.001 }},
	}
	for _, tc := range cases {
		s := baseStrategy()
		tc.mutate(&s)
		if err := ValidateStrategy(s); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestValidateStrategyBoundariesInclusive(t *testing.T) {
	s := baseStrategy()
	s.DropThreshold = 0.01
	s.MonitorWindowMin = 15
	s.HedgeSumTarget = 1.0
	if err := ValidateStrategy(s); err != nil {
		t.Fatalf("boundary values should be accepted: %v", err)
	}
	s.DropThreshold = 0.30
	s.MonitorWindowMin = 1
	s.HedgeSumTarget = 0.5
	if err := ValidateStrategy(s); err != nil {
		t.Fatalf("boundary values should be accepted: %v", err)
	}
}
