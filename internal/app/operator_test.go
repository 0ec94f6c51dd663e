package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"poly-dump-hedge/internal/strategy"
)

func TestParseOperatorCommand(t *testing.T) {
	cmd, args, ok := parseOperatorCommand("/config set drop_threshold=0.2")
	if !ok || cmd != "config" {
		t.Fatalf("expected config command, got %q ok=%t", cmd, ok)
	}
	if len(args) != 2 || args[0] != "set" || args[1] != "drop_threshold=0.2" {
		t.Fatalf("unexpected args: %v", args)
	}
	if _, _, ok := parseOperatorCommand("hello"); ok {
		t.Fatalf("expected plain text ignored")
	}
	if _, _, ok := parseOperatorCommand("  "); ok {
		t.Fatalf("expected blank input ignored")
	}
	cmd, _, ok = parseOperatorCommand("/STATUS")
	if !ok || cmd != "status" {
		t.Fatalf("expected case-insensitive command, got %q", cmd)
	}
}

func TestOperatorPauseResume(t *testing.T) {
	a, store, _ := newTestApp(t, &stubTrader{})
	ctx := context.Background()
	meta := operatorMeta{UpdateID: 1, UserID: 7, ChatID: 99, Raw: "/pause"}

	resp, err := a.handleOperatorCommand(ctx, "pause", nil, meta)
	if err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if resp != "trading paused" || !a.isPaused() {
		t.Fatalf("expected paused state, got %q paused=%t", resp, a.isPaused())
	}
	resp, err = a.handleOperatorCommand(ctx, "pause", nil, meta)
	if err != nil || resp != "trading already paused" {
		t.Fatalf("expected idempotent pause, got %q err=%v", resp, err)
	}
	resp, err = a.handleOperatorCommand(ctx, "resume", nil, meta)
	if err != nil || resp != "trading resumed" || a.isPaused() {
		t.Fatalf("expected resumed state, got %q err=%v", resp, err)
	}

	audits, err := store.List(ctx, "ops:audit:")
	if err != nil {
		t.Fatalf("audit list failed: %v", err)
	}
	if len(audits) != 3 {
		t.Fatalf("expected 3 audit records, got %d", len(audits))
	}
}

func TestOperatorConfigSet(t *testing.T) {
	a, _, _ := newTestApp(t, &stubTrader{})
	ctx := context.Background()
	meta := operatorMeta{UpdateID: 2, UserID: 7, ChatID: 99, Raw: "/config set drop_threshold=0.2"}

	resp, err := a.handleOperatorCommand(ctx, "config", []string{"set", "drop_threshold=0.2", "monitor_window_min=5"}, meta)
	if err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	if !strings.Contains(resp, "drop_threshold=0.2000") {
		t.Fatalf("unexpected response: %q", resp)
	}
	threshold, window := a.detector.Config()
	if threshold != 0.2 || window != 5*time.Minute {
		t.Fatalf("expected detector updated, got %v %v", threshold, window)
	}
}

func TestOperatorConfigSetRejectsOutOfRange(t *testing.T) {
	a, _, _ := newTestApp(t, &stubTrader{})
	ctx := context.Background()
	meta := operatorMeta{UpdateID: 3}

	if _, err := a.handleOperatorCommand(ctx, "config", []string{"set", "drop_threshold=0.5"}, meta); err == nil {
		t.Fatalf("expected out-of-range threshold rejected")
	}
	if _, err := a.handleOperatorCommand(ctx, "config", []string{"set", "monitor_window_min=20"}, meta); err == nil {
		t.Fatalf("expected out-of-range window rejected")
	}
	if _, err := a.handleOperatorCommand(ctx, "config", []string{"set", "unknown=1"}, meta); err == nil {
		t.Fatalf("expected unknown key rejected")
	}
	threshold, window := a.detector.Config()
	if threshold != 0.15 || window != 2*time.Minute {
		t.Fatalf("expected config untouched after failures, got %v %v", threshold, window)
	}
}

func TestOperatorConfigShow(t *testing.T) {
	a, _, _ := newTestApp(t, &stubTrader{})
	resp, err := a.handleOperatorCommand(context.Background(), "config", []string{"show"}, operatorMeta{})
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{"drop_threshold", "monitor_window_min", "hedge_sum_target", "shares"} {
		if !strings.Contains(resp, want) {
			t.Fatalf("expected %q in config show, got %q", want, resp)
		}
	}
}

func TestOperatorResetOnlyFromError(t *testing.T) {
	a, _, round := newTestApp(t, &stubTrader{})
	ctx := context.Background()

	resp, err := a.handleOperatorCommand(ctx, "reset", nil, operatorMeta{})
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if !strings.Contains(resp, "only applies to ERROR") {
		t.Fatalf("expected reset refused outside ERROR, got %q", resp)
	}

	a.machine.StartNewCycle(round.Slug)
	a.machine.OnDumpDetected(strategy.DumpSignal{Side: "UP"})
	a.failCycle("leg1", context.DeadlineExceeded)
	if got := a.machine.Status(); got != strategy.StatusError {
		t.Fatalf("expected ERROR, got %s", got)
	}
	resp, err = a.handleOperatorCommand(ctx, "reset", nil, operatorMeta{})
	if err != nil || !strings.Contains(resp, "reset") {
		t.Fatalf("expected reset accepted, got %q err=%v", resp, err)
	}
	if got := a.machine.Status(); got != strategy.StatusIdle {
		t.Fatalf("expected IDLE after reset, got %s", got)
	}
}

func TestOperatorStatusReportsCore(t *testing.T) {
	a, _, _ := newTestApp(t, &stubTrader{})
	a.tick(context.Background())
	status := a.operatorStatus()
	for _, want := range []string{"status: WATCHING", "paused: false", "round: btc-1h-0900", "feed_connected: true"} {
		if !strings.Contains(status, want) {
			t.Fatalf("expected %q in status, got:\n%s", want, status)
		}
	}
}

func TestOperatorHelpListsCommands(t *testing.T) {
	help := operatorHelpText()
	for _, cmd := range []string{"/status", "/pause", "/resume", "/config", "/reset"} {
		if !strings.Contains(help, cmd) {
			t.Fatalf("expected %s in help", cmd)
		}
	}
}
