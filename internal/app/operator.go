package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"poly-dump-hedge/internal/alerts"
	"poly-dump-hedge/internal/strategy"

	"go.uber.org/zap"
)

const operatorOffsetKey = "telegram:operator:last_update_id"

type operatorMeta struct {
	UpdateID int64
	UserID   int64
	Username string
	ChatID   int64
	Raw      string
}

type operatorAuditEvent struct {
	UpdateID        int64     `json:"update_id"`
	Time            time.Time `json:"time"`
	Action          string    `json:"action"`
	Command         string    `json:"command"`
	UserID          int64     `json:"user_id"`
	Username        string    `json:"username,omitempty"`
	ChatID          int64     `json:"chat_id"`
	PausedBefore    bool      `json:"paused_before"`
	PausedAfter     bool      `json:"paused_after"`
	ThresholdBefore float64   `json:"threshold_before,omitempty"`
	ThresholdAfter  float64   `json:"threshold_after,omitempty"`
}

func (a *App) startOperator(ctx context.Context) {
	if a.cfg == nil || a.telegram == nil || a.log == nil {
		return
	}
	if !a.cfg.Telegram.OperatorEnabled {
		return
	}
	chatID, err := a.telegram.ChatIDInt()
	if err != nil {
		a.log.Warn("telegram operator disabled: invalid chat_id", zap.Error(err))
		return
	}
	pollInterval := a.cfg.Telegram.OperatorPollInterval
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	allowedUsers := make(map[int64]struct{}, len(a.cfg.Telegram.OperatorAllowedUserIDs))
	for _, id := range a.cfg.Telegram.OperatorAllowedUserIDs {
		allowedUsers[id] = struct{}{}
	}
	go a.operatorLoop(ctx, chatID, allowedUsers, pollInterval)
}

func (a *App) operatorLoop(ctx context.Context, chatID int64, allowedUsers map[int64]struct{}, pollInterval time.Duration) {
	offset := a.loadOperatorOffset(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		updates, err := a.telegram.GetUpdates(ctx, offset, pollInterval)
		if err != nil {
			a.logOperatorError(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		if a.clearOperatorWarned() {
			a.log.Info("telegram operator recovered")
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
				a.saveOperatorOffset(ctx, offset)
			}
			a.handleOperatorUpdate(ctx, upd, chatID, allowedUsers)
		}
	}
}

func (a *App) handleOperatorUpdate(ctx context.Context, upd alerts.Update, chatID int64, allowedUsers map[int64]struct{}) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	if msg.Chat == nil || msg.From == nil {
		return
	}
	if msg.Chat.ID != chatID {
		return
	}
	if len(allowedUsers) > 0 {
		if _, ok := allowedUsers[msg.From.ID]; !ok {
			return
		}
	}
	cmd, args, ok := parseOperatorCommand(msg.Text)
	if !ok {
		return
	}
	meta := operatorMeta{
		UpdateID: upd.UpdateID,
		UserID:   msg.From.ID,
		Username: msg.From.Username,
		ChatID:   msg.Chat.ID,
		Raw:      msg.Text,
	}
	resp, err := a.handleOperatorCommand(ctx, cmd, args, meta)
	if err != nil {
		resp = fmt.Sprintf("command failed: %v", err)
	}
	if resp == "" {
		return
	}
	if err := a.telegram.Send(ctx, resp); err != nil {
		a.log.Warn("operator response failed", zap.Error(err))
	}
}

func parseOperatorCommand(text string) (string, []string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", nil, false
	}
	if !strings.HasPrefix(trimmed, "/") {
		return "", nil, false
	}
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return "", nil, false
	}
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	return cmd, fields[1:], true
}

func (a *App) handleOperatorCommand(ctx context.Context, cmd string, args []string, meta operatorMeta) (string, error) {
	switch cmd {
	case "status":
		return a.operatorStatus(), nil
	case "pause":
		before := a.isPaused()
		after := a.setPaused(true)
		a.auditOperatorEvent(ctx, operatorAuditEvent{
			UpdateID:     meta.UpdateID,
			Time:         time.Now().UTC(),
			Action:       "pause",
			Command:      meta.Raw,
			UserID:       meta.UserID,
			Username:     meta.Username,
			ChatID:       meta.ChatID,
			PausedBefore: before,
			PausedAfter:  after,
		})
		if !before {
			return "trading paused", nil
		}
		return "trading already paused", nil
	case "resume":
		before := a.isPaused()
		after := a.setPaused(false)
		a.auditOperatorEvent(ctx, operatorAuditEvent{
			UpdateID:     meta.UpdateID,
			Time:         time.Now().UTC(),
			Action:       "resume",
			Command:      meta.Raw,
			UserID:       meta.UserID,
			Username:     meta.Username,
			ChatID:       meta.ChatID,
			PausedBefore: before,
			PausedAfter:  after,
		})
		if before {
			return "trading resumed", nil
		}
		return "trading already active", nil
	case "config":
		return a.handleConfigCommand(ctx, args, meta)
	case "reset":
		status := a.machine.Status()
		if status != strategy.StatusError {
			return fmt.Sprintf("reset only applies to ERROR, current status is %s", status), nil
		}
		a.machine.Reset()
		a.auditOperatorEvent(ctx, operatorAuditEvent{
			UpdateID: meta.UpdateID,
			Time:     time.Now().UTC(),
			Action:   "reset",
			Command:  meta.Raw,
			UserID:   meta.UserID,
			Username: meta.Username,
			ChatID:   meta.ChatID,
		})
		return "cycle reset, machine idle", nil
	case "help":
		return operatorHelpText(), nil
	default:
		return operatorHelpText(), nil
	}
}

func (a *App) handleConfigCommand(ctx context.Context, args []string, meta operatorMeta) (string, error) {
	if len(args) == 0 || strings.EqualFold(args[0], "show") {
		return a.configStatus(), nil
	}
	if !strings.EqualFold(args[0], "set") {
		return "", errors.New("unknown config command: use /config show|set")
	}
	overrides, err := parseConfigOverrides(args[1:])
	if err != nil {
		return "", err
	}
	thresholdBefore, windowBefore := a.detector.Config()
	threshold := thresholdBefore
	windowMin := int(windowBefore / time.Minute)
	for key, val := range overrides {
		switch key {
		case "drop_threshold":
			parsed, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return "", fmt.Errorf("drop_threshold: %w", err)
			}
			threshold = parsed
		case "monitor_window_min":
			parsed, err := strconv.Atoi(val)
			if err != nil {
				return "", fmt.Errorf("monitor_window_min: %w", err)
			}
			windowMin = parsed
		default:
			return "", fmt.Errorf("unknown config key: %s", key)
		}
	}
	if err := a.detector.UpdateConfig(threshold, windowMin); err != nil {
		return "", err
	}
	a.auditOperatorEvent(ctx, operatorAuditEvent{
		UpdateID:        meta.UpdateID,
		Time:            time.Now().UTC(),
		Action:          "config_set",
		Command:         meta.Raw,
		UserID:          meta.UserID,
		Username:        meta.Username,
		ChatID:          meta.ChatID,
		ThresholdBefore: thresholdBefore,
		ThresholdAfter:  threshold,
	})
	return fmt.Sprintf("config updated: drop_threshold=%.4f monitor_window_min=%d", threshold, windowMin), nil
}

func parseConfigOverrides(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, errors.New("config set requires key=value pairs")
	}
	out := make(map[string]string)
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config setting: %s", arg)
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		val := strings.TrimSpace(parts[1])
		if key == "" || val == "" {
			return nil, fmt.Errorf("invalid config setting: %s", arg)
		}
		out[key] = val
	}
	return out, nil
}

func (a *App) operatorStatus() string {
	status := a.machine.Status()
	round := a.tracker.Slug()
	if round == "" {
		round = "none"
	}
	secondsLeft := a.tracker.SecondsRemaining()
	lines := []string{
		fmt.Sprintf("status: %s", status),
		fmt.Sprintf("paused: %t", a.isPaused()),
		fmt.Sprintf("dry_run: %t", a.cfg.Strategy.DryRun),
		fmt.Sprintf("round: %s", round),
		fmt.Sprintf("round_seconds_left: %.0f", secondsLeft),
		fmt.Sprintf("feed_connected: %t", a.feedUp()),
		fmt.Sprintf("fallback_round: %t", a.tracker.UsingFallback()),
	}
	if latest, ok := a.buffer.Latest(); ok {
		lines = append(lines,
			fmt.Sprintf("up_ask: %.3f", latest.Up.Ask),
			fmt.Sprintf("down_ask: %.3f", latest.Down.Ask),
		)
	}
	if cycle, ok := a.machine.Cycle(); ok && cycle.Leg1 != nil {
		lines = append(lines, fmt.Sprintf("leg1: %s %d @ %.3f", cycle.Leg1.Side, cycle.Leg1.Shares, cycle.Leg1.Price))
	}
	return strings.Join(lines, "\n")
}

func (a *App) configStatus() string {
	threshold, window := a.detector.Config()
	return strings.Join([]string{
		fmt.Sprintf("drop_threshold: %.4f", threshold),
		fmt.Sprintf("monitor_window_min: %d", int(window/time.Minute)),
		fmt.Sprintf("hedge_sum_target: %.4f", a.calc.SumTarget),
		fmt.Sprintf("fee_rate: %.4f", a.calc.FeeRate),
		fmt.Sprintf("shares: %d", a.cfg.Strategy.Shares),
	}, "\n")
}

func operatorHelpText() string {
	return strings.Join([]string{
		"commands:",
		"/status - current bot status",
		"/pause - pause trading actions",
		"/resume - resume trading actions",
		"/config show - show active strategy settings",
		"/config set key=value ... - update settings (keys: drop_threshold, monitor_window_min)",
		"/reset - clear an ERROR cycle back to idle",
	}, "\n")
}

func (a *App) logOperatorError(err error) {
	if a.log == nil {
		return
	}
	a.opsMu.Lock()
	warned := a.operatorWarned
	a.operatorWarned = true
	a.opsMu.Unlock()
	if warned {
		return
	}
	a.log.Warn("telegram operator failed", zap.Error(err))
}

func (a *App) clearOperatorWarned() bool {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	was := a.operatorWarned
	a.operatorWarned = false
	return was
}

func (a *App) loadOperatorOffset(ctx context.Context) int64 {
	if a.store == nil {
		return 0
	}
	raw, ok, err := a.store.Get(ctx, operatorOffsetKey)
	if err != nil || !ok {
		return 0
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || val < 0 {
		return 0
	}
	return val
}

func (a *App) saveOperatorOffset(ctx context.Context, offset int64) {
	if a.store == nil {
		return
	}
	_ = a.store.Set(ctx, operatorOffsetKey, strconv.FormatInt(offset, 10))
}

func (a *App) auditOperatorEvent(ctx context.Context, event operatorAuditEvent) {
	if a.store == nil {
		return
	}
	key := fmt.Sprintf("ops:audit:%d:%d", time.Now().UTC().UnixNano(), event.UpdateID)
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = a.store.Set(ctx, key, string(payload))
}
