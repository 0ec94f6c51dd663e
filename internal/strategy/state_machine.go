package strategy

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StateMachine drives one round's trade cycle through its phases. The engine
// is the single writer; duplicate or out-of-order events caused by timer
// re-entrancy are logged and ignored, never surfaced as errors.
type StateMachine struct {
	log        *zap.Logger
	now        func() time.Time
	newID      func() string
	checkpoint func(TradeCycle)
	completed  func(TradeCycle)

	mu    sync.Mutex
	cycle *TradeCycle
}

func NewStateMachine(log *zap.Logger) *StateMachine {
	return &StateMachine{
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// OnCheckpoint registers the persistence hook fired at cycle creation, leg
// fills, completion and round expiry. The hook receives a deep copy.
func (s *StateMachine) OnCheckpoint(fn func(TradeCycle)) {
	s.checkpoint = fn
}

// OnCompleted registers the callback invoked exactly once per completed cycle.
func (s *StateMachine) OnCompleted(fn func(TradeCycle)) {
	s.completed = fn
}

// Status is IDLE when no cycle exists.
func (s *StateMachine) Status() CycleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycle == nil {
		return StatusIdle
	}
	return s.cycle.Status
}

// Cycle returns a copy of the current cycle, if any.
func (s *StateMachine) Cycle() (TradeCycle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycle == nil {
		return TradeCycle{}, false
	}
	return s.cycle.Clone(), true
}

// StartNewCycle opens a fresh WATCHING cycle for the round. Allowed from IDLE
// and from the COMPLETED/ROUND_EXPIRED terminals.
func (s *StateMachine) StartNewCycle(roundSlug string) bool {
	s.mu.Lock()
	if s.cycle != nil {
		switch s.cycle.Status {
		case StatusIdle, StatusCompleted, StatusRoundExpired:
		default:
			status := s.cycle.Status
			s.mu.Unlock()
			s.logInvalid("startNewCycle", status)
			return false
		}
	}
	now := s.now()
	s.cycle = &TradeCycle{
		ID:        s.newID(),
		RoundSlug: roundSlug,
		Status:    StatusWatching,
		CreatedAt: now,
		UpdatedAt: now,
	}
	snapshot := s.cycle.Clone()
	s.mu.Unlock()
	s.fireCheckpoint(snapshot)
	return true
}

// OnDumpDetected moves WATCHING to LEG1_PENDING. The transition completes
// before the engine hands the order to the executor, so a concurrent tick
// observes the pending phase and takes no action.
func (s *StateMachine) OnDumpDetected(sig DumpSignal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycle == nil || s.cycle.Status != StatusWatching {
		s.logInvalidLocked("onDumpDetected")
		return false
	}
	s.cycle.Status = StatusLeg1Pending
	s.cycle.UpdatedAt = s.now()
	return true
}

func (s *StateMachine) OnLeg1Filled(leg LegInfo) bool {
	s.mu.Lock()
	if s.cycle == nil || s.cycle.Status != StatusLeg1Pending {
		s.mu.Unlock()
		s.logInvalid("onLeg1Filled", s.Status())
		return false
	}
	filled := leg
	s.cycle.Leg1 = &filled
	s.cycle.Status = StatusLeg1Filled
	s.cycle.UpdatedAt = s.now()
	snapshot := s.cycle.Clone()
	s.mu.Unlock()
	s.fireCheckpoint(snapshot)
	return true
}

func (s *StateMachine) OnLeg2Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycle == nil || s.cycle.Status != StatusLeg1Filled {
		s.logInvalidLocked("onLeg2Started")
		return false
	}
	s.cycle.Status = StatusLeg2Pending
	s.cycle.UpdatedAt = s.now()
	return true
}

// OnLeg2Filled closes the cycle: leg 2 recorded, profit figures attached, the
// completion callback fired exactly once, and a checkpoint persisted.
func (s *StateMachine) OnLeg2Filled(leg LegInfo, profit ProfitBreakdown) bool {
	s.mu.Lock()
	if s.cycle == nil || s.cycle.Status != StatusLeg2Pending {
		s.mu.Unlock()
		s.logInvalid("onLeg2Filled", s.Status())
		return false
	}
	filled := leg
	gross := profit.Gross
	net := profit.Net
	s.cycle.Leg2 = &filled
	s.cycle.Profit = &gross
	s.cycle.GuaranteedProfit = &net
	s.cycle.Status = StatusCompleted
	s.cycle.UpdatedAt = s.now()
	snapshot := s.cycle.Clone()
	s.mu.Unlock()
	s.fireCheckpoint(snapshot)
	if s.completed != nil {
		s.completed(snapshot)
	}
	return true
}

// OnRoundExpired ends any non-terminal cycle. The caller computes the realized
// loss when leg 1 is filled and leg 2 is not.
func (s *StateMachine) OnRoundExpired() bool {
	s.mu.Lock()
	if s.cycle == nil || s.cycle.Status.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.cycle.Status = StatusRoundExpired
	s.cycle.UpdatedAt = s.now()
	snapshot := s.cycle.Clone()
	s.mu.Unlock()
	s.fireCheckpoint(snapshot)
	return true
}

// OnError records the failure on the cycle and parks the machine in ERROR.
func (s *StateMachine) OnError(err error) bool {
	s.mu.Lock()
	if s.cycle == nil {
		s.mu.Unlock()
		return false
	}
	if err != nil {
		s.cycle.Error = err.Error()
	}
	s.cycle.Status = StatusError
	s.cycle.UpdatedAt = s.now()
	snapshot := s.cycle.Clone()
	s.mu.Unlock()
	s.fireCheckpoint(snapshot)
	return true
}

// Reset clears the cycle reference and returns to IDLE. The persisted record
// is left in the store untouched.
func (s *StateMachine) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycle = nil
}

func (s *StateMachine) fireCheckpoint(cycle TradeCycle) {
	if s.checkpoint != nil {
		s.checkpoint(cycle)
	}
}

func (s *StateMachine) logInvalid(event string, status CycleStatus) {
	if s.log != nil {
		s.log.Warn("ignored invalid cycle transition",
			zap.String("event", event),
			zap.String("status", string(status)),
		)
	}
}

func (s *StateMachine) logInvalidLocked(event string) {
	status := StatusIdle
	if s.cycle != nil {
		status = s.cycle.Status
	}
	if s.log != nil {
		s.log.Warn("ignored invalid cycle transition",
			zap.String("event", event),
			zap.String("status", string(status)),
		)
	}
}
