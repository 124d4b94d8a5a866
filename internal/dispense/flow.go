// Package dispense implements the confirmation-code state machine that
// stands between a user and the coffee machine.
//
// One flow per user:
//
//	Idle → Requesting → CodeDisplayed → Submitting → Confirmed
//	                        │                  └───→ Rejected
//	                        ├───→ Expired (countdown hit zero)
//	                        └───→ Cancelled (explicit user cancel)
//
// Every outcome other than CodeDisplayed returns the user to Idle; a
// rejected or failed attempt always requires a fresh sequence from the top.
package dispense

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cafezao-da-computacao/cafezao/internal/dispenser"
	"github.com/cafezao-da-computacao/cafezao/internal/model"
)

// State identifies where a user's dispense attempt currently is.
type State string

const (
	StateIdle          State = "idle"
	StateRequesting    State = "requesting"
	StateCodeDisplayed State = "code_displayed"
	StateSubmitting    State = "submitting"
	StateConfirmed     State = "confirmed"
	StateRejected      State = "rejected"
	StateExpired       State = "expired"
	StateCancelled     State = "cancelled"
)

var (
	// ErrAttemptInProgress is returned when a user starts a second flow
	// while one is already live. Two rapid requests get one code, not
	// two.
	ErrAttemptInProgress = errors.New("a dispense attempt is already in progress")

	// ErrNoActiveCode is returned when confirming or cancelling without a
	// displayed code.
	ErrNoActiveCode = errors.New("no active confirmation code")

	// ErrCodeExpired is returned when the countdown ran out before the
	// submission arrived.
	ErrCodeExpired = errors.New("confirmation code expired")

	// ErrMalformedCode is returned before any network call when the
	// entered code is not at least four digits.
	ErrMalformedCode = errors.New("code must be at least 4 digits")

	// ErrBadQuantity is returned before any network call when the quantity
	// is not one the machine accepts.
	ErrBadQuantity = errors.New("quantity must be 1/4 or 2/4")
)

// Recorder persists the outcome of a successful validation.
type Recorder interface {
	Record(ctx context.Context, userID string, quantity model.Quantity, at time.Time) (*model.CoffeeEvent, error)
}

// Snapshot is the externally visible state of a user's flow.
type Snapshot struct {
	State            State  `json:"state"`
	Sequence         []int  `json:"sequence,omitempty"`
	Code             string `json:"code,omitempty"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type flow struct {
	state    State
	sequence []int
	code     string
	deadline time.Time
}

// Manager owns all live flows and drives them against the dispenser
// endpoint. Expiry is enforced on access: any operation that touches a flow
// past its deadline observes Expired and the flow is dropped.
type Manager struct {
	mu     sync.Mutex
	flows  map[string]*flow
	client dispenser.Client
	rec    Recorder
	log    *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewManager constructs a Manager with the given code lifetime.
func NewManager(client dispenser.Client, rec Recorder, log *zap.Logger, ttl time.Duration) *Manager {
	return &Manager{
		flows:  make(map[string]*flow),
		client: client,
		rec:    rec,
		log:    log,
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Start requests a fresh sequence for the user and moves the flow to
// CodeDisplayed. The caller is responsible for the subscription guard; no
// network call happens before Start is invoked.
func (m *Manager) Start(ctx context.Context, userID string) (*Snapshot, error) {
	m.mu.Lock()
	if f, ok := m.liveLocked(userID); ok && f.state != StateIdle {
		m.mu.Unlock()
		return nil, ErrAttemptInProgress
	}
	m.flows[userID] = &flow{state: StateRequesting}
	m.mu.Unlock()

	seq, err := m.client.GenerateSequence(ctx)
	if err != nil {
		// Terminal for this attempt: back to Idle, no retry.
		m.drop(userID)
		return nil, fmt.Errorf("generate sequence: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	f := &flow{
		state:    StateCodeDisplayed,
		sequence: seq,
		code:     joinSequence(seq),
		deadline: m.now().Add(m.ttl),
	}
	m.flows[userID] = f
	return m.snapshotLocked(f), nil
}

// Confirm submits the operator-entered code. On success the recorder is
// invoked exactly once and the flow is cleared; on rejection the code state
// is cleared and the user must restart from the top.
func (m *Manager) Confirm(ctx context.Context, userID, code string, quantity model.Quantity) (*model.CoffeeEvent, error) {
	// Local well-formedness checks precede any network call.
	if !wellFormedCode(code) {
		return nil, ErrMalformedCode
	}
	if !quantity.Valid() {
		return nil, ErrBadQuantity
	}

	m.mu.Lock()
	f, ok := m.flows[userID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNoActiveCode
	}
	if f.state == StateCodeDisplayed && !m.now().Before(f.deadline) {
		delete(m.flows, userID)
		m.mu.Unlock()
		return nil, ErrCodeExpired
	}
	if f.state != StateCodeDisplayed {
		m.mu.Unlock()
		return nil, ErrAttemptInProgress
	}
	f.state = StateSubmitting
	m.mu.Unlock()

	err := m.client.ValidateSequence(ctx, code, quantity)
	if err != nil {
		// Rejected or unreachable: either way the attempt is over and the
		// in-memory code state is gone.
		m.drop(userID)
		return nil, fmt.Errorf("validate sequence: %w", err)
	}

	at := m.now()
	event, err := m.rec.Record(ctx, userID, quantity, at)
	// The attempt is finished whether or not the record landed.
	m.drop(userID)
	if err != nil {
		return nil, fmt.Errorf("record dispense: %w", err)
	}
	return event, nil
}

// Cancel drops the live code and issues a best-effort cancel-sequence call.
// The in-memory state is cleared regardless of the call's outcome.
func (m *Manager) Cancel(ctx context.Context, userID string) error {
	m.mu.Lock()
	f, ok := m.liveLocked(userID)
	if !ok || f.state != StateCodeDisplayed {
		m.mu.Unlock()
		return ErrNoActiveCode
	}
	delete(m.flows, userID)
	m.mu.Unlock()

	if err := m.client.CancelSequence(ctx); err != nil {
		m.log.Warn("cancel-sequence failed",
			zap.String("user_id", userID),
			zap.Error(err))
	}
	return nil
}

// Status reports the user's current flow. A flow whose countdown ran out is
// reported as Expired once, then the user is back at Idle. Expiry sends no
// cancel call to the endpoint; only an explicit cancel does.
func (m *Manager) Status(userID string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.flows[userID]
	if !ok {
		return Snapshot{State: StateIdle}
	}
	if f.state == StateCodeDisplayed && !m.now().Before(f.deadline) {
		delete(m.flows, userID)
		return Snapshot{State: StateExpired}
	}
	return *m.snapshotLocked(f)
}

// liveLocked returns the user's flow, discarding it first if its countdown
// ran out. Callers hold m.mu.
func (m *Manager) liveLocked(userID string) (*flow, bool) {
	f, ok := m.flows[userID]
	if !ok {
		return nil, false
	}
	if f.state == StateCodeDisplayed && !m.now().Before(f.deadline) {
		delete(m.flows, userID)
		return nil, false
	}
	return f, true
}

func (m *Manager) snapshotLocked(f *flow) *Snapshot {
	remaining := 0
	if f.state == StateCodeDisplayed {
		remaining = int(f.deadline.Sub(m.now()).Round(time.Second) / time.Second)
		if remaining < 0 {
			remaining = 0
		}
	}
	return &Snapshot{
		State:            f.state,
		Sequence:         f.sequence,
		Code:             f.code,
		RemainingSeconds: remaining,
	}
}

func (m *Manager) drop(userID string) {
	m.mu.Lock()
	delete(m.flows, userID)
	m.mu.Unlock()
}

func wellFormedCode(code string) bool {
	if len(code) < 4 {
		return false
	}
	_, err := strconv.Atoi(code)
	return err == nil
}

func joinSequence(seq []int) string {
	var b strings.Builder
	for _, n := range seq {
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}
