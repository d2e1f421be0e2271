// Package approval owns the pending-approval live table. Every pending
// approval is resolved exactly once: an approve signal, a deny signal, and
// the timeout race for it, and the first one wins. Whatever loses the race
// is a no-op.
package approval

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harbinger-sec/warden/internal/audit"
	"go.uber.org/zap"
)

// Method is a channel through which a pending approval can be answered.
type Method string

const (
	MethodNative       Method = "native"
	MethodAgentConfirm Method = "agent_confirm"
	MethodWebhook      Method = "webhook"
)

// ParseMethod maps a wire string to a Method.
func ParseMethod(s string) (Method, bool) {
	switch Method(s) {
	case MethodNative, MethodAgentConfirm, MethodWebhook:
		return Method(s), true
	}
	return "", false
}

// Decision is an explicit answer to a pending approval.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
)

// Status is the lifecycle state of an approval. pending is the only
// non-terminal state; no transitions leave a terminal state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusTimedOut Status = "timed_out"
)

var (
	// ErrNoMethods means no usable approval method exists, so a pending
	// approval could never be resolved. The caller must deny instead of
	// registering an approval that would hang forever.
	ErrNoMethods = errors.New("approval: no usable approval method")

	// ErrCapacityExceeded means the live table is full.
	ErrCapacityExceeded = errors.New("approval: pending approval capacity exceeded")

	// ErrNotFound means the id is neither pending nor recently resolved.
	ErrNotFound = errors.New("approval: approval not found")
)

// Ticket describes one pending approval. Immutable after registration.
type Ticket struct {
	ID        string
	RequestID string
	ToolName  string
	Category  string
	Severity  string
	Reason    string
	CreatedAt time.Time
	Timeout   time.Duration
	Methods   []Method

	// AuditID is the id of the initial confirm audit entry; the terminal
	// entry references it.
	AuditID string
}

// Deadline returns the moment the ticket times out. The clock starts at
// registration, so every waiter observes the same deadline.
func (t *Ticket) Deadline() time.Time {
	return t.CreatedAt.Add(t.Timeout)
}

// HasMethod reports whether m is one of the ticket's enabled methods.
func (t *Ticket) HasMethod(m Method) bool {
	for _, tm := range t.Methods {
		if tm == m {
			return true
		}
	}
	return false
}

// Resolution is the terminal outcome of an approval.
type Resolution struct {
	ID         string    `json:"id"`
	Status     Status    `json:"status"`
	Via        Method    `json:"via,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Approved reports whether the resolution allows the held tool call.
func (r Resolution) Approved() bool { return r.Status == StatusApproved }

// Notifier pushes a freshly registered ticket out to an external channel
// (e.g. a webhook receiver). Failures only mean that channel stays silent;
// the timeout still governs.
type Notifier interface {
	Notify(ctx context.Context, t *Ticket) error
}

// resolvedRetention bounds how many terminal resolutions are kept for
// idempotent late signals and polling.
const resolvedRetention = 4096

// Coordinator serializes every mutation of the live table behind one mutex:
// registration, resolution, and timeout expiry all contend on it, which is
// what makes "exactly one resolution" hold.
type Coordinator struct {
	mu            sync.Mutex
	pending       map[string]*pendingEntry
	resolved      map[string]Resolution
	resolvedOrder []string
	maxPending    int

	sink     audit.Store
	notifier Notifier
	logger   *zap.Logger
}

type pendingEntry struct {
	ticket  *Ticket
	timer   *time.Timer
	waiters []chan Resolution
}

// NewCoordinator creates a coordinator writing terminal outcomes to sink.
// notifier may be nil when no webhook is configured.
func NewCoordinator(maxPending int, sink audit.Store, notifier Notifier, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		pending:    make(map[string]*pendingEntry),
		resolved:   make(map[string]Resolution),
		maxPending: maxPending,
		sink:       sink,
		notifier:   notifier,
		logger:     logger,
	}
}

// Register adds a ticket to the live table, appends the initial confirm
// audit entry, and starts the timeout clock. The entry is appended under the
// table lock, so the terminal entry written by any resolution is ordered
// strictly after it.
func (c *Coordinator) Register(t *Ticket, initial *audit.Entry) error {
	if len(t.Methods) == 0 {
		return ErrNoMethods
	}

	c.mu.Lock()
	if c.maxPending > 0 && len(c.pending) >= c.maxPending {
		c.mu.Unlock()
		return ErrCapacityExceeded
	}

	entry := &pendingEntry{ticket: t}
	c.pending[t.ID] = entry
	c.sink.Append(initial)
	entry.timer = time.AfterFunc(t.Timeout, func() {
		c.resolve(t.ID, StatusTimedOut, "", "no resolution signal before timeout")
	})
	c.mu.Unlock()

	if c.notifier != nil && t.HasMethod(MethodWebhook) {
		go c.notifyWebhook(t)
	}

	c.logger.Info("approval registered",
		zap.String("approval_id", t.ID),
		zap.String("tool", t.ToolName),
		zap.Duration("timeout", t.Timeout),
	)
	return nil
}

func (c *Coordinator) notifyWebhook(t *Ticket) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.notifier.Notify(ctx, t); err != nil {
		c.logger.Warn("webhook notification failed",
			zap.String("approval_id", t.ID),
			zap.Error(err),
		)
	}
}

// Resolve applies an explicit decision arriving through the given method.
// The first signal for an id wins; any later signal is a no-op that returns
// the prior resolution with applied=false. An id that was never registered
// (or has aged out of retention) returns ErrNotFound.
func (c *Coordinator) Resolve(id string, decision Decision, via Method) (Resolution, bool, error) {
	status := StatusDenied
	reason := "denied via " + string(via)
	if decision == DecisionApproved {
		status = StatusApproved
		reason = "approved via " + string(via)
	}

	res, applied := c.resolve(id, status, via, reason)
	if !applied && res.ID == "" {
		return Resolution{}, false, ErrNotFound
	}
	return res, applied, nil
}

// Cancel resolves a still-pending approval as denied, e.g. because the
// calling session ended. Cancelling an already-resolved id is a no-op.
func (c *Coordinator) Cancel(id, reason string) {
	c.resolve(id, StatusDenied, "", reason)
}

// resolve is the single place a pending approval transitions to a terminal
// state. Returns the resolution and whether this call performed it. A zero
// Resolution with applied=false means the id is unknown.
func (c *Coordinator) resolve(id string, status Status, via Method, reason string) (Resolution, bool) {
	c.mu.Lock()

	entry, ok := c.pending[id]
	if !ok {
		prior, done := c.resolved[id]
		c.mu.Unlock()
		if done {
			c.logger.Debug("late resolution signal ignored",
				zap.String("approval_id", id),
				zap.String("prior_status", string(prior.Status)),
			)
			return prior, false
		}
		return Resolution{}, false
	}

	delete(c.pending, id)
	entry.timer.Stop()

	res := Resolution{
		ID:         id,
		Status:     status,
		Via:        via,
		Reason:     reason,
		ResolvedAt: time.Now(),
	}
	c.retainResolved(res)

	for _, w := range entry.waiters {
		w <- res
	}

	c.sink.Append(terminalEntry(entry.ticket, res))
	c.mu.Unlock()

	c.logger.Info("approval resolved",
		zap.String("approval_id", id),
		zap.String("status", string(status)),
		zap.String("via", string(via)),
	)
	return res, true
}

// retainResolved records a terminal resolution, evicting the oldest past the
// retention cap. Caller holds c.mu.
func (c *Coordinator) retainResolved(res Resolution) {
	c.resolved[res.ID] = res
	c.resolvedOrder = append(c.resolvedOrder, res.ID)
	if len(c.resolvedOrder) > resolvedRetention {
		oldest := c.resolvedOrder[0]
		c.resolvedOrder = c.resolvedOrder[1:]
		delete(c.resolved, oldest)
	}
}

func terminalEntry(t *Ticket, res Resolution) *audit.Entry {
	action := audit.ActionConfirmDenied
	switch res.Status {
	case StatusApproved:
		action = audit.ActionConfirmApproved
	case StatusTimedOut:
		action = audit.ActionConfirmTimedOut
	}
	return &audit.Entry{
		RequestID: t.RequestID,
		ToolName:  t.ToolName,
		Category:  t.Category,
		Severity:  t.Severity,
		Action:    action,
		Reason:    res.Reason,
		ParentID:  t.AuditID,
		Metadata: map[string]string{
			"approval_id": t.ID,
			"via":         string(res.Via),
		},
	}
}

// Wait blocks until the approval resolves or ctx is done. Waiting does not
// extend or shorten the ticket's deadline.
func (c *Coordinator) Wait(ctx context.Context, id string) (Resolution, error) {
	c.mu.Lock()
	if res, done := c.resolved[id]; done {
		c.mu.Unlock()
		return res, nil
	}
	entry, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return Resolution{}, ErrNotFound
	}
	ch := make(chan Resolution, 1)
	entry.waiters = append(entry.waiters, ch)
	c.mu.Unlock()

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return Resolution{}, ctx.Err()
	}
}

// Get reports the current state of an approval for polling. The returned
// ticket is non-nil only while the approval is pending.
func (c *Coordinator) Get(id string) (Status, *Ticket, Resolution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.pending[id]; ok {
		return StatusPending, entry.ticket, Resolution{}, nil
	}
	if res, done := c.resolved[id]; done {
		return res.Status, nil, res, nil
	}
	return "", nil, Resolution{}, ErrNotFound
}

// PendingCount returns the live table size.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close denies every still-pending approval. Used at shutdown so nothing is
// left in the table.
func (c *Coordinator) Close() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.Cancel(id, "coordinator shutting down")
	}
}
