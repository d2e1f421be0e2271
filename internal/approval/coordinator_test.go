package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harbinger-sec/warden/internal/audit"
	"go.uber.org/zap"
)

func testCoordinator(maxPending int) (*Coordinator, *audit.MemoryStore) {
	sink := audit.NewMemoryStore(0)
	return NewCoordinator(maxPending, sink, nil, zap.NewNop()), sink
}

func testTicket(timeout time.Duration) *Ticket {
	return &Ticket{
		ID:        uuid.New().String(),
		RequestID: uuid.New().String(),
		ToolName:  "transfer_funds",
		Category:  "purchase",
		Severity:  "high",
		Reason:    "tool transfer_funds initiates a payment",
		CreatedAt: time.Now(),
		Timeout:   timeout,
		Methods:   []Method{MethodNative, MethodWebhook},
		AuditID:   uuid.New().String(),
	}
}

func initialEntry(t *Ticket) *audit.Entry {
	return &audit.Entry{
		ID:       t.AuditID,
		ToolName: t.ToolName,
		Category: t.Category,
		Severity: t.Severity,
		Action:   audit.ActionConfirm,
		Metadata: map[string]string{"approval_id": t.ID},
	}
}

func TestCoordinator_ApproveRemovesFromTable(t *testing.T) {
	c, _ := testCoordinator(10)
	tk := testTicket(time.Minute)

	if err := c.Register(tk, initialEntry(tk)); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if c.PendingCount() != 1 {
		t.Fatalf("expected 1 pending, got %d", c.PendingCount())
	}

	res, applied, err := c.Resolve(tk.ID, DecisionApproved, MethodNative)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !applied {
		t.Error("expected resolution to apply")
	}
	if res.Status != StatusApproved {
		t.Errorf("expected approved, got %s", res.Status)
	}
	if c.PendingCount() != 0 {
		t.Errorf("expected empty live table, got %d", c.PendingCount())
	}
}

func TestCoordinator_TimeoutResolvesDenied(t *testing.T) {
	c, sink := testCoordinator(10)
	tk := testTicket(50 * time.Millisecond)

	if err := c.Register(tk, initialEntry(tk)); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := c.Wait(ctx, tk.ID)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	if res.Status != StatusTimedOut {
		t.Errorf("expected timed_out, got %s", res.Status)
	}
	if res.Approved() {
		t.Error("timeout must be fail-closed, not approved")
	}
	if c.PendingCount() != 0 {
		t.Errorf("expected id removed from live table, got %d pending", c.PendingCount())
	}

	// Audit order is {initial confirm, terminal}, terminal referencing
	// the initial entry.
	q := sink.Query(audit.Query{})
	if len(q.Entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(q.Entries))
	}
	terminal := q.Entries[0] // newest-first
	if terminal.Action != audit.ActionConfirmTimedOut {
		t.Errorf("expected confirm_timed_out, got %s", terminal.Action)
	}
	if terminal.ParentID != tk.AuditID {
		t.Errorf("terminal entry does not reference initial entry: %q", terminal.ParentID)
	}
}

func TestCoordinator_RacingSignalsExactlyOneWins(t *testing.T) {
	c, _ := testCoordinator(10)
	tk := testTicket(time.Minute)

	if err := c.Register(tk, initialEntry(tk)); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]struct {
		res     Resolution
		applied bool
	}, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		res, applied, _ := c.Resolve(tk.ID, DecisionApproved, MethodNative)
		results[0].res, results[0].applied = res, applied
	}()
	go func() {
		defer wg.Done()
		res, applied, _ := c.Resolve(tk.ID, DecisionDenied, MethodWebhook)
		results[1].res, results[1].applied = res, applied
	}()
	wg.Wait()

	appliedCount := 0
	for _, r := range results {
		if r.applied {
			appliedCount++
		}
	}
	if appliedCount != 1 {
		t.Fatalf("expected exactly one winning resolution, got %d", appliedCount)
	}
	// Both callers observe the same terminal outcome.
	if results[0].res.Status != results[1].res.Status {
		t.Errorf("divergent outcomes: %s vs %s", results[0].res.Status, results[1].res.Status)
	}
	if c.PendingCount() != 0 {
		t.Errorf("expected empty live table, got %d", c.PendingCount())
	}
}

func TestCoordinator_ResolveIsIdempotent(t *testing.T) {
	c, _ := testCoordinator(10)
	tk := testTicket(time.Minute)

	if err := c.Register(tk, initialEntry(tk)); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	first, applied, err := c.Resolve(tk.ID, DecisionDenied, MethodNative)
	if err != nil || !applied {
		t.Fatalf("first resolve: applied=%v err=%v", applied, err)
	}

	second, applied, err := c.Resolve(tk.ID, DecisionApproved, MethodWebhook)
	if err != nil {
		t.Fatalf("second resolve errored: %v", err)
	}
	if applied {
		t.Error("second resolve must be a no-op")
	}
	if second.Status != first.Status {
		t.Errorf("second resolve changed the outcome: %s -> %s", first.Status, second.Status)
	}
	if second.Via != first.Via {
		t.Errorf("second resolve changed via: %s -> %s", first.Via, second.Via)
	}
}

func TestCoordinator_RegisterRequiresMethods(t *testing.T) {
	c, _ := testCoordinator(10)
	tk := testTicket(time.Minute)
	tk.Methods = nil

	if err := c.Register(tk, initialEntry(tk)); err != ErrNoMethods {
		t.Errorf("expected ErrNoMethods, got %v", err)
	}
	if c.PendingCount() != 0 {
		t.Error("unresolvable ticket must not enter the live table")
	}
}

func TestCoordinator_CapacityExceeded(t *testing.T) {
	c, _ := testCoordinator(2)

	for i := 0; i < 2; i++ {
		tk := testTicket(time.Minute)
		if err := c.Register(tk, initialEntry(tk)); err != nil {
			t.Fatalf("register %d failed: %v", i, err)
		}
	}

	tk := testTicket(time.Minute)
	if err := c.Register(tk, initialEntry(tk)); err != ErrCapacityExceeded {
		t.Errorf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestCoordinator_ResolveUnknownID(t *testing.T) {
	c, _ := testCoordinator(10)

	_, _, err := c.Resolve("no-such-id", DecisionApproved, MethodNative)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCoordinator_CancelResolvesDenied(t *testing.T) {
	c, _ := testCoordinator(10)
	tk := testTicket(time.Minute)

	if err := c.Register(tk, initialEntry(tk)); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	c.Cancel(tk.ID, "session ended")

	status, _, res, err := c.Get(tk.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if status != StatusDenied {
		t.Errorf("expected denied, got %s", status)
	}
	if res.Reason != "session ended" {
		t.Errorf("unexpected reason: %q", res.Reason)
	}
	if c.PendingCount() != 0 {
		t.Error("cancelled approval left in live table")
	}
}

func TestCoordinator_WaitObservesExplicitResolution(t *testing.T) {
	c, _ := testCoordinator(10)
	tk := testTicket(time.Minute)

	if err := c.Register(tk, initialEntry(tk)); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	done := make(chan Resolution, 1)
	go func() {
		res, err := c.Wait(context.Background(), tk.ID)
		if err != nil {
			t.Errorf("wait failed: %v", err)
		}
		done <- res
	}()

	time.Sleep(20 * time.Millisecond)
	if _, applied, err := c.Resolve(tk.ID, DecisionApproved, MethodWebhook); err != nil || !applied {
		t.Fatalf("resolve: applied=%v err=%v", applied, err)
	}

	select {
	case res := <-done:
		if res.Status != StatusApproved {
			t.Errorf("expected approved, got %s", res.Status)
		}
		if res.Via != MethodWebhook {
			t.Errorf("expected webhook via, got %s", res.Via)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never observed the resolution")
	}
}

func TestCoordinator_GetPendingReportsDeadline(t *testing.T) {
	c, _ := testCoordinator(10)
	tk := testTicket(30 * time.Second)

	if err := c.Register(tk, initialEntry(tk)); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	status, ticket, _, err := c.Get(tk.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if status != StatusPending {
		t.Errorf("expected pending, got %s", status)
	}
	if ticket == nil {
		t.Fatal("expected ticket for pending approval")
	}
	if remaining := time.Until(ticket.Deadline()); remaining <= 0 || remaining > 30*time.Second {
		t.Errorf("implausible remaining time %v", remaining)
	}
}

func TestCoordinator_CloseDrainsTable(t *testing.T) {
	c, _ := testCoordinator(10)

	ids := make([]string, 3)
	for i := range ids {
		tk := testTicket(time.Minute)
		ids[i] = tk.ID
		if err := c.Register(tk, initialEntry(tk)); err != nil {
			t.Fatalf("register failed: %v", err)
		}
	}

	c.Close()

	if c.PendingCount() != 0 {
		t.Fatalf("expected empty table after close, got %d", c.PendingCount())
	}
	for i, id := range ids {
		status, _, _, err := c.Get(id)
		if err != nil {
			t.Fatalf("get %d failed: %v", i, err)
		}
		if status != StatusDenied {
			t.Errorf("approval %d not denied at close: %s", i, status)
		}
	}
}
