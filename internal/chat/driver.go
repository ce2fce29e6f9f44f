package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/support-relay/internal/domain"
	"github.com/ashureev/support-relay/internal/generator"
	"github.com/ashureev/support-relay/internal/history"
	"github.com/ashureev/support-relay/internal/identity"
	"github.com/ashureev/support-relay/internal/knowledge"
	"github.com/ashureev/support-relay/internal/phone"
	"github.com/ashureev/support-relay/internal/session"
	"github.com/ashureev/support-relay/internal/transcript"
)

// state is the protocol driver's position in the connection lifecycle.
type state int

const (
	stateAwaitingCompany state = iota
	stateAwaitingPhone
	stateValidating
	stateActive
	stateFinalizing
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateAwaitingCompany:
		return "awaiting_company"
	case stateAwaitingPhone:
		return "awaiting_phone"
	case stateValidating:
		return "validating"
	case stateActive:
		return "active"
	case stateFinalizing:
		return "finalizing"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// Client-visible protocol text. Internal error detail never reaches
// the client.
const (
	msgCompanyPrompt   = "Select company for this session:"
	msgPhonePrompt     = "Welcome! Please provide your phone number:"
	msgTimeout         = "Session timed out due to inactivity."
	msgInvalidPhone    = "Invalid phone number format. Please try again"
	msgInternalError   = "Internal server error. Please try again later."
	msgGenerationError = "Sorry, something went wrong generating a response."
	msgUnexpectedError = "Sorry, something went wrong. Please try again later."
)

// conn is the driver's view of the transport: one text message per
// direction per step.
type conn interface {
	ReadText(ctx context.Context) (string, error)
	WriteText(ctx context.Context, text string) error
}

// driver owns one connection end-to-end. All steps are strictly
// sequential; history reconstruction must see the just-appended user
// message before a reply is generated.
type driver struct {
	conn conn
	deps *Deps

	state state

	companyID   string
	phoneNumber string
	customerID  string
	sessionID   string
	startTime   time.Time
	log         *slog.Logger
}

// Deps bundles the collaborators the protocol driver coordinates.
type Deps struct {
	Sessions   *session.Store
	Resolver   *identity.Resolver
	History    *history.Accumulator
	Knowledge  *knowledge.Cache
	Finalizer  *transcript.Finalizer
	Generator  generator.Generator
	Normalizer *phone.Normalizer

	// StoreTimeout bounds each storage round-trip; its expiry surfaces
	// as a store-unreachable failure.
	StoreTimeout time.Duration
}

func newDriver(c conn, deps *Deps) *driver {
	return &driver{
		conn:  c,
		deps:  deps,
		state: stateAwaitingCompany,
		log:   slog.Default(),
	}
}

func (d *driver) transition(next state) {
	d.log.Debug("Protocol state transition", "from", d.state.String(), "to", next.String())
	d.state = next
}

// run drives the connection from company selection to close. The
// caller closes the underlying websocket after run returns.
func (d *driver) run(ctx context.Context) {
	if !d.establish(ctx) {
		d.transition(stateClosed)
		return
	}

	// A session now exists: from here the Finalizing sequence must run
	// exactly once on every exit path, so it is bound to this scope.
	defer d.finalize()

	d.transition(stateActive)
	d.turnLoop(ctx)
}

// establish walks AwaitingCompany -> AwaitingPhone -> Validating and
// reports whether a session was created. Every failure before session
// creation closes the connection with one plain-text message and
// nothing to finalize.
func (d *driver) establish(ctx context.Context) bool {
	companyID, ok := d.captureCompany(ctx)
	if !ok {
		return false
	}
	d.companyID = companyID

	d.transition(stateAwaitingPhone)
	if err := d.conn.WriteText(ctx, msgPhonePrompt); err != nil {
		return false
	}

	rawPhone, err := d.receive(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			d.notify(ctx, msgTimeout)
		}
		return false
	}

	d.transition(stateValidating)
	normalized, err := d.deps.Normalizer.Normalize(strings.TrimSpace(rawPhone))
	if err != nil {
		d.notify(ctx, msgInvalidPhone)
		return false
	}
	d.phoneNumber = normalized

	storeCtx, cancel := d.storeContext(ctx)
	customerID, err := d.deps.Resolver.ResolveOrCreate(storeCtx, normalized)
	cancel()
	if err != nil {
		d.log.Error("Failed to resolve customer", "error", err)
		d.notify(ctx, msgInternalError)
		return false
	}
	d.customerID = customerID

	storeCtx, cancel = d.storeContext(ctx)
	sess, err := d.deps.Sessions.Create(storeCtx, customerID)
	cancel()
	if err != nil {
		d.log.Error("Failed to create session", "customer_id", customerID, "error", err)
		d.notify(ctx, msgInternalError)
		return false
	}
	d.sessionID = sess.SessionID
	d.startTime = time.Now().UTC()
	d.log = slog.With("session_id", d.sessionID, "customer_id", d.customerID)
	d.log.Info("New session started", "company_id", d.companyID)

	greeting := fmt.Sprintf("Hello Customer %s! Your session ID is %s",
		truncateID(d.customerID), truncateID(d.sessionID))
	if err := d.conn.WriteText(ctx, greeting); err != nil {
		// The session exists; the deferred finalize in run would not
		// cover this path, so clean up here before reporting failure.
		d.finalize()
		return false
	}

	d.injectKnowledge(ctx)
	return true
}

// captureCompany prompts until a non-empty company selector arrives.
// Any non-empty value is accepted as the company context for the rest
// of the session; there is no registry to validate against.
func (d *driver) captureCompany(ctx context.Context) (string, bool) {
	for {
		if err := d.conn.WriteText(ctx, msgCompanyPrompt); err != nil {
			return "", false
		}
		companyID, err := d.receive(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				d.notify(ctx, msgTimeout)
			}
			return "", false
		}
		if companyID = strings.TrimSpace(companyID); companyID != "" {
			return companyID, true
		}
	}
}

// injectKnowledge loads company knowledge into the session context.
// Best-effort: failure is logged and does not abort the transition to
// the turn loop.
func (d *driver) injectKnowledge(ctx context.Context) {
	storeCtx, cancel := d.storeContext(ctx)
	defer cancel()

	text, found, err := d.deps.Knowledge.Get(storeCtx, d.companyID)
	if err != nil {
		d.log.Error("Failed to load company knowledge", "company_id", d.companyID, "error", err)
		return
	}
	if !found {
		return
	}
	if err := d.deps.History.AppendKnowledge(storeCtx, d.sessionID, text); err != nil {
		d.log.Error("Failed to inject company knowledge", "company_id", d.companyID, "error", err)
		return
	}
	d.log.Info("Loaded company knowledge into session", "company_id", d.companyID)
}

// turnLoop runs Active until timeout, disconnect, or an unexpected
// internal failure; every exit falls through to the deferred finalize.
func (d *driver) turnLoop(ctx context.Context) {
	for {
		data, err := d.receive(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				d.log.Info("Session timeout")
				d.notify(ctx, msgTimeout)
			} else {
				d.log.Info("Client disconnected", "error", err)
			}
			return
		}
		d.log.Info("Received message")

		if !d.runTurn(ctx, data) {
			return
		}
	}
}

// runTurn executes one Active -> Active cycle. Returns false when the
// session must move to Finalizing.
func (d *driver) runTurn(ctx context.Context, data string) bool {
	storeCtx, cancel := d.storeContext(ctx)
	err := d.deps.History.Append(storeCtx, d.sessionID, domain.RoleUser, data)
	cancel()
	if err != nil {
		return d.failTurn(ctx, "append user message", err)
	}

	storeCtx, cancel = d.storeContext(ctx)
	entries, err := d.deps.History.GetHistory(storeCtx, d.sessionID)
	cancel()
	if err != nil {
		return d.failTurn(ctx, "reconstruct history", err)
	}

	reply, err := d.deps.Generator.Generate(ctx, entries)
	if err != nil {
		// Generation failure aborts the turn, not the session.
		d.log.Error("Reply generation failed", "error", err)
		d.notify(ctx, msgGenerationError)
		return true
	}

	storeCtx, cancel = d.storeContext(ctx)
	err = d.deps.History.Append(storeCtx, d.sessionID, domain.RoleAssistant, reply)
	cancel()
	if err != nil {
		return d.failTurn(ctx, "append assistant reply", err)
	}

	// TTL refresh is best-effort; a failed refresh is logged, not fatal.
	storeCtx, cancel = d.storeContext(ctx)
	if _, err := d.deps.Sessions.Refresh(storeCtx, d.sessionID); err != nil {
		d.log.Error("Failed to refresh session", "error", err)
	}
	cancel()

	if err := d.conn.WriteText(ctx, reply); err != nil {
		d.log.Info("Client disconnected while sending reply", "error", err)
		return false
	}
	d.log.Info("Sent reply")
	return true
}

// failTurn handles an unexpected internal failure inside the turn
// loop: notify the client best-effort and move to Finalizing.
func (d *driver) failTurn(ctx context.Context, step string, err error) bool {
	d.log.Error("Unexpected error in session", "step", step, "error", err)
	d.notify(ctx, msgUnexpectedError)
	return false
}

// finalize is the mandatory teardown: persist the transcript
// best-effort, then unconditionally end the session and clear context.
// It runs on a fresh context so a dead connection cannot skip cleanup.
func (d *driver) finalize() {
	d.transition(stateFinalizing)

	timeout := 2 * d.deps.StoreTimeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conversationID, err := d.deps.Finalizer.Finalize(ctx, transcript.Input{
		CompanyID:   d.companyID,
		CustomerID:  d.customerID,
		SessionID:   d.sessionID,
		PhoneNumber: d.phoneNumber,
		StartTime:   d.startTime,
	})
	if err != nil {
		d.log.Error("Failed to persist conversation", "error", err)
	} else {
		d.log.Info("Conversation persisted", "conversation_id", conversationID)
	}

	if _, err := d.deps.Sessions.End(ctx, d.sessionID); err != nil {
		d.log.Error("Failed to end session", "error", err)
	}
	if _, err := d.deps.History.Clear(ctx, d.sessionID); err != nil {
		d.log.Error("Failed to clear context", "error", err)
	}

	d.transition(stateClosed)
	d.log.Info("Session cleanup complete")
}

type readResult struct {
	data string
	err  error
}

// receive blocks for the next client message, bounded by the session
// TTL. Exceeding it is a normal timeout transition, not an error. The
// wait races the read against a timer rather than putting a deadline
// on the read context: cancelling a websocket read tears down the
// connection, and the timeout notice still has to reach the client.
// An abandoned reader unblocks once the connection is closed.
func (d *driver) receive(ctx context.Context) (string, error) {
	results := make(chan readResult, 1)
	go func() {
		data, err := d.conn.ReadText(ctx)
		results <- readResult{data: data, err: err}
	}()

	timer := time.NewTimer(d.deps.Sessions.TTL())
	defer timer.Stop()
	select {
	case res := <-results:
		return res.data, res.err
	case <-timer.C:
		return "", context.DeadlineExceeded
	}
}

// notify sends a client-facing message, ignoring transport failures:
// the connection may already be gone.
func (d *driver) notify(ctx context.Context, text string) {
	if err := d.conn.WriteText(ctx, text); err != nil {
		d.log.Debug("Failed to notify client", "error", err)
	}
}

func (d *driver) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.deps.StoreTimeout)
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
