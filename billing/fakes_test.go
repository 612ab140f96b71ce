package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zllovesuki/adbill/lock"
	"github.com/zllovesuki/adbill/notification"
	"github.com/zllovesuki/adbill/payment"
	"github.com/zllovesuki/adbill/subscription"
)

// memSubscriptions is an in-memory SubscriptionStore
type memSubscriptions struct {
	mu       sync.Mutex
	subs     map[string]*subscription.Subscription
	listErr  error
	writeErr map[string]error
}

func newMemSubscriptions(subs ...subscription.Subscription) *memSubscriptions {
	m := &memSubscriptions{
		subs:     make(map[string]*subscription.Subscription),
		writeErr: make(map[string]error),
	}
	for i := range subs {
		sub := subs[i]
		m.subs[sub.ID] = &sub
	}
	return m
}

func (m *memSubscriptions) get(id string) subscription.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.subs[id]
}

func match(sub *subscription.Subscription, opt subscription.ListOption) bool {
	if len(opt.States) > 0 {
		found := false
		for _, s := range opt.States {
			if sub.State == s {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	if !opt.EndFrom.IsZero() && sub.CurrentPeriodEnd.Before(opt.EndFrom) {
		return false
	}
	if !opt.EndBefore.IsZero() && !sub.CurrentPeriodEnd.Before(opt.EndBefore) {
		return false
	}
	return true
}

func (m *memSubscriptions) List(ctx context.Context, opt subscription.ListOption) ([]subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]subscription.Subscription, 0)
	for _, sub := range m.subs {
		if match(sub, opt) {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CurrentPeriodEnd.Equal(out[j].CurrentPeriodEnd) {
			return out[i].CurrentPeriodEnd.Before(out[j].CurrentPeriodEnd)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memSubscriptions) Count(ctx context.Context, opt subscription.ListOption) (int64, error) {
	subs, err := m.List(ctx, opt)
	return int64(len(subs)), err
}

func (m *memSubscriptions) ClaimRenewal(ctx context.Context, id, day string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok || sub.LastRenewalAttemptOn == day {
		return false, nil
	}
	sub.LastRenewalAttemptOn = day
	return true, nil
}

func (m *memSubscriptions) ExtendPeriod(ctx context.Context, id string, start, end time.Time, anchorDay int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr[id]; err != nil {
		return err
	}
	sub, ok := m.subs[id]
	if !ok {
		return fmt.Errorf("subscription %s not found", id)
	}
	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = end
	sub.State = subscription.StateActive
	if anchorDay > 0 {
		sub.BillingAnchorDay = anchorDay
	}
	return nil
}

func (m *memSubscriptions) UpdateState(ctx context.Context, id string, state subscription.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr[id]; err != nil {
		return err
	}
	sub, ok := m.subs[id]
	if !ok {
		return fmt.Errorf("subscription %s not found", id)
	}
	sub.State = state
	return nil
}

func (m *memSubscriptions) MarkReminded(ctx context.Context, id string, periodEnd time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return fmt.Errorf("subscription %s not found", id)
	}
	sub.RemindedForPeriodEnd = periodEnd.UTC().Format("2006-01-02")
	return nil
}

func (m *memSubscriptions) Expire(ctx context.Context, state subscription.State, endBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, sub := range m.subs {
		if sub.State == state && sub.CurrentPeriodEnd.Before(endBefore) {
			sub.State = subscription.StateExpired
			n++
		}
	}
	return n, nil
}

// memPayments is an in-memory PaymentStore
type memPayments struct {
	mu      sync.Mutex
	methods map[string][]payment.Method
	txs     []payment.Transaction
}

func newMemPayments(methods ...payment.Method) *memPayments {
	p := &memPayments{
		methods: make(map[string][]payment.Method),
	}
	for _, m := range methods {
		p.methods[m.UserID] = append(p.methods[m.UserID], m)
	}
	return p
}

func (p *memPayments) ListMethods(ctx context.Context, userID string) ([]payment.Method, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]payment.Method(nil), p.methods[userID]...), nil
}

func (p *memPayments) RecordTransaction(ctx context.Context, tx *payment.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx.ID = fmt.Sprintf("tx_%d", len(p.txs)+1)
	p.txs = append(p.txs, *tx)
	return nil
}

func (p *memPayments) transactions(subID string, status payment.TransactionStatus) []payment.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]payment.Transaction, 0)
	for _, tx := range p.txs {
		if tx.SubscriptionID == subID && tx.Status == status {
			out = append(out, tx)
		}
	}
	return out
}

// scriptedAuthorizer approves the methods listed in approve and declines the rest
type scriptedAuthorizer struct {
	mu      sync.Mutex
	approve map[string]bool
	faults  map[string]error
	calls   []payment.ChargeRequest
}

func newScriptedAuthorizer(approved ...string) *scriptedAuthorizer {
	a := &scriptedAuthorizer{
		approve: make(map[string]bool),
		faults:  make(map[string]error),
	}
	for _, id := range approved {
		a.approve[id] = true
	}
	return a
}

func (a *scriptedAuthorizer) Charge(ctx context.Context, req payment.ChargeRequest) (payment.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, req)
	if err := a.faults[req.MethodID]; err != nil {
		return payment.Result{}, err
	}
	if a.approve[req.MethodID] {
		return payment.Result{Success: true, Reference: "pi_" + req.MethodID}, nil
	}
	return payment.Result{Success: false, Error: "Your card was declined."}, nil
}

func (a *scriptedAuthorizer) charged() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.calls))
	for _, c := range a.calls {
		ids = append(ids, c.MethodID)
	}
	return ids
}

type sentNotification struct {
	Recipient string
	Template  notification.Template
	Data      notification.Data
}

// recordingDispatcher keeps every notification it is asked to send
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (d *recordingDispatcher) Send(ctx context.Context, recipient string, template notification.Template, data notification.Data) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, sentNotification{
		Recipient: recipient,
		Template:  template,
		Data:      data,
	})
	return nil
}

func (d *recordingDispatcher) ofTemplate(template notification.Template) []sentNotification {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]sentNotification, 0)
	for _, n := range d.sent {
		if n.Template == template {
			out = append(out, n)
		}
	}
	return out
}

// memLock is an in-process RunLock
type memLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLock) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return nil, lock.ErrHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

// fixture wires every component of a run against in-memory fakes
type fixture struct {
	now        time.Time
	subs       *memSubscriptions
	payments   *memPayments
	authorizer *scriptedAuthorizer
	dispatcher *recordingDispatcher
	lock       *memLock

	processor    *Processor
	reminders    *ReminderScheduler
	sweeper      *Sweeper
	orchestrator *Orchestrator
}

var testNow = time.Date(2025, 1, 31, 2, 0, 0, 0, time.UTC)

func day(offset int) time.Time {
	today := time.Date(testNow.Year(), testNow.Month(), testNow.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, offset)
}

func newSub(id string, state subscription.State, end time.Time) subscription.Subscription {
	return subscription.Subscription{
		ID:                 id,
		UserID:             "cus_" + id,
		Email:              id + "@example.com",
		PlanID:             "pro",
		Cycle:              subscription.CycleMonthly,
		State:              state,
		CurrentPeriodStart: end.AddDate(0, -1, 0),
		CurrentPeriodEnd:   end,
	}
}

func newCard(id, userID string, isDefault bool, createdDay int, last4 string) payment.Method {
	return payment.Method{
		ID:        id,
		UserID:    userID,
		Kind:      payment.KindCard,
		Brand:     "visa",
		Last4:     last4,
		IsDefault: isDefault,
		CreatedAt: time.Date(2024, 1, createdDay, 0, 0, 0, 0, time.UTC),
	}
}

func newFixture(t *testing.T, subs []subscription.Subscription, methods []payment.Method, approved ...string) *fixture {
	logger := zaptest.NewLogger(t)
	catalog, err := subscription.NewCatalog(subscription.DefaultPlans)
	require.NoError(t, err)

	f := &fixture{
		now:        testNow,
		subs:       newMemSubscriptions(subs...),
		payments:   newMemPayments(methods...),
		authorizer: newScriptedAuthorizer(approved...),
		dispatcher: &recordingDispatcher{},
		lock:       &memLock{},
	}

	f.processor, err = NewProcessor(ProcessorOptions{
		Subscriptions: f.subs,
		Payments:      f.payments,
		Catalog:       catalog,
		Authorizer:    f.authorizer,
		Dispatcher:    f.dispatcher,
		Logger:        logger,
		CallTimeout:   time.Second,
	})
	require.NoError(t, err)

	f.reminders, err = NewReminderScheduler(ReminderSchedulerOptions{
		Subscriptions: f.subs,
		Catalog:       catalog,
		Dispatcher:    f.dispatcher,
		Logger:        logger,
		CallTimeout:   time.Second,
	})
	require.NoError(t, err)

	f.sweeper, err = NewSweeper(SweeperOptions{
		Subscriptions: f.subs,
		Logger:        logger,
	})
	require.NoError(t, err)

	f.orchestrator, err = NewOrchestrator(OrchestratorOptions{
		Subscriptions: f.subs,
		Reminders:     f.reminders,
		Renewals:      f.processor,
		Sweeper:       f.sweeper,
		Lock:          f.lock,
		GraceDays:     3,
		Logger:        logger,
		Clock: func() time.Time {
			return f.now
		},
	})
	require.NoError(t, err)

	return f
}

func (f *fixture) window() subscription.Window {
	return subscription.NewWindow(f.now, time.UTC)
}
