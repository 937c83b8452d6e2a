package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pratik-mahalle/bibleplan/internal/domain/billing"
	"github.com/pratik-mahalle/bibleplan/internal/domain/chat"
	"github.com/pratik-mahalle/bibleplan/internal/domain/entitlement"
)

// MockEntitlementStore is an in-memory entitlement.Store with the same
// conditional semantics as the SQL store. Records are copied on the way in
// and out so callers never share state with the store.
type MockEntitlementStore struct {
	mu      sync.Mutex
	Records map[string]*entitlement.Record
	// Redemptions holds claimed codes keyed by user then code
	Redemptions map[string]map[string]bool

	GetError         error
	MaterializeError error
	UpsertError      error
	DecrementError   error
	RefillError      error
	ExpireError      error
	ClaimError       error
	CancelError      error

	// ConflictsToInject makes the next N decrements fail with ErrConflict
	ConflictsToInject int

	Calls          int
	DecrementCalls int
	RefillCalls    int
	UpsertCalls    int
	ClaimCalls     int
	CancelCalls    int
}

func NewMockEntitlementStore() *MockEntitlementStore {
	return &MockEntitlementStore{
		Records:     make(map[string]*entitlement.Record),
		Redemptions: make(map[string]map[string]bool),
	}
}

// Put seeds a record
func (m *MockEntitlementStore) Put(rec *entitlement.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records[rec.UserID] = copyRecord(rec)
}

// Snapshot returns a copy of the stored record, or nil
func (m *MockEntitlementStore) Snapshot(userID string) *entitlement.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.Records[userID]
	if !ok {
		return nil
	}
	return copyRecord(rec)
}

func (m *MockEntitlementStore) Get(ctx context.Context, userID string) (*entitlement.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.GetError != nil {
		return nil, m.GetError
	}
	rec, ok := m.Records[userID]
	if !ok {
		return nil, entitlement.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (m *MockEntitlementStore) Materialize(ctx context.Context, userID string) (*entitlement.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.MaterializeError != nil {
		return nil, m.MaterializeError
	}
	rec, ok := m.Records[userID]
	if !ok {
		now := time.Now().UTC()
		rec = &entitlement.Record{UserID: userID, Tier: entitlement.TierFree, CreatedAt: now, UpdatedAt: now}
		m.Records[userID] = rec
	}
	return copyRecord(rec), nil
}

func (m *MockEntitlementStore) UpsertTierAndExpiry(ctx context.Context, userID string, tier entitlement.Tier, proExpiresAt *time.Time, source entitlement.PaidSource) (*entitlement.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.UpsertCalls++
	if m.UpsertError != nil {
		return nil, m.UpsertError
	}
	return copyRecord(m.setTier(userID, tier, proExpiresAt, source)), nil
}

func (m *MockEntitlementStore) ClaimCode(ctx context.Context, userID, code string, proExpiresAt *time.Time) (*entitlement.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.ClaimCalls++
	if m.ClaimError != nil {
		return nil, false, m.ClaimError
	}
	if m.Redemptions[userID][code] {
		rec, ok := m.Records[userID]
		if !ok {
			return nil, false, nil
		}
		return copyRecord(rec), false, nil
	}
	if m.Redemptions[userID] == nil {
		m.Redemptions[userID] = make(map[string]bool)
	}
	m.Redemptions[userID][code] = true
	return copyRecord(m.setTier(userID, entitlement.TierPaid, proExpiresAt, entitlement.PaidSourcePromo)), true, nil
}

func (m *MockEntitlementStore) CancelSubscription(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.CancelCalls++
	if m.CancelError != nil {
		return false, m.CancelError
	}
	rec, ok := m.Records[userID]
	if !ok || !rec.IsPaymentBacked() {
		return false, nil
	}
	rec.Tier = entitlement.TierFree
	rec.ProExpiresAt = nil
	rec.PaidSource = entitlement.PaidSourceNone
	rec.UpdatedAt = time.Now().UTC()
	return true, nil
}

// setTier must be called with m.mu held
func (m *MockEntitlementStore) setTier(userID string, tier entitlement.Tier, proExpiresAt *time.Time, source entitlement.PaidSource) *entitlement.Record {
	rec, ok := m.Records[userID]
	if !ok {
		rec = &entitlement.Record{UserID: userID, CreatedAt: time.Now().UTC()}
		m.Records[userID] = rec
	}
	if tier != entitlement.TierPaid {
		source = entitlement.PaidSourceNone
	}
	rec.Tier = tier
	rec.ProExpiresAt = copyTime(proExpiresAt)
	rec.PaidSource = source
	rec.UpdatedAt = time.Now().UTC()
	return rec
}

func (m *MockEntitlementStore) ConditionalDecrement(ctx context.Context, userID string, expected int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.DecrementCalls++
	if m.DecrementError != nil {
		return m.DecrementError
	}
	if m.ConflictsToInject > 0 {
		m.ConflictsToInject--
		return entitlement.ErrConflict
	}
	rec, ok := m.Records[userID]
	if !ok || rec.DailyCredits != expected || rec.DailyCredits <= 0 {
		return entitlement.ErrConflict
	}
	rec.DailyCredits--
	return nil
}

func (m *MockEntitlementStore) Refill(ctx context.Context, userID string, credits int, resetDate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.RefillCalls++
	if m.RefillError != nil {
		return m.RefillError
	}
	rec, ok := m.Records[userID]
	if !ok {
		return nil
	}
	day := entitlement.Day(resetDate)
	if rec.LastResetDate != nil && !entitlement.Day(*rec.LastResetDate).Before(day) {
		return nil
	}
	rec.DailyCredits = credits
	rec.LastResetDate = &day
	return nil
}

func (m *MockEntitlementStore) ExpireTier(ctx context.Context, userID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.ExpireError != nil {
		return m.ExpireError
	}
	rec, ok := m.Records[userID]
	if ok && rec.IsExpired(now) {
		rec.Tier = entitlement.TierFree
		rec.ProExpiresAt = nil
		rec.PaidSource = entitlement.PaidSourceNone
	}
	return nil
}

func copyRecord(rec *entitlement.Record) *entitlement.Record {
	c := *rec
	c.LastResetDate = copyTime(rec.LastResetDate)
	c.ProExpiresAt = copyTime(rec.ProExpiresAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// MockAuditLog is an in-memory entitlement.AuditLog
type MockAuditLog struct {
	mu     sync.Mutex
	Events []*entitlement.Event
	Saved  []*entitlement.UsageCount

	RecordError error
	ListError   error
	CountError  error
	SaveError   error
}

func NewMockAuditLog() *MockAuditLog {
	return &MockAuditLog{}
}

func (m *MockAuditLog) Record(ctx context.Context, e *entitlement.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordError != nil {
		return m.RecordError
	}
	c := *e
	m.Events = append(m.Events, &c)
	return nil
}

// Outcomes returns the recorded outcomes in order
func (m *MockAuditLog) Outcomes() []entitlement.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entitlement.Outcome, len(m.Events))
	for i, e := range m.Events {
		out[i] = e.Outcome
	}
	return out
}

func (m *MockAuditLog) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*entitlement.Event, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListError != nil {
		return nil, 0, m.ListError
	}
	var mine []*entitlement.Event
	for i := len(m.Events) - 1; i >= 0; i-- {
		if m.Events[i].UserID == userID {
			mine = append(mine, m.Events[i])
		}
	}
	total := int64(len(mine))
	if offset >= len(mine) {
		return []*entitlement.Event{}, total, nil
	}
	end := offset + limit
	if end > len(mine) {
		end = len(mine)
	}
	return mine[offset:end], total, nil
}

func (m *MockAuditLog) CountByDay(ctx context.Context, day time.Time) ([]*entitlement.UsageCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CountError != nil {
		return nil, m.CountError
	}
	d := entitlement.Day(day)
	type key struct {
		action  entitlement.ActionType
		outcome entitlement.Outcome
	}
	counts := make(map[key]int64)
	for _, e := range m.Events {
		if entitlement.Day(e.OccurredAt).Equal(d) {
			counts[key{e.ActionType, e.Outcome}]++
		}
	}
	out := make([]*entitlement.UsageCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, &entitlement.UsageCount{Day: d, ActionType: k.action, Outcome: k.outcome, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ActionType != out[j].ActionType {
			return out[i].ActionType < out[j].ActionType
		}
		return out[i].Outcome < out[j].Outcome
	})
	return out, nil
}

func (m *MockAuditLog) SaveDailyUsage(ctx context.Context, counts []*entitlement.UsageCount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	m.Saved = append(m.Saved, counts...)
	return nil
}

// MockCompleter is a chat.Completer returning a canned reply
type MockCompleter struct {
	mu           sync.Mutex
	Content      string
	Err          error
	Calls        int
	LastMessages []chat.Message
}

func (m *MockCompleter) Complete(ctx context.Context, messages []chat.Message) (*chat.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.LastMessages = append([]chat.Message(nil), messages...)
	if m.Err != nil {
		return nil, m.Err
	}
	return &chat.Completion{Content: m.Content, Model: "mock"}, nil
}

// MockBillingProvider is a billing.Provider that trusts a single signature
type MockBillingProvider struct {
	Session        *billing.CheckoutSession
	CheckoutError  error
	ValidSignature string
	Event          *billing.WebhookEvent
	Customers      []billing.Customer
}

func (m *MockBillingProvider) CreateCheckoutSession(ctx context.Context, customer billing.Customer) (*billing.CheckoutSession, error) {
	m.Customers = append(m.Customers, customer)
	if m.CheckoutError != nil {
		return nil, m.CheckoutError
	}
	return m.Session, nil
}

func (m *MockBillingProvider) ConstructEvent(payload []byte, signature string) (*billing.WebhookEvent, error) {
	if signature != m.ValidSignature {
		return nil, billing.ErrInvalidSignature
	}
	return m.Event, nil
}

// MockCustomerStore is an in-memory billing.CustomerStore
type MockCustomerStore struct {
	mu        sync.Mutex
	Customers map[string]string
	SaveError error
}

func NewMockCustomerStore() *MockCustomerStore {
	return &MockCustomerStore{Customers: make(map[string]string)}
}

func (m *MockCustomerStore) SaveCustomer(ctx context.Context, customerID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	m.Customers[customerID] = userID
	return nil
}

func (m *MockCustomerStore) UserForCustomer(ctx context.Context, customerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.Customers[customerID]
	if !ok {
		return "", billing.ErrCustomerNotFound
	}
	return userID, nil
}
