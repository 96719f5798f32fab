package testutil

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/cassiomorais/orders/internal/domain/idempotency"
	"github.com/cassiomorais/orders/internal/domain/order"
	"github.com/cassiomorais/orders/internal/domain/outbox"
	"github.com/cassiomorais/orders/internal/domain/payment"
	"github.com/cassiomorais/orders/internal/domain/webhook"
	"github.com/google/uuid"
)

// Snapshotter is implemented by in-memory repositories that can roll back to
// an earlier state. MockTransactionManager uses it to emulate a rollback.
type Snapshotter interface {
	Snapshot() (restore func())
}

// --- Order Repository Mock ---

// MockOrderRepository is a mock implementation of order.Repository.
// Stored orders are copied on the way in and out, like a real database.
type MockOrderRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*order.Order

	CreateFunc       func(ctx context.Context, o *order.Order) error
	GetByIDFunc      func(ctx context.Context, tenantID, id uuid.UUID) (*order.Order, error)
	GetForUpdateFunc func(ctx context.Context, tenantID, id uuid.UUID) (*order.Order, error)
	UpdateStatusFunc func(ctx context.Context, o *order.Order) error
	ListFunc         func(ctx context.Context, filter order.ListFilter) ([]*order.Order, error)
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{orders: make(map[uuid.UUID]*order.Order)}
}

// AddOrder pre-populates the mock with an order.
func (m *MockOrderRepository) AddOrder(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(o)
}

// GetOrder returns the stored order (test helper, no context needed).
func (m *MockOrderRepository) GetOrder(id uuid.UUID) *order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil
	}
	return cloneOrder(o)
}

func (m *MockOrderRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *MockOrderRepository) Snapshot() func() {
	m.mu.Lock()
	saved := make(map[uuid.UUID]*order.Order, len(m.orders))
	for id, o := range m.orders {
		saved[id] = cloneOrder(o)
	}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.orders = saved
	}
}

func (m *MockOrderRepository) Create(ctx context.Context, o *order.Order) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*order.Order, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, tenantID, id)
	}
	return m.get(tenantID, id)
}

func (m *MockOrderRepository) GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*order.Order, error) {
	if m.GetForUpdateFunc != nil {
		return m.GetForUpdateFunc(ctx, tenantID, id)
	}
	return m.get(tenantID, id)
}

func (m *MockOrderRepository) get(tenantID, id uuid.UUID) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.TenantID != tenantID {
		return nil, domainErrors.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, o *order.Order) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[o.ID]
	if !ok || stored.TenantID != o.TenantID {
		return domainErrors.ErrOrderNotFound
	}
	stored.Status = o.Status
	stored.CancelReason = copyStringPtr(o.CancelReason)
	stored.UpdatedAt = o.UpdatedAt
	return nil
}

func (m *MockOrderRepository) List(ctx context.Context, filter order.ListFilter) ([]*order.Order, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if o.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		result = append(result, cloneOrder(o))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })

	if filter.Offset >= len(result) {
		return []*order.Order{}, nil
	}
	result = result[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	c.Items = append([]order.Item(nil), o.Items...)
	c.CancelReason = copyStringPtr(o.CancelReason)
	return &c
}

// --- Catalog Mock ---

// MockCatalog is a mock implementation of order.Catalog.
type MockCatalog struct {
	mu    sync.Mutex
	items map[uuid.UUID]*order.MenuItem

	GetMenuItemsFunc func(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*order.MenuItem, error)
}

func NewMockCatalog(items ...*order.MenuItem) *MockCatalog {
	c := &MockCatalog{items: make(map[uuid.UUID]*order.MenuItem)}
	for _, it := range items {
		c.items[it.ID] = it
	}
	return c
}

func (m *MockCatalog) AddMenuItem(it *order.MenuItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = it
}

func (m *MockCatalog) GetMenuItems(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*order.MenuItem, error) {
	if m.GetMenuItemsFunc != nil {
		return m.GetMenuItemsFunc(ctx, tenantID, ids)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[uuid.UUID]*order.MenuItem, len(ids))
	for _, id := range ids {
		if it, ok := m.items[id]; ok && it.TenantID == tenantID {
			c := *it
			result[id] = &c
		}
	}
	return result, nil
}

// --- Payment Repository Mock ---

// MockPaymentRepository is a mock implementation of payment.Repository.
type MockPaymentRepository struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*payment.Payment

	CreateFunc                 func(ctx context.Context, p *payment.Payment) error
	GetByProviderPaymentIDFunc func(ctx context.Context, provider payment.Provider, providerPaymentID string) (*payment.Payment, error)
	GetForUpdateFunc           func(ctx context.Context, tenantID, id uuid.UUID) (*payment.Payment, error)
	ListByOrderFunc            func(ctx context.Context, tenantID, orderID uuid.UUID) ([]*payment.Payment, error)
	UpdateStatusFunc           func(ctx context.Context, p *payment.Payment) error
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{payments: make(map[uuid.UUID]*payment.Payment)}
}

// AddPayment pre-populates the mock with a payment.
func (m *MockPaymentRepository) AddPayment(p *payment.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = clonePayment(p)
}

// GetPayment returns the stored payment (test helper, no context needed).
func (m *MockPaymentRepository) GetPayment(id uuid.UUID) *payment.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil
	}
	return clonePayment(p)
}

func (m *MockPaymentRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

func (m *MockPaymentRepository) Snapshot() func() {
	m.mu.Lock()
	saved := make(map[uuid.UUID]*payment.Payment, len(m.payments))
	for id, p := range m.payments {
		saved[id] = clonePayment(p)
	}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.payments = saved
	}
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.payments {
		if existing.Provider == p.Provider && existing.ProviderPaymentID == p.ProviderPaymentID {
			return domainErrors.NewDomainError("duplicate_payment", "payment already exists", domainErrors.ErrInvalidInput)
		}
	}
	m.payments[p.ID] = clonePayment(p)
	return nil
}

func (m *MockPaymentRepository) GetByProviderPaymentID(ctx context.Context, provider payment.Provider, providerPaymentID string) (*payment.Payment, error) {
	if m.GetByProviderPaymentIDFunc != nil {
		return m.GetByProviderPaymentIDFunc(ctx, provider, providerPaymentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.Provider == provider && p.ProviderPaymentID == providerPaymentID {
			return clonePayment(p), nil
		}
	}
	return nil, domainErrors.ErrPaymentNotFound
}

func (m *MockPaymentRepository) GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*payment.Payment, error) {
	if m.GetForUpdateFunc != nil {
		return m.GetForUpdateFunc(ctx, tenantID, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.TenantID != tenantID {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (m *MockPaymentRepository) ListByOrder(ctx context.Context, tenantID, orderID uuid.UUID) ([]*payment.Payment, error) {
	if m.ListByOrderFunc != nil {
		return m.ListByOrderFunc(ctx, tenantID, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*payment.Payment, 0)
	for _, p := range m.payments {
		if p.TenantID == tenantID && p.OrderID == orderID {
			result = append(result, clonePayment(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *MockPaymentRepository) UpdateStatus(ctx context.Context, p *payment.Payment) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.payments[p.ID]
	if !ok {
		return domainErrors.ErrPaymentNotFound
	}
	stored.Status = p.Status
	stored.UpdatedAt = p.UpdatedAt
	stored.CompletedAt = copyTimePtr(p.CompletedAt)
	return nil
}

func clonePayment(p *payment.Payment) *payment.Payment {
	c := *p
	c.CompletedAt = copyTimePtr(p.CompletedAt)
	c.Metadata = make(map[string]any, len(p.Metadata))
	for k, v := range p.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

// --- Payment Config Repository Mock ---

// MockPaymentConfigRepository is a mock implementation of payment.ConfigRepository.
type MockPaymentConfigRepository struct {
	mu      sync.Mutex
	configs map[string]*payment.Config

	GetActiveFunc func(ctx context.Context, tenantID uuid.UUID, provider payment.Provider) (*payment.Config, error)
	GetFunc       func(ctx context.Context, tenantID uuid.UUID, provider payment.Provider) (*payment.Config, error)
	UpsertFunc    func(ctx context.Context, cfg *payment.Config) error
}

func NewMockPaymentConfigRepository() *MockPaymentConfigRepository {
	return &MockPaymentConfigRepository{configs: make(map[string]*payment.Config)}
}

func configKey(tenantID uuid.UUID, provider payment.Provider) string {
	return tenantID.String() + "/" + string(provider)
}

// AddConfig pre-populates the mock with a config.
func (m *MockPaymentConfigRepository) AddConfig(cfg *payment.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cfg
	m.configs[configKey(cfg.TenantID, cfg.Provider)] = &c
}

func (m *MockPaymentConfigRepository) GetActive(ctx context.Context, tenantID uuid.UUID, provider payment.Provider) (*payment.Config, error) {
	if m.GetActiveFunc != nil {
		return m.GetActiveFunc(ctx, tenantID, provider)
	}
	cfg, err := m.get(tenantID, provider)
	if err != nil {
		return nil, err
	}
	if !cfg.Active {
		return nil, domainErrors.ErrPaymentConfigNotFound
	}
	return cfg, nil
}

func (m *MockPaymentConfigRepository) Get(ctx context.Context, tenantID uuid.UUID, provider payment.Provider) (*payment.Config, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, tenantID, provider)
	}
	return m.get(tenantID, provider)
}

func (m *MockPaymentConfigRepository) get(tenantID uuid.UUID, provider payment.Provider) (*payment.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[configKey(tenantID, provider)]
	if !ok {
		return nil, domainErrors.ErrPaymentConfigNotFound
	}
	c := *cfg
	return &c, nil
}

func (m *MockPaymentConfigRepository) Upsert(ctx context.Context, cfg *payment.Config) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, cfg)
	}
	m.AddConfig(cfg)
	return nil
}

// --- Webhook Repository Mock ---

// MockWebhookRepository is a mock implementation of webhook.Repository with
// the same claim semantics as the SQL upsert.
type MockWebhookRepository struct {
	mu      sync.Mutex
	entries map[string]*webhook.Entry

	GetFunc           func(ctx context.Context, provider, providerEventID string) (*webhook.Entry, error)
	RecordFunc        func(ctx context.Context, entry *webhook.Entry) error
	ClaimFunc         func(ctx context.Context, entry *webhook.Entry, staleAfter time.Duration) (bool, error)
	MarkCompletedFunc func(ctx context.Context, claimed *webhook.Entry) error
	MarkFailedFunc    func(ctx context.Context, claimed *webhook.Entry, reason string) error
	PurgeBeforeFunc   func(ctx context.Context, cutoff time.Time) (int64, error)
}

func NewMockWebhookRepository() *MockWebhookRepository {
	return &MockWebhookRepository{entries: make(map[string]*webhook.Entry)}
}

func ledgerKey(provider, eventID string) string {
	return provider + "/" + eventID
}

// AddEntry pre-populates the ledger.
func (m *MockWebhookRepository) AddEntry(e *webhook.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[ledgerKey(e.Provider, e.ProviderEventID)] = cloneEntry(e)
}

// Entry returns the stored ledger entry (test helper, no context needed).
func (m *MockWebhookRepository) Entry(provider, eventID string) *webhook.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[ledgerKey(provider, eventID)]
	if !ok {
		return nil
	}
	return cloneEntry(e)
}

func (m *MockWebhookRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MockWebhookRepository) Snapshot() func() {
	m.mu.Lock()
	saved := make(map[string]*webhook.Entry, len(m.entries))
	for k, e := range m.entries {
		saved[k] = cloneEntry(e)
	}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.entries = saved
	}
}

func (m *MockWebhookRepository) Get(ctx context.Context, provider, providerEventID string) (*webhook.Entry, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, provider, providerEventID)
	}
	e := m.Entry(provider, providerEventID)
	if e == nil {
		return nil, domainErrors.ErrWebhookEventNotFound
	}
	return e, nil
}

func (m *MockWebhookRepository) Record(ctx context.Context, entry *webhook.Entry) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ledgerKey(entry.Provider, entry.ProviderEventID)
	existing, ok := m.entries[key]
	if !ok {
		m.entries[key] = cloneEntry(entry)
		return nil
	}
	if existing.Status == webhook.StatusCompleted || existing.Status == webhook.StatusProcessing {
		return nil
	}
	existing.Status = entry.Status
	existing.LastError = copyStringPtr(entry.LastError)
	existing.Attempts++
	existing.UpdatedAt = time.Now()
	return nil
}

func (m *MockWebhookRepository) Claim(ctx context.Context, entry *webhook.Entry, staleAfter time.Duration) (bool, error) {
	if m.ClaimFunc != nil {
		return m.ClaimFunc(ctx, entry, staleAfter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ledgerKey(entry.Provider, entry.ProviderEventID)
	now := time.Now()
	existing, ok := m.entries[key]
	if !ok {
		c := cloneEntry(entry)
		c.Status = webhook.StatusProcessing
		c.UpdatedAt = now
		m.entries[key] = c
		entry.Status = webhook.StatusProcessing
		return true, nil
	}
	if existing.Status == webhook.StatusCompleted {
		return false, nil
	}
	if existing.Status == webhook.StatusProcessing && now.Sub(existing.UpdatedAt) < staleAfter {
		return false, nil
	}
	existing.Status = webhook.StatusProcessing
	existing.Payload = append([]byte(nil), entry.Payload...)
	existing.LastError = nil
	existing.Attempts++
	existing.UpdatedAt = now
	entry.Status = webhook.StatusProcessing
	entry.Attempts = existing.Attempts
	return true, nil
}

func (m *MockWebhookRepository) MarkCompleted(ctx context.Context, claimed *webhook.Entry) error {
	if m.MarkCompletedFunc != nil {
		return m.MarkCompletedFunc(ctx, claimed)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[ledgerKey(claimed.Provider, claimed.ProviderEventID)]
	if !ok || e.Status != webhook.StatusProcessing || e.Attempts != claimed.Attempts {
		return domainErrors.ErrWebhookClaimLost
	}
	now := time.Now()
	e.Status = webhook.StatusCompleted
	e.LastError = nil
	e.UpdatedAt = now
	e.ProcessedAt = &now
	return nil
}

func (m *MockWebhookRepository) MarkFailed(ctx context.Context, claimed *webhook.Entry, reason string) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, claimed, reason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[ledgerKey(claimed.Provider, claimed.ProviderEventID)]
	if !ok || e.Status != webhook.StatusProcessing || e.Attempts != claimed.Attempts {
		return nil
	}
	e.Status = webhook.StatusFailed
	e.LastError = &reason
	e.UpdatedAt = time.Now()
	return nil
}

func (m *MockWebhookRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.PurgeBeforeFunc != nil {
		return m.PurgeBeforeFunc(ctx, cutoff)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.entries {
		if e.Status != webhook.StatusProcessing && e.UpdatedAt.Before(cutoff) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func cloneEntry(e *webhook.Entry) *webhook.Entry {
	c := *e
	c.Payload = append([]byte(nil), e.Payload...)
	c.LastError = copyStringPtr(e.LastError)
	c.ProcessedAt = copyTimePtr(e.ProcessedAt)
	return &c
}

// --- Idempotency Store Mock ---

// MockIdempotencyStore is a mock implementation of idempotency.Store.
type MockIdempotencyStore struct {
	mu      sync.Mutex
	records map[string]*idempotency.Record

	ReserveFunc  func(ctx context.Context, rec *idempotency.Record) (*idempotency.Record, bool, error)
	CompleteFunc func(ctx context.Context, rec *idempotency.Record) error
	ReleaseFunc  func(ctx context.Context, tenantID uuid.UUID, key string) error
	PurgeFunc    func(ctx context.Context, now time.Time) (int64, error)
}

func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{records: make(map[string]*idempotency.Record)}
}

func recordKey(tenantID uuid.UUID, key string) string {
	return tenantID.String() + "/" + key
}

// Record returns the stored record (test helper, no context needed).
func (m *MockIdempotencyStore) Record(tenantID uuid.UUID, key string) *idempotency.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordKey(tenantID, key)]
	if !ok {
		return nil
	}
	c := *rec
	return &c
}

func (m *MockIdempotencyStore) Reserve(ctx context.Context, rec *idempotency.Record) (*idempotency.Record, bool, error) {
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recordKey(rec.TenantID, rec.Key)
	if existing, ok := m.records[k]; ok && !existing.IsExpired(time.Now()) {
		c := *existing
		return &c, false, nil
	}
	c := *rec
	c.State = idempotency.StatePending
	m.records[k] = &c
	return nil, true, nil
}

func (m *MockIdempotencyStore) Complete(ctx context.Context, rec *idempotency.Record) error {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *rec
	c.State = idempotency.StateCompleted
	c.ResponseBody = append([]byte(nil), rec.ResponseBody...)
	m.records[recordKey(rec.TenantID, rec.Key)] = &c
	return nil
}

func (m *MockIdempotencyStore) Release(ctx context.Context, tenantID uuid.UUID, key string) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, tenantID, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recordKey(tenantID, key)
	if rec, ok := m.records[k]; ok && rec.State == idempotency.StatePending {
		delete(m.records, k)
	}
	return nil
}

func (m *MockIdempotencyStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	if m.PurgeFunc != nil {
		return m.PurgeFunc(ctx, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, rec := range m.records {
		if rec.IsExpired(now) {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
// When fn fails, every participant is restored to its state before the call.
type MockTransactionManager struct {
	participants []Snapshotter
	calls        atomic.Int64

	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager(participants ...Snapshotter) *MockTransactionManager {
	return &MockTransactionManager{participants: participants}
}

// Calls returns how many transactions were started.
func (m *MockTransactionManager) Calls() int {
	return int(m.calls.Load())
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls.Add(1)
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}

	restores := make([]func(), 0, len(m.participants))
	for _, p := range m.participants {
		restores = append(restores, p.Snapshot())
	}
	if err := fn(ctx); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is a mock implementation of outbox.Repository.
type MockOutboxRepository struct {
	mu      sync.Mutex
	entries []*outbox.Entry

	InsertFunc         func(ctx context.Context, entry *outbox.Entry) error
	GetPendingFunc     func(ctx context.Context, limit int) ([]*outbox.Entry, error)
	MarkPublishedFunc  func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc     func(ctx context.Context, id uuid.UUID) error
	PurgePublishedFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

// Entries returns a copy of all stored entries in insertion order.
func (m *MockOutboxRepository) Entries() []outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]outbox.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	return out
}

func (m *MockOutboxRepository) Snapshot() func() {
	m.mu.Lock()
	saved := make([]*outbox.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		c := *e
		saved = append(saved, &c)
	}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.entries = saved
	}
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *entry
	m.entries = append(m.entries, &c)
	return nil
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if m.GetPendingFunc != nil {
		return m.GetPendingFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*outbox.Entry
	for _, e := range m.entries {
		if len(out) == limit {
			break
		}
		if e.Status == outbox.StatusPending && e.RetryCount < e.MaxRetries {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			now := time.Now()
			e.Status = outbox.StatusPublished
			e.PublishedAt = &now
		}
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.RetryCount++
			if e.RetryCount >= e.MaxRetries {
				e.Status = outbox.StatusFailed
			}
		}
	}
	return nil
}

func (m *MockOutboxRepository) PurgePublished(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.PurgePublishedFunc != nil {
		return m.PurgePublishedFunc(ctx, cutoff)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	var n int64
	for _, e := range m.entries {
		if e.Status == outbox.StatusPublished && e.PublishedAt != nil && e.PublishedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return n, nil
}

// --- Publisher Mock ---

// MockPublisher records published entries.
type MockPublisher struct {
	mu        sync.Mutex
	published []outbox.Entry

	PublishFunc func(ctx context.Context, entry *outbox.Entry) error
}

func (m *MockPublisher) Publish(ctx context.Context, entry *outbox.Entry) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, entry); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, *entry)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

func (m *MockPublisher) Published() []outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]outbox.Entry(nil), m.published...)
}

func copyStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func copyTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
