package tests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ridecoord/internal/domain"
	"ridecoord/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK RIDE STORE
// ──────────────────────────────────────────────

// MockRideStore is an in-memory RideStore. Merge applies the same patch
// rules as the PostgreSQL store and records every change.
type MockRideStore struct {
	mu      sync.Mutex
	rides   map[string]*domain.Ride
	changes []*domain.RideChange
	nextID  int64

	// Counters for verification
	GetCallCount   int32
	MergeCallCount int32

	// Error injection
	GetError   error
	MergeError error
}

// NewMockRideStore creates a new mock ride store.
func NewMockRideStore() *MockRideStore {
	return &MockRideStore{rides: make(map[string]*domain.Ride)}
}

// AddRide adds a ride to the mock store.
func (m *MockRideStore) AddRide(ride *domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[ride.ID] = cloneRide(ride)
}

func (m *MockRideStore) Create(ctx context.Context, ride *domain.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[ride.ID]; ok {
		return repository.ErrAlreadyExists
	}
	m.rides[ride.ID] = cloneRide(ride)
	return nil
}

func (m *MockRideStore) Get(ctx context.Context, id string) (*domain.Ride, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ride, ok := m.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneRide(ride), nil
}

func (m *MockRideStore) Merge(ctx context.Context, id string, patch domain.RidePatch) (*domain.RideChange, error) {
	atomic.AddInt32(&m.MergeCallCount, 1)
	if m.MergeError != nil {
		return nil, m.MergeError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	before, ok := m.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	after, err := repository.ApplyPatch(before, patch, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	m.nextID++
	change := &domain.RideChange{
		ID:         m.nextID,
		RideID:     id,
		Before:     cloneRide(before),
		After:      cloneRide(after),
		OccurredAt: after.UpdatedAt,
	}
	m.rides[id] = after
	m.changes = append(m.changes, change)
	return change, nil
}

func (m *MockRideStore) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, ride := range m.rides {
		if len(ids) == limit {
			break
		}
		if ride.Status == domain.RideStatusPending && ride.TimeoutAt != nil && ride.TimeoutAt.Before(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// GetRide returns the stored ride without counting a call.
func (m *MockRideStore) GetRide(id string) *domain.Ride {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ride, ok := m.rides[id]; ok {
		return cloneRide(ride)
	}
	return nil
}

// Changes returns the recorded changes in order.
func (m *MockRideStore) Changes() []*domain.RideChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.RideChange, len(m.changes))
	copy(out, m.changes)
	return out
}

func cloneRide(ride *domain.Ride) *domain.Ride {
	data, err := json.Marshal(ride)
	if err != nil {
		panic(err)
	}
	var out domain.Ride
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return &out
}

// ──────────────────────────────────────────────
// MOCK RIDER REPOSITORY
// ──────────────────────────────────────────────

// MockRiderRepository is a mock implementation of RiderRepository.
type MockRiderRepository struct {
	mu     sync.Mutex
	riders map[string]*domain.Rider

	SetCustomerCallCount int32
}

// NewMockRiderRepository creates a new mock rider repository.
func NewMockRiderRepository() *MockRiderRepository {
	return &MockRiderRepository{riders: make(map[string]*domain.Rider)}
}

// AddRider adds a rider to the mock repository.
func (m *MockRiderRepository) AddRider(rider *domain.Rider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := *rider
	m.riders[rider.UID] = &r
}

func (m *MockRiderRepository) GetByUID(ctx context.Context, uid string) (*domain.Rider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rider, ok := m.riders[uid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	r := *rider
	return &r, nil
}

func (m *MockRiderRepository) Upsert(ctx context.Context, rider *domain.Rider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.riders[rider.UID]; ok {
		if existing.Email == "" {
			existing.Email = rider.Email
		}
		if existing.Name == "" {
			existing.Name = rider.Name
		}
		return nil
	}
	r := *rider
	r.CreatedAt = time.Now().UTC()
	m.riders[rider.UID] = &r
	return nil
}

func (m *MockRiderRepository) SetStripeCustomerID(ctx context.Context, uid, customerID string) (bool, error) {
	atomic.AddInt32(&m.SetCustomerCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	rider, ok := m.riders[uid]
	if !ok || rider.StripeCustomerID != "" {
		return false, nil
	}
	rider.StripeCustomerID = customerID
	return true, nil
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStoreInterface.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]string

	AcquireError error
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]string)}
}

func (m *MockLockStore) AcquireRiderLock(ctx context.Context, uid string, ttl time.Duration) (string, bool, error) {
	if m.AcquireError != nil {
		return "", false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[uid]; held {
		return "", false, nil
	}
	token := fmt.Sprintf("token-%s", uid)
	m.locks[uid] = token
	return token, true, nil
}

func (m *MockLockStore) ReleaseRiderLock(ctx context.Context, uid, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[uid] == token {
		delete(m.locks, uid)
	}
	return nil
}

// Hold marks the rider as locked by someone else.
func (m *MockLockStore) Hold(uid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[uid] = "other"
}

// IsLocked reports whether the rider lock is held.
func (m *MockLockStore) IsLocked(uid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.locks[uid]
	return ok
}

// ──────────────────────────────────────────────
// MOCK NOTIFIER
// ──────────────────────────────────────────────

// SentMessage is one message handed to MockNotifier.
type SentMessage struct {
	To   string
	Body string
}

// MockNotifier records sent messages.
type MockNotifier struct {
	mu   sync.Mutex
	sent []SentMessage

	SendError error
}

// NewMockNotifier creates a new mock notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Send(ctx context.Context, to, body string) (string, error) {
	if m.SendError != nil {
		return "", m.SendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMessage{To: to, Body: body})
	return fmt.Sprintf("SM%03d", len(m.sent)), nil
}

// Sent returns the messages sent so far.
func (m *MockNotifier) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// ──────────────────────────────────────────────
// MOCK PAYMENT GATEWAY
// ──────────────────────────────────────────────

// ErrAmountTooLarge mirrors the processor's rejection of an over-capture.
var ErrAmountTooLarge = errors.New("amount_to_capture must be less than or equal to the authorized amount")

// MockGateway is an in-memory payment processor. Like the real one, it
// returns the original object for a repeated idempotency key.
type MockGateway struct {
	mu        sync.Mutex
	customers map[string]string
	intents   map[string]*domain.PaymentIntent
	byKey     map[string]*domain.Authorization
	metadata  map[string]map[string]string
	cards     map[string]int
	seq       int

	// Counters for verification
	CreateCustomerCallCount      int32
	CreateAuthorizationCallCount int32
	GetAuthorizationCallCount    int32
	CaptureCallCount             int32

	// Last request seen
	LastAuthorization domain.AuthorizationParams
	LastCancelReason  string

	// Error injection
	CreateCustomerError error
	AuthorizeError      error
	CaptureError        error
	CancelError         error
}

// NewMockGateway creates a new mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		customers: make(map[string]string),
		intents:   make(map[string]*domain.PaymentIntent),
		byKey:     make(map[string]*domain.Authorization),
		metadata:  make(map[string]map[string]string),
		cards:     make(map[string]int),
	}
}

// SetSavedCards sets how many cards a customer has on file.
func (m *MockGateway) SetSavedCards(customerID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[customerID] = n
}

// IntentCount returns how many distinct authorizations exist.
func (m *MockGateway) IntentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.intents)
}

// Intent returns a stored authorization.
func (m *MockGateway) Intent(id string) *domain.PaymentIntent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pi, ok := m.intents[id]; ok {
		c := *pi
		return &c
	}
	return nil
}

func (m *MockGateway) CreateCustomer(ctx context.Context, p domain.CustomerParams) (string, error) {
	atomic.AddInt32(&m.CreateCustomerCallCount, 1)
	if m.CreateCustomerError != nil {
		return "", m.CreateCustomerError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.customers[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		return id, nil
	}
	m.seq++
	id := fmt.Sprintf("cus_%d", m.seq)
	m.customers[p.IdempotencyKey] = id
	return id, nil
}

func (m *MockGateway) CountPaymentMethods(ctx context.Context, customerID string, limit int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.cards[customerID]
	if int64(n) > limit {
		n = int(limit)
	}
	return n, nil
}

func (m *MockGateway) CreateAuthorization(ctx context.Context, p domain.AuthorizationParams) (*domain.Authorization, error) {
	atomic.AddInt32(&m.CreateAuthorizationCallCount, 1)
	if m.AuthorizeError != nil {
		return nil, m.AuthorizeError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastAuthorization = p

	if auth, ok := m.byKey[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		c := *auth
		return &c, nil
	}

	m.seq++
	id := fmt.Sprintf("pi_%d", m.seq)
	auth := &domain.Authorization{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       domain.PaymentStatusRequiresCapture,
		AmountCents:  p.AmountCents,
		Currency:     p.Currency,
	}
	m.byKey[p.IdempotencyKey] = auth
	m.intents[id] = &domain.PaymentIntent{
		ID:          id,
		Status:      domain.PaymentStatusRequiresCapture,
		AmountCents: p.AmountCents,
		Currency:    p.Currency,
		RideID:      p.Metadata["rideId"],
	}
	c := *auth
	return &c, nil
}

func (m *MockGateway) GetAuthorization(ctx context.Context, paymentIntentID string) (*domain.Authorization, error) {
	atomic.AddInt32(&m.GetAuthorizationCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	pi, ok := m.intents[paymentIntentID]
	if !ok {
		return nil, fmt.Errorf("no such payment_intent: '%s'", paymentIntentID)
	}
	return &domain.Authorization{
		ID:           pi.ID,
		ClientSecret: pi.ID + "_secret",
		Status:       pi.Status,
		AmountCents:  pi.AmountCents,
		Currency:     pi.Currency,
	}, nil
}

func (m *MockGateway) Capture(ctx context.Context, paymentIntentID string, amountCents int64) (*domain.PaymentIntent, error) {
	atomic.AddInt32(&m.CaptureCallCount, 1)
	if m.CaptureError != nil {
		return nil, m.CaptureError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pi, ok := m.intents[paymentIntentID]
	if !ok {
		return nil, fmt.Errorf("no such payment_intent: '%s'", paymentIntentID)
	}
	if amountCents > pi.AmountCents {
		return nil, ErrAmountTooLarge
	}
	pi.Status = domain.PaymentStatusSucceeded
	pi.AmountCapturedCents = amountCents
	c := *pi
	return &c, nil
}

func (m *MockGateway) Cancel(ctx context.Context, paymentIntentID, reason string) (*domain.PaymentIntent, error) {
	if m.CancelError != nil {
		return nil, m.CancelError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastCancelReason = reason
	pi, ok := m.intents[paymentIntentID]
	if !ok {
		return nil, fmt.Errorf("no such payment_intent: '%s'", paymentIntentID)
	}
	pi.Status = domain.PaymentStatusCanceled
	c := *pi
	return &c, nil
}

// ──────────────────────────────────────────────
// MOCK RIDE CACHE
// ──────────────────────────────────────────────

// MockRideCache is a mock implementation of RideCacheInterface.
type MockRideCache struct {
	mu    sync.Mutex
	rides map[string]*domain.Ride

	Invalidations int32
}

// NewMockRideCache creates a new mock ride cache.
func NewMockRideCache() *MockRideCache {
	return &MockRideCache{rides: make(map[string]*domain.Ride)}
}

func (m *MockRideCache) GetRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ride, ok := m.rides[rideID]; ok {
		return cloneRide(ride), nil
	}
	return nil, nil
}

func (m *MockRideCache) SetRide(ctx context.Context, ride *domain.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[ride.ID] = cloneRide(ride)
	return nil
}

func (m *MockRideCache) InvalidateRide(ctx context.Context, rideID string) error {
	atomic.AddInt32(&m.Invalidations, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rides, rideID)
	return nil
}

// Has reports whether the ride is cached.
func (m *MockRideCache) Has(rideID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rides[rideID]
	return ok
}
