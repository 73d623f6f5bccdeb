package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/generatororacle/backend/internal/domain"
	"github.com/generatororacle/backend/internal/lib/sl"
	"github.com/generatororacle/backend/internal/repository"
	"github.com/generatororacle/backend/pkg/payment"
)

var errStoreDown = errors.New("store unavailable")

// memDB is an in-memory database. WithinTx serialises transactions and
// restores a snapshot when fn fails.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	users    map[string]domain.User
	sessions map[string]domain.Session
	payments map[string]domain.Payment
	subs     map[string]domain.Subscription

	failUpsert   error
	failSessions error
}

func newMemDB() *memDB {
	return &memDB{
		users:    map[string]domain.User{},
		sessions: map[string]domain.Session{},
		payments: map[string]domain.Payment{},
		subs:     map[string]domain.Subscription{},
	}
}

type inTxKey struct{}

func (db *memDB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	snap := db.snapshot()
	db.mu.Unlock()

	if err := fn(context.WithValue(ctx, inTxKey{}, true)); err != nil {
		db.mu.Lock()
		db.users, db.sessions, db.payments, db.subs = snap.users, snap.sessions, snap.payments, snap.subs
		db.mu.Unlock()
		return err
	}
	return nil
}

func (db *memDB) snapshot() *memDB {
	cp := newMemDB()
	for k, v := range db.users {
		cp.users[k] = v
	}
	for k, v := range db.sessions {
		cp.sessions[k] = v
	}
	for k, v := range db.payments {
		cp.payments[k] = v
	}
	for k, v := range db.subs {
		cp.subs[k] = v
	}
	return cp
}

type memUsers struct{ db *memDB }

func (s memUsers) Create(_ context.Context, u *domain.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, existing := range s.db.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	s.db.users[u.ID] = *u
	return nil
}

func (s memUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if strings.EqualFold(u.Email, email) {
			cp := u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s memUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s memUsers) Exists(ctx context.Context, email string) (bool, error) {
	u, err := s.FindByEmail(ctx, email)
	return u != nil, err
}

func (s memUsers) ListAll(_ context.Context) ([]*domain.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]*domain.User, 0, len(s.db.users))
	for _, u := range s.db.users {
		cp := u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s memUsers) Count(_ context.Context, activeOnly bool) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, u := range s.db.users {
		if !activeOnly || u.IsActive {
			n++
		}
	}
	return n, nil
}

func (s memUsers) update(id string, fn func(u *domain.User)) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil
	}
	fn(&u)
	s.db.users[id] = u
	return nil
}

func (s memUsers) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(u *domain.User) { u.LastLogin = &at })
}

func (s memUsers) UpdatePassword(_ context.Context, id, hash string) error {
	return s.update(id, func(u *domain.User) { u.PasswordHash = hash })
}

func (s memUsers) UpdateRole(_ context.Context, id, role string) error {
	return s.update(id, func(u *domain.User) { u.Role = role })
}

func (s memUsers) SetActive(_ context.Context, id string, active bool) error {
	return s.update(id, func(u *domain.User) { u.IsActive = active })
}

type memSessions struct{ db *memDB }

func (s memSessions) Create(_ context.Context, sess *domain.Session) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.failSessions != nil {
		return s.db.failSessions
	}
	s.db.sessions[sess.ID] = *sess
	return nil
}

func (s memSessions) FindByTokenHash(_ context.Context, hash string) (*domain.Session, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.failSessions != nil {
		return nil, s.db.failSessions
	}
	for _, sess := range s.db.sessions {
		if sess.TokenHash == hash {
			cp := sess
			return &cp, nil
		}
	}
	return nil, nil
}

func (s memSessions) revoke(match func(domain.Session) bool) int64 {
	now := time.Now()
	var n int64
	for id, sess := range s.db.sessions {
		if sess.Revoked || !match(sess) {
			continue
		}
		sess.Revoked = true
		sess.RevokedAt = &now
		s.db.sessions[id] = sess
		n++
	}
	return n
}

func (s memSessions) RevokeByTokenHash(_ context.Context, hash string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.revoke(func(sess domain.Session) bool { return sess.TokenHash == hash }) > 0, nil
}

func (s memSessions) RevokeByID(_ context.Context, userID, sessionID string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.revoke(func(sess domain.Session) bool { return sess.ID == sessionID && sess.UserID == userID }) > 0, nil
}

func (s memSessions) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.revoke(func(sess domain.Session) bool { return sess.UserID == userID }), nil
}

func (s memSessions) ListActive(_ context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*domain.Session
	for _, sess := range s.db.sessions {
		if sess.UserID == userID && !sess.Revoked && now.Before(sess.ExpiresAt) {
			cp := sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s memSessions) DeleteStale(_ context.Context, cutoff time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, sess := range s.db.sessions {
		if sess.ExpiresAt.Before(cutoff) || (sess.RevokedAt != nil && sess.RevokedAt.Before(cutoff)) {
			delete(s.db.sessions, id)
			n++
		}
	}
	return n, nil
}

type memPayments struct{ db *memDB }

func (s memPayments) Create(ctx context.Context, p *domain.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.payments[p.ID] = *p
	return nil
}

func (s memPayments) TransitionPending(_ context.Context, checkoutID string, res domain.PaymentResult) (*domain.Payment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for id, p := range s.db.payments {
		if p.CheckoutRequestID != checkoutID || p.Status != domain.PaymentPending {
			continue
		}
		code, desc := res.ResultCode, res.ResultDesc
		p.Status = res.Status
		p.ReceiptNumber = res.ReceiptNumber
		p.ResultCode = &code
		p.ResultDesc = &desc
		p.UpdatedAt = time.Now()
		s.db.payments[id] = p
		return &p, nil
	}
	return nil, nil
}

func (s memPayments) FindByCheckoutID(_ context.Context, checkoutID string) (*domain.Payment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, p := range s.db.payments {
		if p.CheckoutRequestID == checkoutID {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s memPayments) FindByID(_ context.Context, id string) (*domain.Payment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s memPayments) ListByUser(_ context.Context, userID string, limit int) ([]*domain.Payment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*domain.Payment
	for _, p := range s.db.payments {
		if p.UserID == userID {
			cp := p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memPayments) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]*domain.Payment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*domain.Payment
	for _, p := range s.db.payments {
		if p.Status == domain.PaymentPending && p.CreatedAt.Before(cutoff) {
			cp := p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memPayments) CountByStatus(_ context.Context) (map[domain.PaymentStatus]int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := map[domain.PaymentStatus]int{}
	for _, p := range s.db.payments {
		out[p.Status]++
	}
	return out, nil
}

type memSubs struct{ db *memDB }

func (s memSubs) Upsert(_ context.Context, sub *domain.Subscription) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.failUpsert != nil {
		return s.db.failUpsert
	}
	s.db.subs[sub.UserID] = *sub
	return nil
}

func (s memSubs) FindByUserID(_ context.Context, userID string) (*domain.Subscription, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	sub, ok := s.db.subs[userID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (s memSubs) CountActive(_ context.Context, now time.Time) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, sub := range s.db.subs {
		if sub.ActiveAt(now) {
			n++
		}
	}
	return n, nil
}

// memThrottle mirrors the Redis throttle without a window.
type memThrottle struct {
	mu    sync.Mutex
	fails map[string]int
	limit int
}

func newMemThrottle(limit int) *memThrottle {
	return &memThrottle{fails: map[string]int{}, limit: limit}
}

func (t *memThrottle) Blocked(_ context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fails[key] >= t.limit, nil
}

func (t *memThrottle) RecordFailure(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fails[key]++
	return nil
}

func (t *memThrottle) Reset(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.fails, key)
	return nil
}

type gatewayMock struct{ mock.Mock }

func (m *gatewayMock) STKPush(ctx context.Context, req payment.STKPushRequest) (*payment.STKPushResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*payment.STKPushResponse)
	return resp, args.Error(1)
}

func (m *gatewayMock) QueryStatus(ctx context.Context, checkoutID string) (*payment.CallbackResult, error) {
	args := m.Called(ctx, checkoutID)
	res, _ := args.Get(0).(*payment.CallbackResult)
	return res, args.Error(1)
}

type publishedEvent struct {
	key     string
	payload any
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []publishedEvent
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, publishedEvent{key: key, payload: payload})
	return p.err
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.sent))
	for i, e := range p.sent {
		out[i] = e.key
	}
	return out
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	db       *memDB
	clock    *clock
	throttle *memThrottle
	gateway  *gatewayMock
	events   *recordingPublisher

	sessions   *SessionService
	auth       *AuthService
	subs       *SubscriptionService
	ledger     *LedgerService
	reconciler *Reconciler
	stats      *StatsService
}

func newHarness() *harness {
	db := newMemDB()
	clk := &clock{t: time.Date(2026, 1, 17, 7, 0, 0, 0, time.UTC)}
	log := sl.Discard()

	h := &harness{
		db:       db,
		clock:    clk,
		throttle: newMemThrottle(5),
		gateway:  &gatewayMock{},
		events:   &recordingPublisher{},
	}

	h.sessions = NewSessionService(memSessions{db}, memUsers{db}, DefaultSessionTTL, log)
	h.sessions.now = clk.Now

	h.auth = NewAuthService(memUsers{db}, h.sessions, h.throttle, "admin@oracle.test", "Adm1nPassword", log)
	h.auth.now = clk.Now
	h.auth.cost = bcrypt.MinCost

	h.subs = NewSubscriptionService(memSubs{db}, memPayments{db}, log)
	h.subs.now = clk.Now

	h.ledger = NewLedgerService(memPayments{db}, h.subs, db, h.gateway, h.events, log)
	h.ledger.now = clk.Now

	h.reconciler = NewReconciler(memPayments{db}, h.gateway, h.ledger, DefaultReconcileAfter, log)
	h.reconciler.now = clk.Now

	h.stats = NewStatsService(memUsers{db}, memPayments{db}, memSubs{db})
	h.stats.now = clk.Now
	return h
}

// seedPending inserts a pending payment directly into the ledger.
func (h *harness) seedPending(userID, planID, checkoutID string) *domain.Payment {
	plan, _ := domain.GetPlan(planID)
	now := h.clock.Now()
	p := &domain.Payment{
		ID:                domain.NewPaymentID(),
		TransactionID:     "GO-" + checkoutID,
		CheckoutRequestID: checkoutID,
		MerchantRequestID: "m-" + checkoutID,
		UserID:            userID,
		PlanID:            planID,
		Amount:            plan.PriceKES,
		PhoneNumber:       "254700000000",
		Status:            domain.PaymentPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	_ = memPayments{h.db}.Create(context.Background(), p)
	return p
}

func (h *harness) payment(checkoutID string) *domain.Payment {
	p, _ := memPayments{h.db}.FindByCheckoutID(context.Background(), checkoutID)
	return p
}

func success(checkoutID, receipt string) *payment.CallbackResult {
	return &payment.CallbackResult{
		CheckoutRequestID: checkoutID,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		ReceiptNumber:     &receipt,
	}
}

func failure(checkoutID string, code int) *payment.CallbackResult {
	return &payment.CallbackResult{
		CheckoutRequestID: checkoutID,
		ResultCode:        code,
		ResultDesc:        "Request cancelled by user",
	}
}

func strPtr(s string) *string { return &s }
