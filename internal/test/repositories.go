package test

import (
	"context"
	"sort"
	"sync"
	"time"

	domainErrors "github.com/polkiloo/bookshop/internal/domain/errors"
	"github.com/polkiloo/bookshop/internal/domain/model"
	"github.com/polkiloo/bookshop/internal/domain/repository"
)

// OperatorRepositoryStub stores operators in-memory for tests.
type OperatorRepositoryStub struct {
	Operators map[string]*model.Operator
	ByID      map[int64]*model.Operator
	Next      int64
	Err       error
}

// NewOperatorRepositoryStub constructs stub repository with initialized maps.
func NewOperatorRepositoryStub() *OperatorRepositoryStub {
	return &OperatorRepositoryStub{
		Operators: make(map[string]*model.Operator),
		ByID:      make(map[int64]*model.Operator),
		Next:      1,
	}
}

// Create registers operator unless already exists or stub has explicit error.
func (s *OperatorRepositoryStub) Create(ctx context.Context, login, passwordHash string) (*model.Operator, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if _, exists := s.Operators[login]; exists {
		return nil, domainErrors.ErrAlreadyExists
	}
	op := &model.Operator{ID: s.Next, Login: login, PasswordHash: passwordHash, CreatedAt: time.Now()}
	s.Next++
	s.Operators[login] = op
	s.ByID[op.ID] = op
	return op, nil
}

// GetByLogin fetches operator by login or returns not found.
func (s *OperatorRepositoryStub) GetByLogin(ctx context.Context, login string) (*model.Operator, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if op, ok := s.Operators[login]; ok {
		return op, nil
	}
	return nil, domainErrors.ErrNotFound
}

// GetByID fetches operator by identifier or returns not found.
func (s *OperatorRepositoryStub) GetByID(ctx context.Context, id int64) (*model.Operator, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if op, ok := s.ByID[id]; ok {
		return op, nil
	}
	return nil, domainErrors.ErrNotFound
}

// MemoryStore is a transactional in-memory order store and inventory ledger.
// Transactions are serialized, which stands in for row locks, and a failed
// transaction restores the snapshot taken when it began.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	books       map[int64]model.Book
	orders      map[int64]*model.Order
	byNo        map[string]int64
	transitions []model.Transition
	nextOrderID int64
	nextLineID  int64
	failOn      map[string]error

	// Now stamps created_at and updated_at; defaults to time.Now.
	Now func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:  make(map[int64]model.Book),
		orders: make(map[int64]*model.Order),
		byNo:   make(map[string]int64),
		failOn: make(map[string]error),
		Now:    time.Now,
	}
}

var (
	_ repository.Transactor      = (*MemoryStore)(nil)
	_ repository.Store           = (*MemoryStore)(nil)
	_ repository.OrderRepository = (*memoryOrders)(nil)
	_ repository.InventoryLedger = (*memoryLedger)(nil)
	_ repository.Catalog         = (*memoryLedger)(nil)
)

// AddBook seeds or replaces a catalog entry.
func (m *MemoryStore) AddBook(book model.Book) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[book.ID] = book
}

// Book returns the current catalog entry.
func (m *MemoryStore) Book(id int64) model.Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.books[id]
}

// Order returns a copy of the stored order; the zero value when missing.
func (m *MemoryStore) Order(outTradeNo string) model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byNo[outTradeNo]
	if !ok {
		return model.Order{}
	}
	return *copyOrder(m.orders[id])
}

// Transitions returns the recorded audit trail.
func (m *MemoryStore) Transitions() []model.Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Transition(nil), m.transitions...)
}

// SetCreatedAt backdates an order.
func (m *MemoryStore) SetCreatedAt(outTradeNo string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byNo[outTradeNo]; ok {
		m.orders[id].CreatedAt = at
	}
}

// SetFulfillmentNextAt overrides the fulfillment schedule of an order.
func (m *MemoryStore) SetFulfillmentNextAt(outTradeNo string, at *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byNo[outTradeNo]; ok {
		m.orders[id].FulfillmentNextAt = copyTime(at)
	}
}

// FailOn makes the named repository method return err until cleared with a nil err.
func (m *MemoryStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failOn, method)
		return
	}
	m.failOn[method] = err
}

func (m *MemoryStore) injected(method string) error {
	return m.failOn[method]
}

// WithinTransaction runs fn with exclusive access and rolls back on error.
func (m *MemoryStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *MemoryStore) Orders() repository.OrderRepository   { return &memoryOrders{m: m} }
func (m *MemoryStore) Inventory() repository.InventoryLedger { return &memoryLedger{m: m} }
func (m *MemoryStore) Catalog() repository.Catalog           { return &memoryLedger{m: m} }

type memorySnapshot struct {
	books       map[int64]model.Book
	orders      map[int64]*model.Order
	byNo        map[string]int64
	transitions []model.Transition
	nextOrderID int64
	nextLineID  int64
}

func (m *MemoryStore) snapshot() memorySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := memorySnapshot{
		books:       make(map[int64]model.Book, len(m.books)),
		orders:      make(map[int64]*model.Order, len(m.orders)),
		byNo:        make(map[string]int64, len(m.byNo)),
		transitions: append([]model.Transition(nil), m.transitions...),
		nextOrderID: m.nextOrderID,
		nextLineID:  m.nextLineID,
	}
	for k, v := range m.books {
		snap.books[k] = v
	}
	for k, v := range m.orders {
		snap.orders[k] = copyOrder(v)
	}
	for k, v := range m.byNo {
		snap.byNo[k] = v
	}
	return snap
}

func (m *MemoryStore) restore(snap memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books = snap.books
	m.orders = snap.orders
	m.byNo = snap.byNo
	m.transitions = snap.transitions
	m.nextOrderID = snap.nextOrderID
	m.nextLineID = snap.nextLineID
}

type memoryOrders struct {
	m *MemoryStore
}

func (r *memoryOrders) Create(ctx context.Context, order *model.Order) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("Create"); err != nil {
		return err
	}
	if _, exists := m.byNo[order.OutTradeNo]; exists {
		return domainErrors.ErrAlreadyExists
	}

	m.nextOrderID++
	now := m.Now()
	order.ID = m.nextOrderID
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.Lines {
		m.nextLineID++
		order.Lines[i].ID = m.nextLineID
		order.Lines[i].OrderID = order.ID
	}
	m.orders[order.ID] = copyOrder(order)
	m.byNo[order.OutTradeNo] = order.ID
	return nil
}

func (r *memoryOrders) GetByOutTradeNo(ctx context.Context, outTradeNo string) (*model.Order, error) {
	return r.byNo("GetByOutTradeNo", outTradeNo)
}

func (r *memoryOrders) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	return r.byID("GetByID", id)
}

func (r *memoryOrders) LockByOutTradeNo(ctx context.Context, outTradeNo string) (*model.Order, error) {
	return r.byNo("LockByOutTradeNo", outTradeNo)
}

func (r *memoryOrders) LockByID(ctx context.Context, id int64) (*model.Order, error) {
	return r.byID("LockByID", id)
}

func (r *memoryOrders) byNo(method, outTradeNo string) (*model.Order, error) {
	r.m.mu.Lock()
	id, ok := r.m.byNo[outTradeNo]
	r.m.mu.Unlock()
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	return r.byID(method, id)
}

func (r *memoryOrders) byID(method string, id int64) (*model.Order, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(method); err != nil {
		return nil, err
	}
	order, ok := m.orders[id]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	return copyOrder(order), nil
}

func (r *memoryOrders) UpdateState(ctx context.Context, order *model.Order) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("UpdateState"); err != nil {
		return err
	}
	stored, ok := m.orders[order.ID]
	if !ok {
		return domainErrors.ErrNotFound
	}
	stored.Status = order.Status
	stored.TransactionID = order.TransactionID
	stored.PayTime = copyTime(order.PayTime)
	stored.RefundTime = copyTime(order.RefundTime)
	stored.OutRefundNo = order.OutRefundNo
	stored.RefundReason = order.RefundReason
	stored.Remark = order.Remark
	stored.InventoryShortfall = order.InventoryShortfall
	stored.FulfillmentNextAt = copyTime(order.FulfillmentNextAt)
	stored.UpdatedAt = m.Now()
	return nil
}

func (r *memoryOrders) MarkLineDeducted(ctx context.Context, lineID int64, deducted bool) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("MarkLineDeducted"); err != nil {
		return err
	}
	for _, order := range m.orders {
		for i := range order.Lines {
			if order.Lines[i].ID == lineID {
				order.Lines[i].StockDeducted = deducted
				return nil
			}
		}
	}
	return nil
}

func (r *memoryOrders) RecordTransition(ctx context.Context, t model.Transition) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("RecordTransition"); err != nil {
		return err
	}
	m.transitions = append(m.transitions, t)
	return nil
}

func (r *memoryOrders) List(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("List"); err != nil {
		return nil, err
	}

	var matched []model.Order
	for _, order := range m.orders {
		if filter.OpenID != "" && order.OpenID != filter.OpenID {
			continue
		}
		if filter.Phone != "" && order.ContactPhone != filter.Phone {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		matched = append(matched, *copyOrder(order))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	offset := filter.Offset()
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if filter.Size > 0 && len(matched) > filter.Size {
		matched = matched[:filter.Size]
	}
	return matched, nil
}

func (r *memoryOrders) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ListPendingBefore"); err != nil {
		return nil, err
	}

	var result []model.Order
	for _, order := range m.orders {
		if order.Status == model.OrderStatusPendingPayment && order.CreatedAt.Before(cutoff) {
			result = append(result, *copyOrder(order))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memoryOrders) SelectForFulfillment(ctx context.Context, now, leaseUntil time.Time, limit int) ([]model.Order, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("SelectForFulfillment"); err != nil {
		return nil, err
	}

	var due []*model.Order
	for _, order := range m.orders {
		if order.Status != model.OrderStatusPaid || order.FulfillmentNextAt == nil {
			continue
		}
		if order.FulfillmentNextAt.After(now) {
			continue
		}
		due = append(due, order)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].FulfillmentNextAt.Before(*due[j].FulfillmentNextAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	result := make([]model.Order, 0, len(due))
	for _, order := range due {
		lease := leaseUntil
		order.FulfillmentNextAt = &lease
		result = append(result, *copyOrder(order))
	}
	return result, nil
}

func (r *memoryOrders) RecordFulfillmentAttempt(ctx context.Context, orderID int64, attempts int, nextAt *time.Time, lastError string) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("RecordFulfillmentAttempt"); err != nil {
		return err
	}
	order, ok := m.orders[orderID]
	if !ok {
		return domainErrors.ErrNotFound
	}
	order.FulfillmentAttempts = attempts
	order.FulfillmentNextAt = copyTime(nextAt)
	order.FulfillmentError = lastError
	return nil
}

type memoryLedger struct {
	m *MemoryStore
}

func (l *memoryLedger) GetBook(ctx context.Context, id int64) (*model.Book, error) {
	m := l.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("GetBook"); err != nil {
		return nil, err
	}
	book, ok := m.books[id]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	return &book, nil
}

func (l *memoryLedger) CheckAvailable(ctx context.Context, bookID int64, qty int) (bool, error) {
	m := l.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CheckAvailable"); err != nil {
		return false, err
	}
	book, ok := m.books[bookID]
	return ok && book.Stock >= qty, nil
}

func (l *memoryLedger) TryDecrement(ctx context.Context, bookID int64, qty int) (bool, error) {
	m := l.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("TryDecrement"); err != nil {
		return false, err
	}
	book, ok := m.books[bookID]
	if !ok || book.Stock < qty {
		return false, nil
	}
	book.Stock -= qty
	m.books[bookID] = book
	return true, nil
}

func (l *memoryLedger) Increment(ctx context.Context, bookID int64, qty int) error {
	m := l.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("Increment"); err != nil {
		return err
	}
	book, ok := m.books[bookID]
	if !ok {
		return domainErrors.ErrNotFound
	}
	book.Stock += qty
	m.books[bookID] = book
	return nil
}

func copyOrder(o *model.Order) *model.Order {
	c := *o
	c.Lines = append([]model.OrderLine(nil), o.Lines...)
	c.PayTime = copyTime(o.PayTime)
	c.RefundTime = copyTime(o.RefundTime)
	c.FulfillmentNextAt = copyTime(o.FulfillmentNextAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
