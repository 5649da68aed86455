package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/pending"
)

// InventoryStore is an in-memory inventory.Repository. Every method holds
// one mutex, so each conditional decrement is atomic like the SQL version.
type InventoryStore struct {
	mu         sync.Mutex
	products   map[int64]int
	sizes      map[int64]*inventory.SizeStock
	nextSizeID int64
	ledger     []inventory.LedgerEntry
}

func NewInventoryStore() *InventoryStore {
	return &InventoryStore{
		products: make(map[int64]int),
		sizes:    make(map[int64]*inventory.SizeStock),
	}
}

func (s *InventoryStore) AddProduct(productID int64, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[productID] = stock
}

func (s *InventoryStore) AddSizeStock(productID int64, size string, stock int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productID]; !ok {
		s.products[productID] = 0
	}
	s.nextSizeID++
	s.sizes[s.nextSizeID] = &inventory.SizeStock{ID: s.nextSizeID, ProductID: productID, Size: size, Stock: stock}
	return s.nextSizeID
}

func (s *InventoryStore) ProductStock(productID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID]
}

func (s *InventoryStore) SizeStockLevel(productID int64, size string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ss := range s.sizes {
		if ss.ProductID == productID && ss.Size == size {
			return ss.Stock
		}
	}
	return -1
}

func (s *InventoryStore) LedgerEntries() []inventory.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.LedgerEntry, len(s.ledger))
	copy(out, s.ledger)
	return out
}

func (s *InventoryStore) FindSizeStock(_ context.Context, productID int64, size string) (*inventory.SizeStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ss := range s.sizes {
		if ss.ProductID == productID && ss.Size == size {
			found := *ss
			return &found, nil
		}
	}
	return nil, inventory.ErrSizeStockNotFound
}

func (s *InventoryStore) DecrementSizeStock(_ context.Context, id int64, quantity int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.sizes[id]
	if !ok {
		return 0, inventory.ErrSizeStockNotFound
	}
	if ss.Stock < quantity {
		return ss.Stock, inventory.ErrInsufficientStock
	}
	ss.Stock -= quantity
	return ss.Stock, nil
}

func (s *InventoryStore) IncrementSizeStock(_ context.Context, id int64, quantity int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.sizes[id]
	if !ok {
		return 0, inventory.ErrSizeStockNotFound
	}
	ss.Stock += quantity
	return ss.Stock, nil
}

func (s *InventoryStore) DecrementProductStock(_ context.Context, productID int64, quantity int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stock, ok := s.products[productID]
	if !ok {
		return 0, inventory.ErrProductNotFound
	}
	if stock < quantity {
		return stock, inventory.ErrInsufficientStock
	}
	s.products[productID] = stock - quantity
	return stock - quantity, nil
}

func (s *InventoryStore) IncrementProductStock(_ context.Context, productID int64, quantity int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stock, ok := s.products[productID]
	if !ok {
		return 0, inventory.ErrProductNotFound
	}
	s.products[productID] = stock + quantity
	return stock + quantity, nil
}

func (s *InventoryStore) AppendLedger(_ context.Context, entry *inventory.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.Must(uuid.NewV4())
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.ledger = append(s.ledger, *entry)
	return nil
}

func (s *InventoryStore) ListLedger(_ context.Context, productID int64) ([]inventory.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.LedgerEntry, 0)
	for i := len(s.ledger) - 1; i >= 0; i-- {
		if s.ledger[i].ProductID == productID {
			out = append(out, s.ledger[i])
		}
	}
	return out, nil
}

// OrderStore is an in-memory order.Repository that enforces the unique
// checkout session constraint.
type OrderStore struct {
	mu        sync.Mutex
	orders    map[int64]*order.Order
	bySession map[string]int64
	nextID    int64
	nextItem  int64
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:    make(map[int64]*order.Order),
		bySession: make(map[string]int64),
	}
}

func (s *OrderStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *OrderStore) CreateOrder(_ context.Context, o *order.Order) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.CheckoutSessionID != "" {
		if _, exists := s.bySession[o.CheckoutSessionID]; exists {
			return 0, order.ErrDuplicateCheckoutSession
		}
	}

	s.nextID++
	now := time.Now().UTC()
	o.ID = s.nextID
	o.CreatedAt = now
	o.UpdatedAt = now
	for i := range o.OrderItems {
		s.nextItem++
		o.OrderItems[i].ID = s.nextItem
		o.OrderItems[i].OrderID = o.ID
		o.OrderItems[i].CreatedAt = now
	}

	s.orders[o.ID] = cloneOrder(o)
	if o.CheckoutSessionID != "" {
		s.bySession[o.CheckoutSessionID] = o.ID
	}
	return o.ID, nil
}

func (s *OrderStore) GetOrderByID(_ context.Context, id int64) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *OrderStore) GetOrderByCheckoutSession(_ context.Context, sessionID string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySession[sessionID]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return cloneOrder(s.orders[id]), nil
}

func (s *OrderStore) GetOrdersByUserID(_ context.Context, userID int64) ([]order.Order, error) {
	return s.filter(func(o *order.Order) bool { return o.UserID != nil && *o.UserID == userID }), nil
}

func (s *OrderStore) GetOrdersByEmail(_ context.Context, email string) ([]order.Order, error) {
	return s.filter(func(o *order.Order) bool { return strings.EqualFold(o.Email, email) }), nil
}

func (s *OrderStore) UpdateOrderStatus(_ context.Context, id int64, update order.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	o.Status = update.Status
	if o.TrackingNumber == nil && update.TrackingNumber != nil {
		tn := *update.TrackingNumber
		o.TrackingNumber = &tn
	}
	if o.ShippedDate == nil && update.ShippedDate != nil {
		d := *update.ShippedDate
		o.ShippedDate = &d
	}
	if o.DeliveredDate == nil && update.DeliveredDate != nil {
		d := *update.DeliveredDate
		o.DeliveredDate = &d
	}
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *OrderStore) filter(match func(o *order.Order) bool) []order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]order.Order, 0)
	for _, o := range s.orders {
		if match(o) {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	c.OrderItems = append([]order.OrderItem(nil), o.OrderItems...)
	return &c
}

// PendingStore is an in-memory pending.Repository.
type PendingStore struct {
	mu      sync.Mutex
	entries map[string]pending.PendingOrder
}

func NewPendingStore() *PendingStore {
	return &PendingStore{entries: make(map[string]pending.PendingOrder)}
}

func (s *PendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *PendingStore) Insert(_ context.Context, p *pending.PendingOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[p.CheckoutSessionID]; ok && !existing.ExpiresAt.Before(p.CreatedAt) {
		return pending.ErrDuplicateSession
	}
	s.entries[p.CheckoutSessionID] = *p
	return nil
}

func (s *PendingStore) Get(_ context.Context, sessionID string) (*pending.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[sessionID]
	if !ok {
		return nil, pending.ErrNotFound
	}
	return &p, nil
}

func (s *PendingStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}

func (s *PendingStore) DeleteIfExpired(_ context.Context, sessionID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[sessionID]
	if !ok || !p.ExpiresAt.Before(now) {
		return false, nil
	}
	delete(s.entries, sessionID)
	return true, nil
}

func (s *PendingStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, p := range s.entries {
		if p.ExpiresAt.Before(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

// NoopTx runs fn directly. In-memory stores have nothing to roll back.
type NoopTx struct{}

func (NoopTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
