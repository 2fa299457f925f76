package server

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Lucius-40/lanshop/internal/config"
	pkgcrypto "github.com/Lucius-40/lanshop/internal/crypto"
	"github.com/Lucius-40/lanshop/internal/errs"
	"github.com/Lucius-40/lanshop/internal/limiter"
	"github.com/Lucius-40/lanshop/internal/model"
	"github.com/Lucius-40/lanshop/internal/repository"
	"github.com/Lucius-40/lanshop/internal/service"
	"github.com/Lucius-40/lanshop/internal/session"
)

// memInventory is an in-memory InventoryRepository for server tests.
type memInventory struct {
	mu       sync.RWMutex
	products []model.Product
	saves    int
}

var _ repository.InventoryRepository = (*memInventory)(nil)

func (m *memInventory) Load() error { return nil }
func (m *memInventory) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	return nil
}
func (m *memInventory) All() []model.Product {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Product, len(m.products))
	copy(out, m.products)
	return out
}
func (m *memInventory) GetByID(id string) (*model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.products {
		if strings.EqualFold(m.products[i].ID, id) {
			p := m.products[i]
			return &p, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (m *memInventory) GetByName(name string) (*model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.products {
		if strings.EqualFold(m.products[i].Name, name) {
			p := m.products[i]
			return &p, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (m *memInventory) GetByCategory(category string) []model.Product {
	var out []model.Product
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.products {
		if strings.EqualFold(m.products[i].Category, category) {
			out = append(out, m.products[i])
		}
	}
	return out
}
func (m *memInventory) UpdateStock(id string, newQty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.products {
		if strings.EqualFold(m.products[i].ID, id) {
			m.products[i].SetStock(newQty)
			m.saves++
			return nil
		}
	}
	return errs.ErrNotFound
}
func (m *memInventory) Add(p model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = append(m.products, p)
	return nil
}
func (m *memInventory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.products)
}

// memOrders records appended order blocks.
type memOrders struct {
	mu     sync.Mutex
	blocks []model.CustomerInfo
	items  [][]model.OrderItem
}

var _ repository.OrderLog = (*memOrders)(nil)

func (m *memOrders) Append(_ time.Time, customer model.CustomerInfo, items []model.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append(m.blocks, customer)
	m.items = append(m.items, items)
	return nil
}

// memUsers is an in-memory UserRepository so server tests can use the real
// auth service.
type memUsers struct {
	mu     sync.RWMutex
	byName map[string]*model.User
}

var _ repository.UserRepository = (*memUsers)(nil)

func newMemUsers() *memUsers { return &memUsers{byName: map[string]*model.User{}} }

func (m *memUsers) Load() error { return nil }
func (m *memUsers) Create(u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[u.Key()]; ok {
		return errs.ErrAlreadyExists
	}
	for _, existing := range m.byName {
		if strings.EqualFold(existing.Email, u.Email) {
			return errs.ErrEmailTaken
		}
	}
	c := *u
	m.byName[u.Key()] = &c
	return nil
}
func (m *memUsers) Get(username string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byName[strings.ToLower(username)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}
func (m *memUsers) Exists(username string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byName[strings.ToLower(username)]
	return ok
}
func (m *memUsers) EmailExists(email string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.byName {
		if strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}
func (m *memUsers) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byName)
}

type testEnv struct {
	srv    *Server
	inv    *memInventory
	orders *memOrders
	users  *memUsers
}

func newTestServer(t *testing.T, products []model.Product) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.ChunkPause = config.Duration(time.Millisecond)
	cfg.ShutdownGrace = config.Duration(2 * time.Second)

	log := zap.NewNop()
	inv := &memInventory{products: products}
	orders := &memOrders{}
	users := newMemUsers()
	users.byName["alice"] = &model.User{
		Username:     "alice",
		PasswordHash: pkgcrypto.HashPassword("secret"),
		Email:        "a@x.com",
		FullName:     "Alice Smith",
		Address:      "1 Main St",
		Phone:        "555-0100",
		RegisteredAt: time.Now(),
		Active:       true,
	}

	sessions := session.NewRegistry(30*time.Minute, log)
	auth := service.NewAuthService(users, sessions, limiter.NewMemory(time.Minute, 100, time.Minute), log)

	srv := New(cfg, inv, orders, auth, sessions, log)
	srv.replaceSnapshot(inv.All())
	return &testEnv{srv: srv, inv: inv, orders: orders, users: users}
}

func product(id string, stock int) model.Product {
	return model.Product{
		ID: id, Name: "Product " + id, Category: "Groceries",
		Price: 2.5, Stock: stock, Available: stock > 0,
	}
}

func TestExecutePurchase_HappyPath(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, []model.Product{product("P1", 10), product("P2", 4)})
	customer := model.CustomerInfo{Name: "Alice Smith", Username: "alice"}

	updated, failures := env.srv.ExecutePurchase(map[string]int{"P1": 3, "P2": 4}, customer)
	if len(failures) != 0 {
		t.Fatalf("failures=%v", failures)
	}
	if len(updated) != 2 {
		t.Fatalf("updated=%v", updated)
	}

	p1, _ := env.inv.GetByID("P1")
	p2, _ := env.inv.GetByID("P2")
	if p1.Stock != 7 || p2.Stock != 0 {
		t.Fatalf("stocks=%d/%d, want 7/0", p1.Stock, p2.Stock)
	}
	if p2.Available {
		t.Fatalf("P2 should be unavailable at zero stock")
	}

	// order logged once with both lines
	if len(env.orders.blocks) != 1 || len(env.orders.items[0]) != 2 {
		t.Fatalf("orders=%d items=%v", len(env.orders.blocks), env.orders.items)
	}
}

func TestExecutePurchase_AtomicMultiItem(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, []model.Product{product("P1", 10), product("P2", 1)})

	// P2 fails validation, so P1 must stay untouched
	updated, failures := env.srv.ExecutePurchase(map[string]int{"P1": 2, "P2": 5}, model.CustomerInfo{})
	if len(updated) != 0 {
		t.Fatalf("updated=%v, want none", updated)
	}
	if len(failures) != 1 || !strings.Contains(failures[0], "Insufficient stock for Product P2") {
		t.Fatalf("failures=%v", failures)
	}

	p1, _ := env.inv.GetByID("P1")
	if p1.Stock != 10 {
		t.Fatalf("P1 stock=%d, want 10 (no partial purchase)", p1.Stock)
	}
	if len(env.orders.blocks) != 0 {
		t.Fatalf("failed purchase must not be logged")
	}
}

// Case-aliased keys for the same product are one logical line: their combined
// quantity is validated against stock, and a combined overdraw commits nothing.
func TestExecutePurchase_CaseAliasedIDsAreOneLine(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, []model.Product{product("P1", 5)})

	updated, failures := env.srv.ExecutePurchase(map[string]int{"P1": 3, "p1": 3}, model.CustomerInfo{})
	if len(updated) != 0 {
		t.Fatalf("updated=%v, want none", updated)
	}
	if len(failures) != 1 || !strings.Contains(failures[0], "Insufficient stock for Product P1. Available: 5, Requested: 6") {
		t.Fatalf("failures=%v", failures)
	}
	p, _ := env.inv.GetByID("P1")
	if p.Stock != 5 {
		t.Fatalf("stock=%d, want 5 (rejected purchase must not mutate)", p.Stock)
	}
	if len(env.orders.blocks) != 0 {
		t.Fatalf("failed purchase must not be logged")
	}

	// within stock, the aliases merge into a single decremented line
	updated, failures = env.srv.ExecutePurchase(map[string]int{"P1": 2, "p1": 2}, model.CustomerInfo{})
	if len(failures) != 0 {
		t.Fatalf("failures=%v", failures)
	}
	if len(updated) != 1 {
		t.Fatalf("updated=%v, want one merged line", updated)
	}
	p, _ = env.inv.GetByID("P1")
	if p.Stock != 1 {
		t.Fatalf("stock=%d, want 1", p.Stock)
	}
	if len(env.orders.items) != 1 || len(env.orders.items[0]) != 1 || env.orders.items[0][0].Quantity != 4 {
		t.Fatalf("order items=%+v, want one line of quantity 4", env.orders.items)
	}
}

func TestExecutePurchase_ValidationErrorsCollected(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, []model.Product{product("P1", 2)})

	_, failures := env.srv.ExecutePurchase(map[string]int{"P1": 5, "ghost": 1, "zero": 0}, model.CustomerInfo{})
	if len(failures) != 3 {
		t.Fatalf("failures=%v, want 3 entries", failures)
	}

	_, failures = env.srv.ExecutePurchase(nil, model.CustomerInfo{})
	if len(failures) != 1 {
		t.Fatalf("empty request should fail, got %v", failures)
	}
}

// Two concurrent buyers race for a single unit: exactly one wins and stock
// never goes negative.
func TestExecutePurchase_NoOversellUnderConcurrency(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, []model.Product{product("P1", 1)})

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, failures := env.srv.ExecutePurchase(map[string]int{"P1": 1}, model.CustomerInfo{})
			results[slot] = len(failures) == 0
		}(i)
	}
	wg.Wait()

	if results[0] == results[1] {
		t.Fatalf("want exactly one winner, got %v", results)
	}
	p, _ := env.inv.GetByID("P1")
	if p.Stock != 0 {
		t.Fatalf("final stock=%d, want 0", p.Stock)
	}
}

// Many buyers spread over several products: total sold never exceeds initial
// stock for any product.
func TestExecutePurchase_NoOversellManyBuyers(t *testing.T) {
	t.Parallel()

	const initial = 5
	env := newTestServer(t, []model.Product{product("P1", initial)})

	var wg sync.WaitGroup
	var sold atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, failures := env.srv.ExecutePurchase(map[string]int{"P1": 1}, model.CustomerInfo{}); len(failures) == 0 {
				sold.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := int(sold.Load()); got != initial {
		t.Fatalf("sold=%d, want exactly %d", got, initial)
	}
	p, _ := env.inv.GetByID("P1")
	if p.Stock != 0 {
		t.Fatalf("final stock=%d", p.Stock)
	}
}

func TestUpdateProductStock_DecrementAndGuard(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, []model.Product{product("P1", 3)})

	if !env.srv.UpdateProductStock("p1", 2) { // case-insensitive id
		t.Fatalf("decrement within stock should succeed")
	}
	if env.srv.UpdateProductStock("P1", 2) {
		t.Fatalf("decrement past stock should fail")
	}
	if env.srv.UpdateProductStock("ghost", 1) {
		t.Fatalf("unknown product should fail")
	}

	p, _ := env.inv.GetByID("P1")
	if p.Stock != 1 {
		t.Fatalf("stock=%d, want 1", p.Stock)
	}
}

func TestRefreshInventoryFromFile_ReplacesSnapshot(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, []model.Product{product("P1", 3)})

	// external edit lands in the store
	env.inv.mu.Lock()
	env.inv.products = append(env.inv.products, product("P2", 8))
	env.inv.mu.Unlock()

	if err := env.srv.RefreshInventoryFromFile(); err != nil {
		t.Fatalf("RefreshInventoryFromFile: %v", err)
	}
	if got := len(env.srv.Inventory()); got != 2 {
		t.Fatalf("snapshot size=%d, want 2", got)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	env := newTestServer(t, []model.Product{product("P1", 3), product("P2", 50)})

	st := env.srv.Stats()
	if st.InventorySize != 2 {
		t.Fatalf("inventorySize=%d", st.InventorySize)
	}
	if st.LowStockProducts != 1 { // P1 at 3 <= default threshold 5
		t.Fatalf("lowStockProducts=%d", st.LowStockProducts)
	}
	if st.ConnectedClients != 0 || st.Running {
		t.Fatalf("stats=%+v", st)
	}
}
