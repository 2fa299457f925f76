// Package server implements the shop protocol server: connection acceptance,
// the handler roster, the authoritative inventory snapshot and broadcast
// fan-out.
package server

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/Lucius-40/lanshop/internal/config"
	"github.com/Lucius-40/lanshop/internal/model"
	"github.com/Lucius-40/lanshop/internal/protocol"
	"github.com/Lucius-40/lanshop/internal/repository"
	"github.com/Lucius-40/lanshop/internal/service"
	"github.com/Lucius-40/lanshop/internal/session"
)

// Server owns the canonical in-memory inventory snapshot and the roster of
// live client handlers. Handlers never mutate the snapshot directly; every
// stock-mutating path goes through the server-wide transaction lock, so no
// two mutations ever interleave.
type Server struct {
	cfg      *config.Config
	log      *zap.Logger
	inv      repository.InventoryRepository
	orders   repository.OrderLog
	auth     service.AuthService
	sessions *session.Registry

	// txMu totally orders purchases, admin stock edits and file reloads.
	txMu sync.Mutex

	snapMu   sync.RWMutex
	snapshot []model.Product

	handMu   sync.Mutex
	handlers map[string]*Handler

	ctx      context.Context
	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup
}

// New constructs a Server with injected stores and services.
func New(cfg *config.Config, inv repository.InventoryRepository, orders repository.OrderLog,
	auth service.AuthService, sessions *session.Registry, log *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		log:      log,
		inv:      inv,
		orders:   orders,
		auth:     auth,
		sessions: sessions,
		handlers: make(map[string]*Handler),
		ctx:      context.Background(),
	}
}

// Start binds the listener and spawns the accept loop. The inventory store
// must already be loaded.
func (s *Server) Start(ctx context.Context) error {
	s.ctx = ctx
	s.replaceSnapshot(s.inv.All())

	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = lis
	s.running.Store(true)

	s.log.Info("shop server listening",
		zap.String("addr", lis.Addr().String()),
		zap.Int("products", len(s.Inventory())),
	)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.log.Error("accept", zap.Error(err))
				continue
			}
			return
		}

		id, err := uuid.NewV4()
		if err != nil {
			s.log.Error("handler id", zap.Error(err))
			conn.Close()
			continue
		}

		h := newHandler(id.String(), conn, s)
		s.addHandler(h)
		s.log.Info("client connected",
			zap.String("client", h.id),
			zap.String("remote", conn.RemoteAddr().String()),
			zap.Int("clients", s.ClientCount()),
		)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			h.run()
		}()
	}
}

// Stop closes the listener and every handler, then waits for the pool to
// drain within the shutdown grace period.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.handMu.Lock()
	for _, h := range s.handlers {
		h.close()
	}
	s.handlers = make(map[string]*Handler)
	s.handMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGrace.Std()):
		s.log.Warn("shutdown grace elapsed with handlers still draining")
	}
	s.log.Info("shop server stopped")
}

// Addr returns the bound listener address, for tests and logs.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) addHandler(h *Handler) {
	s.handMu.Lock()
	s.handlers[h.id] = h
	s.handMu.Unlock()
}

func (s *Server) removeHandler(h *Handler) {
	s.handMu.Lock()
	delete(s.handlers, h.id)
	remaining := len(s.handlers)
	s.handMu.Unlock()
	s.log.Info("client disconnected", zap.String("client", h.id), zap.Int("clients", remaining))
}

// Inventory returns a copy of the authoritative snapshot.
func (s *Server) Inventory() []model.Product {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	out := make([]model.Product, len(s.snapshot))
	copy(out, s.snapshot)
	return out
}

func (s *Server) replaceSnapshot(products []model.Product) {
	s.snapMu.Lock()
	s.snapshot = products
	s.snapMu.Unlock()
}

// UpdateProductStock atomically subtracts qty from a product's stock and
// persists. It fails when the product is unknown or the decrement would go
// negative.
func (s *Server) UpdateProductStock(productID string, qty int) bool {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.decrementLocked(productID, qty)
}

// decrementLocked applies one decrement against the snapshot and persists it
// through the store. Caller holds txMu.
func (s *Server) decrementLocked(productID string, qty int) bool {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	for i := range s.snapshot {
		p := &s.snapshot[i]
		if !strings.EqualFold(p.ID, productID) {
			continue
		}
		old := p.Stock
		if !p.DecrementStock(qty) {
			s.log.Warn("stock collision detected",
				zap.String("product", productID),
				zap.Int("requested", qty),
				zap.Int("available", old),
			)
			return false
		}
		if err := s.inv.UpdateStock(p.ID, p.Stock); err != nil {
			// In-memory state stays the best-available truth; divergence on
			// crash is an accepted limitation.
			s.log.Error("persist stock update failed, continuing with in-memory state",
				zap.String("product", productID), zap.Error(err))
		}
		return true
	}
	s.log.Warn("product not found for stock update", zap.String("product", productID))
	return false
}

// RefreshInventoryFromFile reloads the store from disk and replaces the
// snapshot. Ordered against purchases by the transaction lock.
func (s *Server) RefreshInventoryFromFile() error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.refreshFromStoreLocked(true)
}

// refreshFromStoreLocked optionally reloads the backing file, then replaces
// the snapshot from the store. Caller holds txMu.
func (s *Server) refreshFromStoreLocked(reload bool) error {
	if reload {
		if err := s.inv.Load(); err != nil {
			s.log.Error("inventory reload failed, keeping current snapshot", zap.Error(err))
			return err
		}
	}
	products := s.inv.All()
	s.replaceSnapshot(products)
	s.log.Info("inventory snapshot refreshed", zap.Int("products", len(products)))
	return nil
}

// BroadcastInventoryUpdate pushes the current snapshot to every live handler
// and prunes any that is no longer running.
func (s *Server) BroadcastInventoryUpdate() {
	env, err := protocol.New(protocol.TypeInventoryUpdate, s.Inventory())
	if err != nil {
		s.log.Error("encode inventory update", zap.Error(err))
		return
	}

	s.handMu.Lock()
	targets := make([]*Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		targets = append(targets, h)
	}
	s.handMu.Unlock()

	sent := 0
	var stale []*Handler
	for _, h := range targets {
		if !h.Running() {
			stale = append(stale, h)
			continue
		}
		if err := h.write(env); err != nil {
			s.log.Warn("broadcast failed", zap.String("client", h.id), zap.Error(err))
			stale = append(stale, h)
			continue
		}
		sent++
	}

	if len(stale) > 0 {
		s.handMu.Lock()
		for _, h := range stale {
			delete(s.handlers, h.id)
		}
		s.handMu.Unlock()
	}
	s.log.Info("inventory update broadcast", zap.Int("clients", sent), zap.Int("pruned", len(stale)))
}

// ExecutePurchase runs the whole purchase transaction under the server-wide
// lock: validate every line item, commit all decrements as one group, persist,
// refresh, broadcast, log the order. Either every item is applied or none.
func (s *Server) ExecutePurchase(items map[string]int, customer model.CustomerInfo) (updated []string, failures []string) {
	if len(items) == 0 {
		return nil, []string{"No items in purchase request"}
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	// Deterministic order keeps error lists and logs stable.
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Product ids match case-insensitively, so case-aliased keys ("P1" and
	// "p1") must collapse to one logical line before validation or each alias
	// would be checked against the full stock on its own.
	merged := make(map[string]int, len(items))
	display := make(map[string]string, len(items))
	keys := make([]string, 0, len(items))
	for _, id := range ids {
		qty := items[id]
		if qty <= 0 {
			failures = append(failures, fmt.Sprintf("Invalid quantity for %s: %d", id, qty))
			continue
		}
		key := strings.ToLower(id)
		if _, seen := merged[key]; !seen {
			display[key] = id
			keys = append(keys, key)
		}
		merged[key] += qty
	}

	// Validate phase: no mutation.
	snapshot := s.Inventory()
	byID := make(map[string]*model.Product, len(snapshot))
	for i := range snapshot {
		byID[strings.ToLower(snapshot[i].ID)] = &snapshot[i]
	}

	var orderItems []model.OrderItem
	for _, key := range keys {
		qty := merged[key]
		p, ok := byID[key]
		switch {
		case !ok:
			failures = append(failures, fmt.Sprintf("Product not found: %s", display[key]))
		case qty > p.Stock:
			failures = append(failures, fmt.Sprintf("Insufficient stock for %s. Available: %d, Requested: %d",
				p.Name, p.Stock, qty))
		default:
			orderItems = append(orderItems, model.OrderItem{Product: *p, Quantity: qty})
		}
	}
	if len(failures) > 0 {
		return nil, failures
	}

	// Apply phase: all decrements commit as one group. The validate phase ran
	// under the same lock hold, so a failing decrement here means a bug, not a
	// lost race; abort without partial effects either way.
	for _, item := range orderItems {
		if item.Quantity > s.stockOf(item.Product.ID) {
			return nil, []string{fmt.Sprintf("Failed to update stock for product: %s", item.Product.ID)}
		}
	}
	for _, item := range orderItems {
		if !s.decrementLocked(item.Product.ID, item.Quantity) {
			return nil, []string{fmt.Sprintf("Failed to update stock for product: %s", item.Product.ID)}
		}
		updated = append(updated, item.Product.ID)
		s.log.Info("purchase applied",
			zap.String("product", item.Product.ID),
			zap.Int("quantity", item.Quantity),
		)
	}

	// Store and snapshot agree again after this.
	_ = s.refreshFromStoreLocked(false)
	s.BroadcastInventoryUpdate()

	if err := s.orders.Append(time.Now(), customer, orderItems); err != nil {
		s.log.Error("order log append failed", zap.Error(err))
	}
	return updated, nil
}

func (s *Server) stockOf(productID string) int {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	for i := range s.snapshot {
		if strings.EqualFold(s.snapshot[i].ID, productID) {
			return s.snapshot[i].Stock
		}
	}
	return -1
}

// ClientCount returns the number of registered handlers.
func (s *Server) ClientCount() int {
	s.handMu.Lock()
	defer s.handMu.Unlock()
	return len(s.handlers)
}

// Stats is a read-only snapshot of server state for introspection.
type Stats struct {
	Running          bool `json:"running"`
	ConnectedClients int  `json:"connectedClients"`
	InventorySize    int  `json:"inventorySize"`
	ActiveSessions   int  `json:"activeSessions"`
	LowStockProducts int  `json:"lowStockProducts"`
}

// Stats returns current server statistics.
func (s *Server) Stats() Stats {
	low := 0
	for _, p := range s.Inventory() {
		if p.NeedsRestocking(s.cfg.RestockThreshold) {
			low++
		}
	}
	return Stats{
		Running:          s.running.Load(),
		ConnectedClients: s.ClientCount(),
		InventorySize:    len(s.Inventory()),
		ActiveSessions:   s.sessions.Count(),
		LowStockProducts: low,
	}
}
