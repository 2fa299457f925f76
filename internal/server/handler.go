package server

import (
	"errors"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Lucius-40/lanshop/internal/errs"
	"github.com/Lucius-40/lanshop/internal/model"
	"github.com/Lucius-40/lanshop/internal/protocol"
	"github.com/Lucius-40/lanshop/internal/service"
)

// Handler serves one accepted connection: it parses inbound envelopes,
// dispatches them, and writes responses and broadcasts back. Per-request
// errors are converted to typed replies at this boundary and never
// propagate further.
type Handler struct {
	id   string
	conn net.Conn
	srv  *Server
	r    *protocol.Reader
	w    *protocol.Writer
	log  *zap.Logger

	running   atomic.Bool
	closeOnce sync.Once

	mu        sync.Mutex
	sessionID string
	user      *model.User
}

func newHandler(id string, conn net.Conn, srv *Server) *Handler {
	h := &Handler{
		id:   id,
		conn: conn,
		srv:  srv,
		r:    protocol.NewReader(conn),
		w:    protocol.NewWriter(conn),
		log:  srv.log.With(zap.String("client", id)),
	}
	h.running.Store(true)
	return h
}

// Running reports whether the read loop is still serving.
func (h *Handler) Running() bool { return h.running.Load() }

// run is the read loop. It exits on peer close, transport error or server
// shutdown, then deregisters the handler.
func (h *Handler) run() {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("panic in handler",
				zap.Any("reason", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
		h.close()
		h.srv.removeHandler(h)
	}()

	for h.Running() {
		env, err := h.r.Read()
		if err != nil {
			if h.Running() && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				h.log.Warn("read failed, dropping connection", zap.Error(err))
			}
			return
		}
		h.dispatch(env)
	}
}

func (h *Handler) dispatch(env protocol.Envelope) {
	start := time.Now()
	switch env.Type {
	case protocol.TypeGetInventory:
		h.sendInventory()
	case protocol.TypeLogin:
		h.handleLogin(env)
	case protocol.TypeRegister:
		h.handleRegister(env)
	case protocol.TypeLogout:
		h.handleLogout()
	case protocol.TypeGetUserData:
		h.handleUserData(env)
	case protocol.TypePurchase:
		h.handlePurchase(env)
	case protocol.TypeCompleteOrder:
		h.handleCompleteOrder(env)
	case protocol.TypePing:
		h.send(protocol.TypePong, "Server alive")
	default:
		h.log.Warn("unknown request type", zap.String("type", env.Type))
		return
	}
	h.log.Info("request",
		zap.String("type", env.Type),
		zap.Duration("dur", time.Since(start)),
	)
}

func (h *Handler) handleLogin(env protocol.Envelope) {
	creds, err := protocol.Decode[protocol.Credentials](env)
	if err != nil {
		h.log.Warn("bad login payload", zap.Error(err))
		return
	}

	ip, _, splitErr := net.SplitHostPort(h.conn.RemoteAddr().String())
	if splitErr != nil {
		ip = h.conn.RemoteAddr().String()
	}

	sess, user, err := h.srv.auth.LoginWithIP(h.srv.ctx, creds.Username, creds.Password, ip)
	if err != nil {
		msg := "Invalid username or password"
		if errors.Is(err, errs.ErrRateLimited) {
			msg = "Too many failed attempts, try again later"
		}
		h.send(protocol.TypeLoginFailed, protocol.LoginResult{Success: false, Error: msg})
		return
	}

	h.mu.Lock()
	h.sessionID = sess.ID
	h.user = user
	h.mu.Unlock()

	h.send(protocol.TypeLoginSuccess, protocol.LoginResult{
		Success:   true,
		SessionID: sess.ID,
		Username:  user.Username,
		FullName:  user.FullName,
	})
}

func (h *Handler) handleRegister(env protocol.Envelope) {
	reg, err := protocol.Decode[protocol.Registration](env)
	if err != nil {
		h.log.Warn("bad register payload", zap.Error(err))
		return
	}

	err = h.srv.auth.Register(h.srv.ctx, service.NewAccount{
		Username: reg.Username,
		Password: reg.Password,
		Email:    reg.Email,
		FullName: reg.FullName,
		Address:  reg.Address,
		Phone:    reg.Phone,
	})
	if err != nil {
		msg := "Registration failed"
		switch {
		case errors.Is(err, errs.ErrAlreadyExists):
			msg = "Username already exists"
		case errors.Is(err, errs.ErrEmailTaken):
			msg = "Email already registered"
		}
		h.send(protocol.TypeRegisterFailed, protocol.RegisterResult{Success: false, Error: msg})
		return
	}
	h.send(protocol.TypeRegisterSuccess, protocol.RegisterResult{Success: true, Message: "Registration successful"})
}

// handleLogout only replies when a session was actually bound.
func (h *Handler) handleLogout() {
	h.mu.Lock()
	token := h.sessionID
	h.sessionID = ""
	h.user = nil
	h.mu.Unlock()

	if token == "" {
		return
	}
	h.srv.auth.Logout(token)
	h.send(protocol.TypeLogoutSuccess, "Logged out successfully")
}

func (h *Handler) handleUserData(env protocol.Envelope) {
	ref, err := protocol.Decode[protocol.SessionRef](env)
	if err != nil || ref.SessionID == "" {
		h.send(protocol.TypeUserDataError, "Invalid session ID")
		return
	}

	user, err := h.srv.auth.UserData(ref.SessionID)
	switch {
	case errors.Is(err, errs.ErrSessionExpired):
		h.send(protocol.TypeUserDataError, "Session expired or invalid")
	case errors.Is(err, errs.ErrNotFound):
		h.send(protocol.TypeUserDataError, "User not found")
	case err != nil:
		h.send(protocol.TypeUserDataError, "Failed to load user data")
	default:
		h.send(protocol.TypeUserDataResponse, protocol.UserData{
			Username: user.Username,
			Email:    user.Email,
			FullName: user.FullName,
			Address:  user.Address,
			Phone:    user.Phone,
		})
	}
}

// sendInventory streams the snapshot in three phases: count, fixed-size
// chunks with a small pause between them, completion marker. The pause keeps
// a large catalog from saturating the outbound buffer and lets the client
// render progressively.
func (h *Handler) sendInventory() {
	inventory := h.srv.Inventory()
	chunkSize := h.srv.cfg.ChunkSize

	if err := h.w.Send(protocol.TypeInventoryCount, len(inventory)); err != nil {
		h.log.Warn("send inventory count", zap.Error(err))
		return
	}
	for start := 0; start < len(inventory); start += chunkSize {
		end := start + chunkSize
		if end > len(inventory) {
			end = len(inventory)
		}
		if err := h.w.Send(protocol.TypeInventoryChunk, inventory[start:end]); err != nil {
			h.log.Warn("send inventory chunk", zap.Error(err))
			return
		}
		time.Sleep(h.srv.cfg.ChunkPause.Std())
	}
	if err := h.w.Send(protocol.TypeInventoryComplete, nil); err != nil {
		h.log.Warn("send inventory complete", zap.Error(err))
		return
	}
	h.log.Info("inventory sent in chunks", zap.Int("products", len(inventory)))
}

func (h *Handler) handlePurchase(env protocol.Envelope) {
	if !h.authenticated() {
		h.send(protocol.TypeAuthRequired, protocol.ErrorInfo{Error: "Authentication required for purchase"})
		return
	}

	items, err := protocol.Decode[protocol.PurchaseItems](env)
	if err != nil {
		h.log.Warn("bad purchase payload", zap.Error(err))
		return
	}

	h.runPurchase(items, h.customerInfo())
}

func (h *Handler) handleCompleteOrder(env protocol.Envelope) {
	if !h.authenticated() {
		h.send(protocol.TypeAuthRequired, protocol.ErrorInfo{Error: "Authentication required for purchase"})
		return
	}

	order, err := protocol.Decode[protocol.CompleteOrder](env)
	if err != nil {
		h.log.Warn("bad order payload", zap.Error(err))
		return
	}

	customer := order.CustomerInfo
	h.mu.Lock()
	if h.user != nil {
		customer.Username = h.user.Username
	}
	h.mu.Unlock()

	h.runPurchase(order.Items, customer)
}

func (h *Handler) runPurchase(items protocol.PurchaseItems, customer model.CustomerInfo) {
	updated, failures := h.srv.ExecutePurchase(items, customer)
	if len(failures) > 0 {
		h.send(protocol.TypePurchaseFailed, protocol.PurchaseResult{Success: false, Errors: failures})
		return
	}
	h.send(protocol.TypePurchaseConfirmed, protocol.PurchaseResult{
		Success:         true,
		Message:         "Purchase processed successfully",
		UpdatedProducts: updated,
		TotalItems:      len(updated),
	})
}

// authenticated reports whether a live session is bound to this connection.
func (h *Handler) authenticated() bool {
	h.mu.Lock()
	token := h.sessionID
	h.mu.Unlock()
	return token != "" && h.srv.sessions.IsValid(token)
}

// customerInfo synthesizes a customer record from the bound profile, or a
// guest record when none is bound.
func (h *Handler) customerInfo() model.CustomerInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.user == nil {
		return model.CustomerInfo{
			Name:     "Guest Customer",
			Address:  "Not provided",
			Contact:  "Not provided",
			PostCode: "Not provided",
		}
	}
	info := model.CustomerInfo{
		Name:     h.user.FullName,
		Username: h.user.Username,
		Address:  h.user.Address,
		Contact:  h.user.Phone,
		PostCode: "Not provided",
	}
	if info.Address == "" {
		info.Address = "Not provided"
	}
	if info.Contact == "" {
		info.Contact = "Not provided"
	}
	return info
}

// send converts a payload into an envelope and writes it, logging failures.
func (h *Handler) send(msgType string, payload any) {
	if err := h.w.Send(msgType, payload); err != nil {
		h.log.Warn("send failed", zap.String("type", msgType), zap.Error(err))
	}
}

// write delivers a pre-built envelope (used by broadcasts).
func (h *Handler) write(env protocol.Envelope) error {
	return h.w.Write(env)
}

// close stops the read loop and closes the connection. Safe to call more
// than once.
func (h *Handler) close() {
	h.closeOnce.Do(func() {
		h.running.Store(false)
		_ = h.conn.Close()
	})
}
