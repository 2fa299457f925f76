// Package protocol defines the tagged envelope exchanged between the shop
// server and its storefront clients, and the codec that frames it on the wire.
//
// The protocol is not request/response-correlated: there is no request ID.
// Each request type has exactly one matching response type, and unsolicited
// INVENTORY_UPDATE pushes may arrive at any time on the same connection.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Lucius-40/lanshop/internal/model"
)

// Client-to-server message types.
const (
	TypeGetInventory  = "GET_INVENTORY"
	TypeLogin         = "LOGIN"
	TypeRegister      = "REGISTER"
	TypeLogout        = "LOGOUT"
	TypeGetUserData   = "GET_USER_DATA"
	TypePurchase      = "PURCHASE"
	TypeCompleteOrder = "COMPLETE_ORDER"
	TypePing          = "PING"
)

// Server-to-client message types.
const (
	TypeInventoryCount    = "INVENTORY_COUNT"
	TypeInventoryChunk    = "INVENTORY_CHUNK"
	TypeInventoryComplete = "INVENTORY_COMPLETE"
	TypeInventoryUpdate   = "INVENTORY_UPDATE"
	TypeLoginSuccess      = "LOGIN_SUCCESS"
	TypeLoginFailed       = "LOGIN_FAILED"
	TypeRegisterSuccess   = "REGISTER_SUCCESS"
	TypeRegisterFailed    = "REGISTER_FAILED"
	TypeLogoutSuccess     = "LOGOUT_SUCCESS"
	TypeUserDataResponse  = "USER_DATA_RESPONSE"
	TypeUserDataError     = "USER_DATA_ERROR"
	TypePurchaseConfirmed = "PURCHASE_CONFIRMED"
	TypePurchaseFailed    = "PURCHASE_FAILED"
	TypeAuthRequired      = "AUTH_REQUIRED"
	TypePong              = "PONG"
)

// Envelope is the wire unit for every exchange. Data is left raw until the
// receiver knows, from Type, which payload shape to decode.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// New builds an envelope around the given payload, stamping the send time in
// milliseconds. A nil payload produces a data-less envelope.
func New(msgType string, payload any) (Envelope, error) {
	e := Envelope{Type: msgType, Timestamp: time.Now().UnixMilli()}
	if payload == nil {
		return e, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	e.Data = data
	return e, nil
}

// Decode unmarshals the envelope payload into T.
func Decode[T any](e Envelope) (T, error) {
	var v T
	if len(e.Data) == 0 {
		return v, fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return v, nil
}

// Credentials is the LOGIN payload.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is the REGISTER payload.
type Registration struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
}

// SessionRef is the GET_USER_DATA payload.
type SessionRef struct {
	SessionID string `json:"sessionId"`
}

// PurchaseItems maps product id to requested quantity (PURCHASE payload).
type PurchaseItems map[string]int

// CompleteOrder pairs purchase items with shipping details.
type CompleteOrder struct {
	CustomerInfo model.CustomerInfo `json:"customerInfo"`
	Items        PurchaseItems      `json:"items"`
}

// LoginResult is the LOGIN_SUCCESS / LOGIN_FAILED payload.
type LoginResult struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId,omitempty"`
	Username  string `json:"username,omitempty"`
	FullName  string `json:"fullName,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RegisterResult is the REGISTER_SUCCESS / REGISTER_FAILED payload.
type RegisterResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// UserData is the USER_DATA_RESPONSE payload.
type UserData struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
}

// PurchaseResult is the PURCHASE_CONFIRMED / PURCHASE_FAILED payload.
type PurchaseResult struct {
	Success         bool     `json:"success"`
	Message         string   `json:"message,omitempty"`
	UpdatedProducts []string `json:"updatedProducts,omitempty"`
	TotalItems      int      `json:"totalItems,omitempty"`
	Errors          []string `json:"errors,omitempty"`
}

// ErrorInfo carries a single error string (AUTH_REQUIRED payload).
type ErrorInfo struct {
	Error string `json:"error"`
}
