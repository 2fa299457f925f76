// Package model defines domain entities used by services, repositories and the wire protocol.
package model

import (
	"strings"
	"time"
)

// Product is a single catalog entry. Stock and availability are only mutated
// through SetStock so the two never drift apart.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	ImagePath   string  `json:"imagePath"`
	Stock       int     `json:"stockQuantity"`
	Available   bool    `json:"isAvailable"`
}

// SetStock is the canonical stock mutator: it sets the quantity and
// recomputes availability.
func (p *Product) SetStock(qty int) {
	p.Stock = qty
	p.Available = qty > 0
}

// DecrementStock subtracts qty if it would not drive stock negative and
// reports whether it did.
func (p *Product) DecrementStock(qty int) bool {
	if qty <= 0 || qty > p.Stock {
		return false
	}
	p.SetStock(p.Stock - qty)
	return true
}

// NeedsRestocking reports whether stock is at or below the given threshold.
func (p *Product) NeedsRestocking(threshold int) bool {
	return p.Stock <= threshold
}

// User is an account record. Immutable after registration except Active.
// PasswordHash is a hex-encoded digest, never the raw password.
type User struct {
	Username     string
	PasswordHash string
	Email        string
	FullName     string
	Address      string
	Phone        string
	RegisteredAt time.Time
	Active       bool
}

// Key returns the case-insensitive identity of the user.
func (u *User) Key() string { return strings.ToLower(u.Username) }

// Session is a short-lived auth token bound to a username. LastActivity
// slides forward on every successful lookup.
type Session struct {
	ID           string
	Username     string
	LastActivity time.Time
}

// Expired reports whether the session has been idle longer than ttl.
func (s *Session) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(s.LastActivity) > ttl
}

// CustomerInfo is the shipping block attached to an order. For a bare
// purchase it is synthesized from the session's user profile.
type CustomerInfo struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Address  string `json:"address"`
	Contact  string `json:"contact"`
	PostCode string `json:"postCode"`
}

// OrderItem is one priced line of a confirmed order.
type OrderItem struct {
	Product  Product
	Quantity int
}

// Subtotal returns unit price times quantity.
func (i OrderItem) Subtotal() float64 { return i.Product.Price * float64(i.Quantity) }
