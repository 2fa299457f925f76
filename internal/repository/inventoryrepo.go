// Package repository defines storage interfaces implemented by concrete backends.
package repository

import "github.com/Lucius-40/lanshop/internal/model"

// InventoryRepository provides file-backed access to product records.
type InventoryRepository interface {
	// Load replaces the in-memory list from the backing files.
	Load() error
	// Save rewrites the backing product file from the in-memory list.
	Save() error
	// All returns a copy of every product.
	All() []model.Product
	// GetByID returns the first product with a case-insensitive id match.
	GetByID(id string) (*model.Product, error)
	// GetByName returns the first product with a case-insensitive name match.
	GetByName(name string) (*model.Product, error)
	// GetByCategory returns all products in a category (case-insensitive).
	GetByCategory(category string) []model.Product
	// UpdateStock sets the absolute stock quantity, recomputing availability,
	// and persists immediately.
	UpdateStock(id string, newQty int) error
	// Add appends a new product and persists.
	Add(p model.Product) error
	// Count returns the number of products loaded.
	Count() int
}
