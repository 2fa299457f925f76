// Package flatfile implements the repository interfaces over pipe-delimited
// text files, rewriting each file whole on every mutation.
package flatfile

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Lucius-40/lanshop/internal/errs"
	"github.com/Lucius-40/lanshop/internal/model"
)

const placeholderDescription = "No description available"

// productFields is the column count of a product line:
// id|name|category|price|imagePath|stock|available
const productFields = 7

// Inventory is the file-backed product store. A single RWMutex guards all
// list access; handlers call in concurrently from independent connections.
type Inventory struct {
	mu       sync.RWMutex
	path     string
	descPath string
	products []model.Product
	log      *zap.Logger
}

// NewInventory constructs an Inventory over the product and description files.
func NewInventory(path, descPath string, log *zap.Logger) *Inventory {
	return &Inventory{path: path, descPath: descPath, log: log}
}

// Load clears the list and re-parses the product file, joining descriptions
// by id. Malformed lines are skipped.
func (s *Inventory) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open products file: %w", err)
	}
	defer f.Close()

	descriptions := s.loadDescriptions()

	var products []model.Product
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		p, ok := parseProductLine(line)
		if !ok {
			s.log.Warn("skipping malformed product line", zap.String("line", line))
			continue
		}
		if d, found := descriptions[p.ID]; found {
			p.Description = d
		} else {
			p.Description = placeholderDescription
		}
		products = append(products, p)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read products file: %w", err)
	}

	s.products = products
	s.log.Info("inventory loaded", zap.Int("products", len(products)))
	return nil
}

// loadDescriptions reads the id|description companion file. A missing file is
// not an error; every product then gets the placeholder.
func (s *Inventory) loadDescriptions() map[string]string {
	descriptions := make(map[string]string)
	f, err := os.Open(s.descPath)
	if err != nil {
		return descriptions
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		parts := strings.SplitN(sc.Text(), "|", 2)
		if len(parts) == 2 {
			descriptions[parts[0]] = parts[1]
		}
	}
	return descriptions
}

func parseProductLine(line string) (model.Product, bool) {
	tokens := strings.Split(line, "|")
	if len(tokens) < productFields {
		return model.Product{}, false
	}
	price, err := strconv.ParseFloat(tokens[3], 64)
	if err != nil || price < 0 {
		return model.Product{}, false
	}
	stock, err := strconv.Atoi(tokens[5])
	if err != nil || stock < 0 {
		return model.Product{}, false
	}
	available, err := strconv.ParseBool(tokens[6])
	if err != nil {
		return model.Product{}, false
	}
	return model.Product{
		ID:        tokens[0],
		Name:      tokens[1],
		Category:  tokens[2],
		Price:     price,
		ImagePath: tokens[4],
		Stock:     stock,
		Available: available,
	}, true
}

// Save rewrites the product file from the in-memory list.
func (s *Inventory) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Inventory) saveLocked() error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create products file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, p := range s.products {
		fmt.Fprintf(w, "%s|%s|%s|%s|%s|%d|%t\n",
			p.ID, p.Name, p.Category,
			strconv.FormatFloat(p.Price, 'f', -1, 64),
			p.ImagePath, p.Stock, p.Available)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write products file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close products file: %w", err)
	}
	return nil
}

// All returns a copy of every product.
func (s *Inventory) All() []model.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Product, len(s.products))
	copy(out, s.products)
	return out
}

// GetByID returns the first product matching id case-insensitively.
func (s *Inventory) GetByID(id string) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.products {
		if strings.EqualFold(s.products[i].ID, id) {
			p := s.products[i]
			return &p, nil
		}
	}
	return nil, errs.ErrNotFound
}

// GetByName returns the first product matching name case-insensitively.
func (s *Inventory) GetByName(name string) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.products {
		if strings.EqualFold(s.products[i].Name, name) {
			p := s.products[i]
			return &p, nil
		}
	}
	return nil, errs.ErrNotFound
}

// GetByCategory returns every product in the category, case-insensitively.
func (s *Inventory) GetByCategory(category string) []model.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Product
	for i := range s.products {
		if strings.EqualFold(s.products[i].Category, category) {
			out = append(out, s.products[i])
		}
	}
	return out
}

// UpdateStock sets the absolute quantity for a product, recomputing
// availability, and rewrites the file.
func (s *Inventory) UpdateStock(id string, newQty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if strings.EqualFold(s.products[i].ID, id) {
			old := s.products[i].Stock
			s.products[i].SetStock(newQty)
			if err := s.saveLocked(); err != nil {
				return err
			}
			s.log.Info("stock updated",
				zap.String("product", s.products[i].ID),
				zap.Int("from", old),
				zap.Int("to", newQty),
			)
			return nil
		}
	}
	return errs.ErrNotFound
}

// Add appends a new product and rewrites the file.
func (s *Inventory) Add(p model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if strings.EqualFold(s.products[i].ID, p.ID) {
			return errs.ErrAlreadyExists
		}
	}
	if p.Description == "" {
		p.Description = placeholderDescription
	}
	p.SetStock(p.Stock)
	s.products = append(s.products, p)
	return s.saveLocked()
}

// Count returns the number of products loaded.
func (s *Inventory) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products)
}
