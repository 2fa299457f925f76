package flatfile

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Lucius-40/lanshop/internal/model"
)

const orderDelimiter = "----------------------------------------"

// Orders is the append-only order log. Purchase transactions already run
// under the server-wide lock; the internal mutex additionally keeps blocks
// whole should the log ever be written outside that lock.
type Orders struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

// NewOrders constructs an order log over the given file.
func NewOrders(path string, log *zap.Logger) *Orders {
	return &Orders{path: path, log: log}
}

// Append writes one human-readable order block.
func (s *Orders) Append(at time.Time, customer model.CustomerInfo, items []model.OrderItem) error {
	var sb strings.Builder
	sb.WriteString("Order Time: " + at.Format("2006-01-02 15:04:05") + "\n")
	sb.WriteString("Customer  : " + customer.Name + "\n")
	sb.WriteString("Address   : " + customer.Address + "\n")
	sb.WriteString("Contact   : " + customer.Contact + "\n")
	sb.WriteString("Post Code : " + customer.PostCode + "\n")
	if customer.Username != "" {
		sb.WriteString("Username  : " + customer.Username + "\n")
	}
	sb.WriteString("Items     :\n")

	var total float64
	for _, item := range items {
		fmt.Fprintf(&sb, "- Product: %s, Quantity: %d, Unit Price: $%.2f, Subtotal: $%.2f\n",
			item.Product.Name, item.Quantity, item.Product.Price, item.Subtotal())
		total += item.Subtotal()
	}
	fmt.Fprintf(&sb, "Total: $%.2f\n", total)
	sb.WriteString(orderDelimiter + "\n\n")

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open order log: %w", err)
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		f.Close()
		return fmt.Errorf("append order: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close order log: %w", err)
	}

	s.log.Info("order logged",
		zap.String("customer", customer.Name),
		zap.Int("lines", len(items)),
		zap.Float64("total", total),
	)
	return nil
}
