package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	domain "github.com/hanko-field/handling-fee/internal/domain"
	"github.com/hanko-field/handling-fee/internal/repositories"
)

// CartRepository keeps carts in process memory. Useful for local runs and tests.
type CartRepository struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
	now   func() time.Time
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs an empty repository. A nil clock defaults to time.Now.
func NewCartRepository(clock func() time.Time) *CartRepository {
	if clock == nil {
		clock = time.Now
	}
	return &CartRepository{
		carts: make(map[string]domain.Cart),
		now:   func() time.Time { return clock().UTC() },
	}
}

// PutCart seeds or replaces a cart as-is, bypassing preconditions.
func (r *CartRepository) PutCart(cart domain.Cart) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carts[strings.TrimSpace(cart.ID)] = cloneCart(cart)
}

// GetCart implements repositories.CartRepository.
func (r *CartRepository) GetCart(_ context.Context, cartID string) (domain.Cart, error) {
	id := strings.TrimSpace(cartID)
	r.mu.Lock()
	defer r.mu.Unlock()
	cart, ok := r.carts[id]
	if !ok {
		return domain.Cart{}, notFound("carts.get", "cart "+id+" not found")
	}
	return cloneCart(cart), nil
}

// SaveFees implements repositories.CartRepository. A nil expectedUpdate creates the cart
// and conflicts when it already exists.
func (r *CartRepository) SaveFees(_ context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error) {
	id := strings.TrimSpace(cart.ID)
	if id == "" {
		return domain.Cart{}, &Error{op: "carts.saveFees", msg: "cart id is required"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.carts[id]
	switch {
	case expectedUpdate == nil:
		if exists {
			return domain.Cart{}, conflict("carts.saveFees", "cart "+id+" already exists")
		}
	case !exists:
		return domain.Cart{}, notFound("carts.saveFees", "cart "+id+" not found")
	case !stored.UpdatedAt.Equal(expectedUpdate.UTC()):
		return domain.Cart{}, conflict("carts.saveFees", "cart "+id+" was modified concurrently")
	}

	now := r.now()
	if !exists {
		stored = domain.Cart{
			ID:        id,
			Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
			Metadata:  cloneAnyMap(cart.Metadata),
			CreatedAt: now,
		}
	}
	stored.Fees = cart.Fees.Clone()
	stored.UpdatedAt = now
	r.carts[id] = stored

	return cloneCart(stored), nil
}

func cloneCart(cart domain.Cart) domain.Cart {
	dup := cart
	dup.Fees = cart.Fees.Clone()
	dup.Metadata = cloneAnyMap(cart.Metadata)
	return dup
}

func cloneAnyMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
