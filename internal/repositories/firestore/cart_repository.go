package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/handling-fee/internal/domain"
	pfirestore "github.com/hanko-field/handling-fee/internal/platform/firestore"
	"github.com/hanko-field/handling-fee/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists cart fee lines within Firestore. Only the fee-related fields
// of a cart document are written; other fields belong to the cart owner.
type CartRepository struct {
	carts *pfirestore.Collection[cartDocument]
	now   func() time.Time
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		carts: pfirestore.NewCollection[cartDocument](provider, cartCollection),
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// GetCart loads the cart document. Fee lines stored twice under one name collapse to one.
func (r *CartRepository) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	snap, err := r.carts.Get(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}

	lines := make([]domain.FeeLine, 0, len(snap.Data.Fees))
	for _, fee := range snap.Data.Fees {
		lines = append(lines, fee.toDomain())
	}

	createdAt := snap.Data.CreatedAt
	if createdAt.IsZero() {
		createdAt = snap.CreateTime
	}
	return domain.Cart{
		ID:        snap.ID,
		Currency:  strings.ToUpper(strings.TrimSpace(snap.Data.Currency)),
		Fees:      domain.NewFeeSet(lines...),
		Metadata:  cloneAnyMap(snap.Data.Metadata),
		CreatedAt: createdAt.UTC(),
		UpdatedAt: snap.UpdateTime.UTC(),
	}, nil
}

// SaveFees writes the fee lines. With an expected update time the write is conditioned on
// the document's last update time; without one the cart is created, and an existing
// document surfaces as AlreadyExists.
func (r *CartRepository) SaveFees(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error) {
	id := strings.TrimSpace(cart.ID)
	if id == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	now := r.now()
	fees := encodeFees(cart.Fees)
	saved := cart
	saved.ID = id
	saved.Fees = cart.Fees.Clone()
	saved.Metadata = cloneAnyMap(cart.Metadata)

	if expectedUpdate == nil || expectedUpdate.IsZero() {
		createdAt := cart.CreatedAt.UTC()
		if createdAt.IsZero() {
			createdAt = now
		}
		currency := strings.ToUpper(strings.TrimSpace(cart.Currency))
		updateTime, err := r.carts.Create(ctx, id, map[string]any{
			"currency":  currency,
			"fees":      fees,
			"createdAt": createdAt,
			"updatedAt": now,
		})
		if err != nil {
			return domain.Cart{}, err
		}
		saved.Currency = currency
		saved.CreatedAt = createdAt
		saved.UpdatedAt = updateTime.UTC()
		return saved, nil
	}

	updateTime, err := r.carts.Update(ctx, id, []firestore.Update{
		{Path: "fees", Value: fees},
		{Path: "updatedAt", Value: now},
	}, firestore.LastUpdateTime(expectedUpdate.UTC()))
	if err != nil {
		return domain.Cart{}, err
	}
	saved.UpdatedAt = updateTime.UTC()
	return saved, nil
}

type cartDocument struct {
	Currency  string            `firestore:"currency"`
	Fees      []feeLineDocument `firestore:"fees"`
	Metadata  map[string]any    `firestore:"metadata,omitempty"`
	CreatedAt time.Time         `firestore:"createdAt"`
	UpdatedAt time.Time         `firestore:"updatedAt"`
}

type feeLineDocument struct {
	ID       string    `firestore:"id"`
	Name     string    `firestore:"name"`
	Amount   int64     `firestore:"amount"`
	Currency string    `firestore:"currency"`
	AddedAt  time.Time `firestore:"addedAt"`
}

func (d feeLineDocument) toDomain() domain.FeeLine {
	return domain.FeeLine{
		ID:       d.ID,
		Name:     domain.FeeName(d.Name),
		Amount:   d.Amount,
		Currency: strings.ToUpper(d.Currency),
		AddedAt:  d.AddedAt.UTC(),
	}
}

func encodeFees(set domain.FeeSet) []feeLineDocument {
	lines := set.Lines()
	docs := make([]feeLineDocument, 0, len(lines))
	for _, line := range lines {
		docs = append(docs, feeLineDocument{
			ID:       line.ID,
			Name:     string(line.Name),
			Amount:   line.Amount,
			Currency: line.Currency,
			AddedAt:  line.AddedAt.UTC(),
		})
	}
	return docs
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
