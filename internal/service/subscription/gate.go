package subscription

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/client"
	"go.uber.org/zap"

	"github.com/havenkids/haven/backend/internal/store"
)

// Gate decides whether a child's family may use the conversation
// features.
type Gate interface {
	Allow(ctx context.Context, childID string) (bool, error)
}

// AllowAll is the gate used when billing is not configured.
type AllowAll struct{}

func (AllowAll) Allow(context.Context, string) (bool, error) { return true, nil }

// StripeGate checks for an active subscription on the family's billing
// customer.
type StripeGate struct {
	api      *client.API
	children *store.ChildStore
	logger   *zap.Logger
}

func NewStripeGate(secretKey string, children *store.ChildStore, logger *zap.Logger) *StripeGate {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGate{api: api, children: children, logger: logger}
}

// Allow resolves the child's family and billing customer, then asks
// the billing provider for an active subscription. A child with no
// family or customer on file is denied rather than erroring, so the
// caller can surface an upgrade prompt.
func (g *StripeGate) Allow(ctx context.Context, childID string) (bool, error) {
	familyID, found, err := g.children.ChildFamilyID(ctx, childID)
	if err != nil {
		return false, fmt.Errorf("resolve family for child: %w", err)
	}
	if !found {
		g.logger.Warn("subscription check for unknown child", zap.String("childId", childID))
		return false, nil
	}

	customerID, err := g.children.FamilyCustomerID(ctx, familyID)
	if err != nil {
		return false, fmt.Errorf("resolve billing customer: %w", err)
	}
	if customerID == "" {
		return false, nil
	}

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Limit = stripe.Int64(1)
	params.Context = ctx

	iter := g.api.Subscriptions.List(params)
	if iter.Next() {
		return true, nil
	}
	if err := iter.Err(); err != nil {
		return false, fmt.Errorf("list subscriptions: %w", err)
	}
	return false, nil
}
