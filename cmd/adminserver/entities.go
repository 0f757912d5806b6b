package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	adminrest "github.com/nlstn/go-adminrest"
	"github.com/shopspring/decimal"
)

// Customer is a demo entity with a numeric key.
type Customer struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" admin:"required,maxlength=100"`
	Email     string    `json:"email" admin:"required,maxlength=200"`
	City      string    `json:"city" admin:"maxlength=60"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate rejects e-mail addresses without an @.
func (c Customer) Validate(ctx context.Context) error {
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return &adminrest.ConstraintViolationError{Errors: []adminrest.FieldError{{
			Field:          "email",
			RejectedValue:  c.Email,
			Code:           adminrest.CodeInvalid,
			DefaultMessage: "{2} is not an e-mail address",
		}}}
	}
	return nil
}

// AdminBeforeDelete keeps customers with orders.
func (c *Customer) AdminBeforeDelete(ctx context.Context, r *http.Request) error {
	tx, ok := adminrest.TransactionFromContext(ctx)
	if !ok {
		return nil
	}
	var orders int64
	if err := tx.Model(&Order{}).Where("customer_id = ?", c.ID).Count(&orders).Error; err != nil {
		return err
	}
	if orders > 0 {
		return &adminrest.HookError{StatusCode: http.StatusConflict, Message: "Customer has orders"}
	}
	return nil
}

// Order is a demo entity keyed by a UUID assigned on first save.
type Order struct {
	ID         uuid.UUID       `json:"id" gorm:"type:text;primaryKey" admin:"key"`
	CustomerID uint            `json:"customerId"`
	Status     string          `json:"status" admin:"required,maxlength=20"`
	Total      decimal.Decimal `json:"total" gorm:"type:numeric"`
	PlacedAt   time.Time       `json:"placedAt"`
}

// AdminBeforeSave assigns the key and the order date of new orders.
func (o *Order) AdminBeforeSave(ctx context.Context, r *http.Request) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.PlacedAt.IsZero() {
		o.PlacedAt = time.Now().UTC()
	}
	return nil
}

var largeOrderThreshold = decimal.NewFromInt(500)

// largeOrders selects orders at or above largeOrderThreshold. Decimal comparison
// runs in memory so it behaves the same on every database.
func largeOrders(entity interface{}) bool {
	order, ok := entity.(*Order)
	return ok && order.Total.GreaterThanOrEqual(largeOrderThreshold)
}

// demoScopes are registered in addition to the configured ones.
func demoScopes() map[string][]adminrest.Scope {
	return map[string][]adminrest.Scope{
		"customer": {
			adminrest.NewSpecificationScope("active", adminrest.QueryScope{Condition: "active = ?", Args: []interface{}{true}}),
		},
		"order": {
			adminrest.NewSpecificationScope("open", adminrest.QueryScope{Condition: "status IN (?, ?)", Args: []interface{}{"new", "processing"}}),
			adminrest.NewPredicateScope("large", largeOrders),
		},
	}
}
