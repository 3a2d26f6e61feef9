// Package domain contains the read model for invoices. Invoices are owned
// by the billing side of the platform; this subsystem only reads them to
// validate caller-supplied payment amounts.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusDraft = "draft"
	StatusOpen  = "open"
	StatusPaid  = "paid"
	StatusVoid  = "void"
)

var ErrNotFound = errors.New("invoice_not_found")

// Invoice is the invoice of record. Amounts are integer cents.
type Invoice struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"not null;index" json:"org_id"`
	TotalAmount int64        `gorm:"column:total_amount;not null" json:"total_amount"`
	BalanceDue  *int64       `gorm:"column:balance_due" json:"balance_due"`
	Status      string       `gorm:"type:text;not null" json:"status"`
	Currency    string       `gorm:"type:text;not null;default:'usd'" json:"currency"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// AmountDue prefers the remaining balance over the invoice total.
func (i Invoice) AmountDue() int64 {
	if i.BalanceDue != nil {
		return *i.BalanceDue
	}
	return i.TotalAmount
}

type Repository interface {
	Get(ctx context.Context, id snowflake.ID) (*Invoice, error)
}
