package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrNotFound            = errors.New("organization_not_found")
	ErrInvalidOrganization = errors.New("invalid_organization")

	// ErrNotReady is returned when the organization has not finished
	// onboarding and cannot move money yet.
	ErrNotReady = errors.New("organization_not_ready")
)

// ConnectStatus is the persisted snapshot of the processor-side flags.
type ConnectStatus struct {
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id snowflake.ID) (*Organization, error)
	GetByConnectAccount(ctx context.Context, accountID string) (*Organization, error)
	SetConnectAccount(ctx context.Context, id snowflake.ID, accountID string) error
	UpdateConnectStatus(ctx context.Context, id snowflake.ID, status ConnectStatus) error
}
