package services

import (
	"context"
	"errors"

	"transcriber/models"
)

// Per-tier job ceilings. Enterprise is unlimited.
const (
	FreeTierLimit = 3
	ProTierLimit  = 100
)

type accountReader interface {
	GetAccount(ctx context.Context, accountID string) (models.Account, error)
}

// QuotaPolicy decides whether an account may create another job. It only
// reads usage; the orchestrator owns the increment.
type QuotaPolicy struct {
	accounts accountReader
}

func NewQuotaPolicy(accounts accountReader) *QuotaPolicy {
	return &QuotaPolicy{accounts: accounts}
}

// CanCreate reports whether the account is under its tier ceiling. Unknown
// accounts are denied.
func (q *QuotaPolicy) CanCreate(ctx context.Context, accountID string) (bool, error) {
	acct, err := q.accounts.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	switch acct.Tier {
	case models.TierEnterprise:
		return true, nil
	case models.TierPro:
		return acct.JobsUsed < ProTierLimit, nil
	case models.TierFree:
		return acct.JobsUsed < FreeTierLimit, nil
	default:
		return false, nil
	}
}
