package tellergo

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/arhyth/tellergo Store

const SnapshotVersion = 1

// Store persists full directory snapshots. Save always overwrites whatever
// was stored before. Load returns ErrNoSnapshot when nothing was saved yet.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

type Snapshot struct {
	Version  int             `json:"version"`
	SavedAt  time.Time       `json:"saved_at"`
	Accounts []AccountRecord `json:"accounts"`
}

// AccountRecord is the storage shape of an Account, field for field.
type AccountRecord struct {
	Number         string          `json:"number"`
	Holder         string          `json:"holder"`
	Type           AccountType     `json:"type"`
	Balance        decimal.Decimal `json:"balance"`
	PINHash        string          `json:"pin_hash"`
	InterestRate   decimal.Decimal `json:"interest_rate"`
	Locked         bool            `json:"locked"`
	FailedAttempts int             `json:"failed_attempts"`
	Transactions   []Transaction   `json:"transactions"`
}

// caller holds a.mu
func (a *Account) record() AccountRecord {
	return AccountRecord{
		Number:         a.number,
		Holder:         a.holder,
		Type:           a.typ,
		Balance:        a.balance,
		PINHash:        string(a.pinHash),
		InterestRate:   a.rate,
		Locked:         a.locked,
		FailedAttempts: a.failedAttempts,
		Transactions:   slices.Clone(a.txns),
	}
}

func accountFromRecord(ldg *ledger, rec AccountRecord) (*Account, error) {
	if !ValidAccountNumber(rec.Number) {
		return nil, fmt.Errorf("invalid account number %q in snapshot", rec.Number)
	}
	if _, err := ParseAccountType(string(rec.Type)); err != nil {
		return nil, fmt.Errorf("account %s: %w", rec.Number, err)
	}
	if rec.Balance.IsNegative() {
		return nil, fmt.Errorf("account %s: negative balance in snapshot", rec.Number)
	}
	if rec.PINHash == "" {
		return nil, fmt.Errorf("account %s: missing pin hash", rec.Number)
	}
	return &Account{
		ldg:            ldg,
		holder:         rec.Holder,
		number:         rec.Number,
		typ:            rec.Type,
		balance:        rec.Balance,
		pinHash:        []byte(rec.PINHash),
		rate:           rec.InterestRate,
		locked:         rec.Locked,
		failedAttempts: rec.FailedAttempts,
		txns:           slices.Clone(rec.Transactions),
	}, nil
}
