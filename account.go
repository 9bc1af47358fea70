package tellergo

import (
	"crypto/subtle"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const (
	MaxPINAttempts = 3
	MinPIN         = 1000
	MaxPIN         = 9999

	HistoryTimeLayout = "2006-01-02 15:04:05"
)

var (
	hundred     = decimal.NewFromInt(100)
	daysPerYear = decimal.NewFromInt(365)
)

type AccountType string

const (
	Savings  AccountType = "Savings"
	Checking AccountType = "Checking"
)

func ParseAccountType(s string) (AccountType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "savings":
		return Savings, nil
	case "checking":
		return Checking, nil
	}
	return "", ErrBadRequest{Fields: map[string]string{"type": "must be Savings or Checking"}}
}

type TxKind string

const (
	TxOpen        TxKind = "open"
	TxDeposit     TxKind = "deposit"
	TxWithdrawal  TxKind = "withdrawal"
	TxTransferOut TxKind = "transfer_out"
	TxTransferIn  TxKind = "transfer_in"
	TxPINChange   TxKind = "pin_change"
	TxRateChange  TxKind = "rate_change"
)

// Transaction is one entry of an account's log. IDs increase in append order
// so entries recorded within the same second never collide.
type Transaction struct {
	ID           snowflake.ID    `json:"id"`
	Time         time.Time       `json:"time"`
	Kind         TxKind          `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	Counterparty string          `json:"counterparty,omitempty"`
	Description  string          `json:"description"`
}

func (t Transaction) String() string {
	return t.Time.Format(HistoryTimeLayout) + " - " + t.Description
}

// AdminPIN is the shared secret gating unlock and interest rate overrides.
type AdminPIN int

func (p AdminPIN) matches(pin int) bool {
	return subtle.ConstantTimeCompare([]byte(strconv.Itoa(int(p))), []byte(strconv.Itoa(pin))) == 1
}

// ledger holds the collaborators shared by every account of a directory.
type ledger struct {
	clock   Clock
	ids     *snowflake.Node
	admin   AdminPIN
	pinCost int
}

type AccountInfo struct {
	Number         string          `json:"number"`
	Holder         string          `json:"holder"`
	Type           AccountType     `json:"type"`
	Balance        decimal.Decimal `json:"balance"`
	InterestRate   decimal.Decimal `json:"interest_rate"`
	Locked         bool            `json:"locked"`
	FailedAttempts int             `json:"failed_attempts"`
}

// Account is safe for concurrent use. Accounts are created by a Directory.
type Account struct {
	mu  sync.Mutex
	ldg *ledger

	holder string
	number string
	typ    AccountType

	balance        decimal.Decimal
	pinHash        []byte
	rate           decimal.Decimal
	locked         bool
	failedAttempts int
	txns           []Transaction
}

// newAccount takes an already hashed PIN so callers can hash outside their locks.
func newAccount(ldg *ledger, holder, number string, typ AccountType, rate decimal.Decimal, pinHash []byte, initial decimal.Decimal) *Account {
	a := &Account{
		ldg:     ldg,
		holder:  holder,
		number:  number,
		typ:     typ,
		balance: initial,
		pinHash: pinHash,
		rate:    rate,
	}
	a.recordTransaction(TxOpen, initial, "", "Account opened with initial balance: "+usd(initial))
	return a
}

func hashPIN(pin, cost int) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(strconv.Itoa(pin)), cost)
	if err != nil {
		return nil, fmt.Errorf("hash pin: %w", err)
	}
	return hash, nil
}

func usd(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func (a *Account) Number() string {
	return a.number
}

func (a *Account) Holder() string {
	return a.holder
}

func (a *Account) Type() AccountType {
	return a.typ
}

func (a *Account) Balance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

func (a *Account) InterestRate() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rate
}

func (a *Account) Locked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.locked
}

func (a *Account) FailedAttempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failedAttempts
}

func (a *Account) Info() AccountInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.info()
}

func (a *Account) info() AccountInfo {
	return AccountInfo{
		Number:         a.number,
		Holder:         a.holder,
		Type:           a.typ,
		Balance:        a.balance,
		InterestRate:   a.rate,
		Locked:         a.locked,
		FailedAttempts: a.failedAttempts,
	}
}

func (a *Account) Deposit(amount decimal.Decimal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.locked {
		return ErrAccountLocked
	}
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	a.balance = a.balance.Add(amount)
	a.recordTransaction(TxDeposit, amount, "", "Deposit: +"+usd(amount))
	return nil
}

func (a *Account) Withdraw(amount decimal.Decimal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.locked {
		return ErrAccountLocked
	}
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(a.balance) {
		return ErrInsufficientFunds
	}
	a.balance = a.balance.Sub(amount)
	a.recordTransaction(TxWithdrawal, amount, "", "Withdrawal: -"+usd(amount))
	return nil
}

// VerifyPIN checks an entered PIN. A locked account rejects the attempt
// without counting it.
func (a *Account) VerifyPIN(pin int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.locked {
		return ErrAccountLocked
	}
	if a.pinMatches(pin) {
		a.failedAttempts = 0
		return nil
	}
	a.failedAttempts++
	if a.failedAttempts >= MaxPINAttempts {
		a.locked = true
		return ErrWrongPIN{Remaining: 0}
	}
	return ErrWrongPIN{Remaining: MaxPINAttempts - a.failedAttempts}
}

func (a *Account) pinMatches(pin int) bool {
	return bcrypt.CompareHashAndPassword(a.pinHash, []byte(strconv.Itoa(pin))) == nil
}

// ChangePIN replaces the PIN. The new value is not range checked.
func (a *Account) ChangePIN(oldPIN, newPIN int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.locked {
		return ErrAccountLocked
	}
	if !a.pinMatches(oldPIN) {
		return ErrAuthFailed
	}
	hash, err := hashPIN(newPIN, a.ldg.pinCost)
	if err != nil {
		return err
	}
	a.pinHash = hash
	a.recordTransaction(TxPINChange, decimal.Zero, "", "PIN changed")
	return nil
}

func (a *Account) Unlock(adminPIN int) error {
	if !a.ldg.admin.matches(adminPIN) {
		return ErrAuthFailed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.locked = false
	a.failedAttempts = 0
	return nil
}

// CalculateInterest estimates simple interest over the given number of days.
// It does not touch the balance or the log.
func (a *Account) CalculateInterest(days int) (decimal.Decimal, error) {
	if days <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance.
		Mul(a.rate).
		Mul(decimal.NewFromInt(int64(days))).
		Div(hundred.Mul(daysPerYear)), nil
}

func (a *Account) SetInterestRate(rate decimal.Decimal, adminPIN int) error {
	if !a.ldg.admin.matches(adminPIN) {
		return ErrAuthFailed
	}
	if rate.IsNegative() {
		return ErrInvalidAmount
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rate = rate
	a.recordTransaction(TxRateChange, rate, "", "Interest rate changed to "+rate.String()+"%")
	return nil
}

// History yields the log oldest first. Each iteration works on the log as it
// was when the iteration started.
func (a *Account) History() iter.Seq[Transaction] {
	return func(yield func(Transaction) bool) {
		for _, t := range a.Transactions() {
			if !yield(t) {
				return
			}
		}
	}
}

func (a *Account) Transactions() []Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.txns)
}

// caller holds a.mu
func (a *Account) recordTransaction(kind TxKind, amount decimal.Decimal, counterparty, desc string) {
	a.txns = append(a.txns, Transaction{
		ID:           a.ldg.ids.Generate(),
		Time:         a.ldg.clock.Now().Truncate(time.Second),
		Kind:         kind,
		Amount:       amount,
		Counterparty: counterparty,
		Description:  desc,
	})
}
