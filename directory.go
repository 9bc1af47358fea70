package tellergo

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const defaultNumberAttempts = 64

type CreateAccountReq struct {
	Holder         string          `json:"holder"`
	Type           string          `json:"type"`
	PIN            int             `json:"pin"`
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
}

type DirectoryOpts struct {
	AdminPIN     AdminPIN
	Clock        Clock
	Numbers      NumberGenerator
	Node         *snowflake.Node
	PINCost      int
	SavingsRate  decimal.Decimal
	CheckingRate decimal.Decimal
	// NumberAttempts bounds the retries spent looking for an unused number.
	NumberAttempts int
	Log            *zerolog.Logger
}

// Directory is the authoritative index of accounts keyed by account number.
// It never removes accounts.
type Directory struct {
	mu    sync.RWMutex
	accts map[string]*Account

	ldg      *ledger
	numbers  NumberGenerator
	rates    map[AccountType]decimal.Decimal
	attempts int
	log      *zerolog.Logger
}

func NewDirectory(opts DirectoryOpts) (*Directory, error) {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Numbers == nil {
		opts.Numbers = NewRandomNumbers()
	}
	if opts.Node == nil {
		node, err := snowflake.NewNode(1)
		if err != nil {
			return nil, err
		}
		opts.Node = node
	}
	if opts.PINCost == 0 {
		opts.PINCost = bcrypt.DefaultCost
	}
	if opts.SavingsRate.IsZero() {
		opts.SavingsRate = decimal.RequireFromString("2.5")
	}
	if opts.CheckingRate.IsZero() {
		opts.CheckingRate = decimal.RequireFromString("1.5")
	}
	if opts.NumberAttempts <= 0 {
		opts.NumberAttempts = defaultNumberAttempts
	}
	if opts.Log == nil {
		nop := zerolog.Nop()
		opts.Log = &nop
	}

	return &Directory{
		accts: make(map[string]*Account),
		ldg: &ledger{
			clock:   opts.Clock,
			ids:     opts.Node,
			admin:   opts.AdminPIN,
			pinCost: opts.PINCost,
		},
		numbers: opts.Numbers,
		rates: map[AccountType]decimal.Decimal{
			Savings:  opts.SavingsRate,
			Checking: opts.CheckingRate,
		},
		attempts: opts.NumberAttempts,
		log:      opts.Log,
	}, nil
}

func (d *Directory) CreateAccount(req CreateAccountReq) (*Account, error) {
	typ, err := ParseAccountType(req.Type)
	if err != nil {
		return nil, err
	}
	if req.PIN < MinPIN || req.PIN > MaxPIN {
		return nil, ErrBadRequest{Fields: map[string]string{"pin": "must be a 4-digit number"}}
	}
	if req.InitialDeposit.IsNegative() {
		return nil, ErrInvalidAmount
	}

	hash, err := hashPIN(req.PIN, d.ldg.pinCost)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	number, err := d.allocateNumber()
	if err != nil {
		return nil, err
	}
	acct := newAccount(d.ldg, strings.TrimSpace(req.Holder), number, typ, d.rates[typ], hash, req.InitialDeposit)
	d.accts[number] = acct
	d.log.Info().
		Str("account", number).
		Str("type", string(typ)).
		Msg("account opened")
	return acct, nil
}

// caller holds d.mu
func (d *Directory) allocateNumber() (string, error) {
	for i := 0; i < d.attempts; i++ {
		n := d.numbers.Next()
		if _, taken := d.accts[n]; !taken {
			return n, nil
		}
		d.log.Debug().Str("account", n).Msg("account number collision, regenerating")
	}
	return "", ErrNumberSpaceExhausted
}

func (d *Directory) Find(number string) (*Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acct, ok := d.accts[number]
	if !ok {
		return nil, ErrNotFound{Number: number}
	}
	return acct, nil
}

// Transfer moves amount between two accounts as one unit. Both accounts are
// locked in ascending number order for the whole check-and-move.
func (d *Directory) Transfer(fromNumber, toNumber string, amount decimal.Decimal) error {
	from, err := d.Find(fromNumber)
	if err != nil {
		return err
	}
	to, err := d.Find(toNumber)
	if err != nil {
		return err
	}
	if fromNumber == toNumber {
		return ErrSelfTransfer
	}

	first, second := from, to
	if second.number < first.number {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if from.locked {
		return ErrAccountLocked
	}
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(from.balance) {
		return ErrInsufficientFunds
	}

	from.balance = from.balance.Sub(amount)
	to.balance = to.balance.Add(amount)
	from.recordTransaction(TxTransferOut, amount, to.number, fmt.Sprintf("Transfer to %s: -%s", to.number, usd(amount)))
	to.recordTransaction(TxTransferIn, amount, from.number, fmt.Sprintf("Transfer from %s: +%s", from.number, usd(amount)))

	d.log.Info().
		Str("from", from.number).
		Str("to", to.number).
		Str("amount", amount.String()).
		Msg("transfer completed")
	return nil
}

func (d *Directory) Unlock(number string, adminPIN int) error {
	acct, err := d.Find(number)
	if err != nil {
		return err
	}
	if err = acct.Unlock(adminPIN); err != nil {
		d.log.Warn().Str("account", number).Msg("unlock rejected")
		return err
	}
	return nil
}

func (d *Directory) SetInterestRate(number string, rate decimal.Decimal, adminPIN int) error {
	acct, err := d.Find(number)
	if err != nil {
		return err
	}
	return acct.SetInterestRate(rate, adminPIN)
}

// Accounts returns every account ordered by number.
func (d *Directory) Accounts() []*Account {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sorted()
}

// caller holds d.mu
func (d *Directory) sorted() []*Account {
	out := make([]*Account, 0, len(d.accts))
	for _, a := range d.accts {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b *Account) int {
		return strings.Compare(a.number, b.number)
	})
	return out
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.accts)
}

// Snapshot captures every account at a single point in time: all account
// locks are held, in transfer order, while records are copied.
func (d *Directory) Snapshot() *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	accts := d.sorted()
	for _, a := range accts {
		a.mu.Lock()
	}
	defer func() {
		for _, a := range accts {
			a.mu.Unlock()
		}
	}()

	snap := &Snapshot{
		Version:  SnapshotVersion,
		SavedAt:  d.ldg.clock.Now().UTC(),
		Accounts: make([]AccountRecord, 0, len(accts)),
	}
	for _, a := range accts {
		snap.Accounts = append(snap.Accounts, a.record())
	}
	return snap
}

// Restore replaces the directory content with the snapshot's accounts.
func (d *Directory) Restore(snap *Snapshot) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	accts := make(map[string]*Account, len(snap.Accounts))
	for _, rec := range snap.Accounts {
		acct, err := accountFromRecord(d.ldg, rec)
		if err != nil {
			return err
		}
		if _, dup := accts[acct.number]; dup {
			return fmt.Errorf("duplicate account number %s in snapshot", acct.number)
		}
		accts[acct.number] = acct
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.accts = accts
	return nil
}
