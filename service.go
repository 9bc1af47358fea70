package tellergo

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks github.com/arhyth/tellergo Service

type LoginReq struct {
	Number string `json:"number"`
	PIN    int    `json:"pin"`
}

type ChargeReq struct {
	Amount decimal.Decimal `json:"amount"`
	Number string          `json:"-"`
}

type TransferReq struct {
	From   string          `json:"-"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type InterestReq struct {
	Number string
	Days   int
}

type ChangePINReq struct {
	Number string `json:"-"`
	Old    int    `json:"old"`
	New    int    `json:"new"`
}

type AdminReq struct {
	Number   string
	AdminPIN int
}

type RateReq struct {
	Number   string          `json:"-"`
	Rate     decimal.Decimal `json:"rate"`
	AdminPIN int             `json:"-"`
}

type StatementReq struct {
	Number string
}

// Service is the session-level API shared by the teller shell and the HTTP
// handler. Every call that changes state is followed by a snapshot save.
type Service interface {
	CreateAccount(CreateAccountReq) (*AccountInfo, error)
	Login(LoginReq) (*AccountInfo, error)
	Account(number string) (*AccountInfo, error)
	Deposit(ChargeReq) (*decimal.Decimal, error)
	Withdraw(ChargeReq) (*decimal.Decimal, error)
	Transfer(TransferReq) (*decimal.Decimal, error)
	History(number string) ([]Transaction, error)
	Interest(InterestReq) (*decimal.Decimal, error)
	ChangePIN(ChangePINReq) error
	Unlock(AdminReq) error
	SetInterestRate(RateReq) error
	Statement(io.Writer, StatementReq) error
}

type serviceImpl struct {
	dir     *Directory
	persist *Persister
	log     *zerolog.Logger
}

var (
	_ Service = (*serviceImpl)(nil)
)

func NewService(dir *Directory, persist *Persister, log *zerolog.Logger) *serviceImpl {
	return &serviceImpl{
		dir:     dir,
		persist: persist,
		log:     log,
	}
}

// save failures are logged by the persister and do not fail the call.
func (s *serviceImpl) save() {
	if s.persist == nil {
		return
	}
	_ = s.persist.Save(context.Background(), s.dir)
}

func (s *serviceImpl) CreateAccount(req CreateAccountReq) (*AccountInfo, error) {
	acct, err := s.dir.CreateAccount(req)
	if err != nil {
		return nil, err
	}
	s.save()
	info := acct.Info()
	return &info, nil
}

func (s *serviceImpl) Login(req LoginReq) (*AccountInfo, error) {
	acct, err := s.dir.Find(req.Number)
	if err != nil {
		return nil, err
	}
	err = acct.VerifyPIN(req.PIN)
	if err != ErrAccountLocked {
		// attempt counters changed either way
		s.save()
	}
	if err != nil {
		s.log.Warn().Err(err).Str("account", req.Number).Msg("login rejected")
		return nil, err
	}
	info := acct.Info()
	return &info, nil
}

func (s *serviceImpl) Account(number string) (*AccountInfo, error) {
	acct, err := s.dir.Find(number)
	if err != nil {
		return nil, err
	}
	info := acct.Info()
	return &info, nil
}

func (s *serviceImpl) Deposit(req ChargeReq) (*decimal.Decimal, error) {
	acct, err := s.dir.Find(req.Number)
	if err != nil {
		return nil, err
	}
	if err = acct.Deposit(req.Amount); err != nil {
		return nil, err
	}
	s.save()
	bal := acct.Balance()
	return &bal, nil
}

func (s *serviceImpl) Withdraw(req ChargeReq) (*decimal.Decimal, error) {
	acct, err := s.dir.Find(req.Number)
	if err != nil {
		return nil, err
	}
	if err = acct.Withdraw(req.Amount); err != nil {
		return nil, err
	}
	s.save()
	bal := acct.Balance()
	return &bal, nil
}

func (s *serviceImpl) Transfer(req TransferReq) (*decimal.Decimal, error) {
	if err := s.dir.Transfer(req.From, req.To, req.Amount); err != nil {
		return nil, err
	}
	s.save()
	acct, err := s.dir.Find(req.From)
	if err != nil {
		return nil, err
	}
	bal := acct.Balance()
	return &bal, nil
}

func (s *serviceImpl) History(number string) ([]Transaction, error) {
	acct, err := s.dir.Find(number)
	if err != nil {
		return nil, err
	}
	return acct.Transactions(), nil
}

func (s *serviceImpl) Interest(req InterestReq) (*decimal.Decimal, error) {
	acct, err := s.dir.Find(req.Number)
	if err != nil {
		return nil, err
	}
	interest, err := acct.CalculateInterest(req.Days)
	if err != nil {
		return nil, err
	}
	return &interest, nil
}

func (s *serviceImpl) ChangePIN(req ChangePINReq) error {
	acct, err := s.dir.Find(req.Number)
	if err != nil {
		return err
	}
	if err = acct.ChangePIN(req.Old, req.New); err != nil {
		return err
	}
	s.save()
	return nil
}

func (s *serviceImpl) Unlock(req AdminReq) error {
	if err := s.dir.Unlock(req.Number, req.AdminPIN); err != nil {
		return err
	}
	s.save()
	return nil
}

func (s *serviceImpl) SetInterestRate(req RateReq) error {
	if err := s.dir.SetInterestRate(req.Number, req.Rate, req.AdminPIN); err != nil {
		return err
	}
	s.save()
	return nil
}

func (s *serviceImpl) Statement(w io.Writer, req StatementReq) error {
	acct, err := s.dir.Find(req.Number)
	if err != nil {
		return err
	}
	return WriteStatement(w, acct.Info(), acct.Transactions(), s.dir.ldg.clock.Now())
}
