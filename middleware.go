package tellergo

import (
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

type Middleware func(Service) Service

// Chain wraps svc so that the first middleware is the outermost.
func Chain(svc Service, mws ...Middleware) Service {
	for i := len(mws) - 1; i >= 0; i-- {
		svc = mws[i](svc)
	}
	return svc
}

var (
	_ Service = (*validationMiddleware)(nil)
)

// validationMiddleware rejects malformed requests before they reach the
// directory. Business rules (balances, lock state, PINs) stay with Account.
type validationMiddleware struct {
	next Service
}

func NewValidationMiddleware() Middleware {
	return func(svc Service) Service {
		return &validationMiddleware{
			next: svc,
		}
	}
}

func badNumber(field string) error {
	return ErrBadRequest{Fields: map[string]string{field: "invalid format"}}
}

func (v *validationMiddleware) CreateAccount(req CreateAccountReq) (*AccountInfo, error) {
	if req.Holder == "" {
		return nil, ErrBadRequest{Fields: map[string]string{"holder": "required"}}
	}
	return v.next.CreateAccount(req)
}

func (v *validationMiddleware) Login(req LoginReq) (*AccountInfo, error) {
	if !ValidAccountNumber(req.Number) {
		return nil, badNumber("number")
	}
	return v.next.Login(req)
}

func (v *validationMiddleware) Account(number string) (*AccountInfo, error) {
	if !ValidAccountNumber(number) {
		return nil, badNumber("number")
	}
	return v.next.Account(number)
}

func (v *validationMiddleware) Deposit(req ChargeReq) (*decimal.Decimal, error) {
	if !ValidAccountNumber(req.Number) {
		return nil, badNumber("number")
	}
	if req.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return v.next.Deposit(req)
}

func (v *validationMiddleware) Withdraw(req ChargeReq) (*decimal.Decimal, error) {
	if !ValidAccountNumber(req.Number) {
		return nil, badNumber("number")
	}
	if req.Amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return v.next.Withdraw(req)
}

func (v *validationMiddleware) Transfer(req TransferReq) (*decimal.Decimal, error) {
	if !ValidAccountNumber(req.From) {
		return nil, badNumber("from")
	}
	if !ValidAccountNumber(req.To) {
		return nil, badNumber("to")
	}
	return v.next.Transfer(req)
}

func (v *validationMiddleware) History(number string) ([]Transaction, error) {
	if !ValidAccountNumber(number) {
		return nil, badNumber("number")
	}
	return v.next.History(number)
}

func (v *validationMiddleware) Interest(req InterestReq) (*decimal.Decimal, error) {
	if !ValidAccountNumber(req.Number) {
		return nil, badNumber("number")
	}
	if req.Days <= 0 {
		return nil, ErrInvalidAmount
	}
	return v.next.Interest(req)
}

func (v *validationMiddleware) ChangePIN(req ChangePINReq) error {
	if !ValidAccountNumber(req.Number) {
		return badNumber("number")
	}
	return v.next.ChangePIN(req)
}

func (v *validationMiddleware) Unlock(req AdminReq) error {
	if !ValidAccountNumber(req.Number) {
		return badNumber("number")
	}
	return v.next.Unlock(req)
}

func (v *validationMiddleware) SetInterestRate(req RateReq) error {
	if !ValidAccountNumber(req.Number) {
		return badNumber("number")
	}
	return v.next.SetInterestRate(req)
}

func (v *validationMiddleware) Statement(w io.Writer, req StatementReq) error {
	if !ValidAccountNumber(req.Number) {
		return badNumber("number")
	}
	return v.next.Statement(w, req)
}

//
// Instrumentation
//

type ServiceMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewServiceMetrics registers the service collectors with reg.
func NewServiceMetrics(reg prometheus.Registerer) *ServiceMetrics {
	factory := promauto.With(reg)
	return &ServiceMetrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "teller_operations_total",
			Help: "Total number of service operations by method and outcome.",
		}, []string{"method", "outcome"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "teller_operation_duration_seconds",
			Help:    "Latency of service operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// instrumentingMiddleware counts every call by outcome. The outcome label is
// the domain error class so lockouts and overdrafts show up separately.
type instrumentingMiddleware struct {
	next    Service
	metrics *ServiceMetrics
}

var (
	_ Service = (*instrumentingMiddleware)(nil)
)

func NewInstrumentingMiddleware(metrics *ServiceMetrics) Middleware {
	return func(next Service) Service {
		return &instrumentingMiddleware{
			next:    next,
			metrics: metrics,
		}
	}
}

func outcome(err error) string {
	var (
		nf ErrNotFound
		br ErrBadRequest
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &br):
		return "bad_request"
	case errors.Is(err, ErrAccountLocked):
		return "locked"
	case errors.Is(err, ErrAuthFailed):
		return "auth_failed"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrSelfTransfer):
		return "self_transfer"
	}
	return "error"
}

func (m *instrumentingMiddleware) observe(method string, begin time.Time, err error) {
	m.metrics.Requests.WithLabelValues(method, outcome(err)).Inc()
	m.metrics.Duration.WithLabelValues(method).Observe(time.Since(begin).Seconds())
}

func (m *instrumentingMiddleware) CreateAccount(req CreateAccountReq) (info *AccountInfo, err error) {
	defer func(begin time.Time) { m.observe("create_account", begin, err) }(time.Now())
	return m.next.CreateAccount(req)
}

func (m *instrumentingMiddleware) Login(req LoginReq) (info *AccountInfo, err error) {
	defer func(begin time.Time) { m.observe("login", begin, err) }(time.Now())
	return m.next.Login(req)
}

func (m *instrumentingMiddleware) Account(number string) (info *AccountInfo, err error) {
	defer func(begin time.Time) { m.observe("account", begin, err) }(time.Now())
	return m.next.Account(number)
}

func (m *instrumentingMiddleware) Deposit(req ChargeReq) (bal *decimal.Decimal, err error) {
	defer func(begin time.Time) { m.observe("deposit", begin, err) }(time.Now())
	return m.next.Deposit(req)
}

func (m *instrumentingMiddleware) Withdraw(req ChargeReq) (bal *decimal.Decimal, err error) {
	defer func(begin time.Time) { m.observe("withdraw", begin, err) }(time.Now())
	return m.next.Withdraw(req)
}

func (m *instrumentingMiddleware) Transfer(req TransferReq) (bal *decimal.Decimal, err error) {
	defer func(begin time.Time) { m.observe("transfer", begin, err) }(time.Now())
	return m.next.Transfer(req)
}

func (m *instrumentingMiddleware) History(number string) (txns []Transaction, err error) {
	defer func(begin time.Time) { m.observe("history", begin, err) }(time.Now())
	return m.next.History(number)
}

func (m *instrumentingMiddleware) Interest(req InterestReq) (amt *decimal.Decimal, err error) {
	defer func(begin time.Time) { m.observe("interest", begin, err) }(time.Now())
	return m.next.Interest(req)
}

func (m *instrumentingMiddleware) ChangePIN(req ChangePINReq) (err error) {
	defer func(begin time.Time) { m.observe("change_pin", begin, err) }(time.Now())
	return m.next.ChangePIN(req)
}

func (m *instrumentingMiddleware) Unlock(req AdminReq) (err error) {
	defer func(begin time.Time) { m.observe("unlock", begin, err) }(time.Now())
	return m.next.Unlock(req)
}

func (m *instrumentingMiddleware) SetInterestRate(req RateReq) (err error) {
	defer func(begin time.Time) { m.observe("set_interest_rate", begin, err) }(time.Now())
	return m.next.SetInterestRate(req)
}

func (m *instrumentingMiddleware) Statement(w io.Writer, req StatementReq) (err error) {
	defer func(begin time.Time) { m.observe("statement", begin, err) }(time.Now())
	return m.next.Statement(w, req)
}
