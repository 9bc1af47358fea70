package tellergo_test

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/arhyth/tellergo"
	"github.com/arhyth/tellergo/mocks"
)

const validNumber = "ACC123456789"

func TestValidationMWCreateAccount(t *testing.T) {
	t.Run("returns an error on a missing holder", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		v := tellergo.NewValidationMiddleware()(svc)

		info, err := v.CreateAccount(tellergo.CreateAccountReq{Type: "Savings", PIN: 1234})
		as.ErrorAs(err, &tellergo.ErrBadRequest{})
		as.Nil(info)
	})

	t.Run("passes a complete request through", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		v := tellergo.NewValidationMiddleware()(svc)
		req := tellergo.CreateAccountReq{Holder: "Ada", Type: "Savings", PIN: 1234}
		svc.EXPECT().
			CreateAccount(req).
			Return(&tellergo.AccountInfo{Number: validNumber}, nil)

		info, err := v.CreateAccount(req)
		as.NoError(err)
		as.Equal(validNumber, info.Number)
	})
}

func TestValidationMWNumbers(t *testing.T) {
	t.Run("returns an error on malformed account numbers", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		v := tellergo.NewValidationMiddleware()(svc)
		one := decimal.NewFromInt(1)

		for _, number := range []string{"", "ACC12345678", "acc123456789", "ACC1234567890", "XYZ123456789"} {
			_, err := v.Login(tellergo.LoginReq{Number: number, PIN: 1234})
			as.ErrorAs(err, &tellergo.ErrBadRequest{}, number)
			_, err = v.Account(number)
			as.ErrorAs(err, &tellergo.ErrBadRequest{}, number)
			_, err = v.Deposit(tellergo.ChargeReq{Number: number, Amount: one})
			as.ErrorAs(err, &tellergo.ErrBadRequest{}, number)
			_, err = v.Withdraw(tellergo.ChargeReq{Number: number, Amount: one})
			as.ErrorAs(err, &tellergo.ErrBadRequest{}, number)
			_, err = v.History(number)
			as.ErrorAs(err, &tellergo.ErrBadRequest{}, number)
			as.ErrorAs(v.ChangePIN(tellergo.ChangePINReq{Number: number}), &tellergo.ErrBadRequest{}, number)
			as.ErrorAs(v.Unlock(tellergo.AdminReq{Number: number}), &tellergo.ErrBadRequest{}, number)
			as.ErrorAs(v.SetInterestRate(tellergo.RateReq{Number: number}), &tellergo.ErrBadRequest{}, number)
			as.ErrorAs(v.Statement(&bytes.Buffer{}, tellergo.StatementReq{Number: number}), &tellergo.ErrBadRequest{}, number)
		}
	})

	t.Run("names the offending transfer field", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		v := tellergo.NewValidationMiddleware()(svc)

		_, err := v.Transfer(tellergo.TransferReq{From: validNumber, To: "nope", Amount: decimal.NewFromInt(1)})
		var br tellergo.ErrBadRequest
		as.ErrorAs(err, &br)
		as.Contains(br.Fields, "to")
	})
}

func TestValidationMWAmounts(t *testing.T) {
	t.Run("returns ErrInvalidAmount on non-positive amounts", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		v := tellergo.NewValidationMiddleware()(svc)

		for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-10)} {
			bal, err := v.Deposit(tellergo.ChargeReq{Number: validNumber, Amount: amount})
			as.ErrorIs(err, tellergo.ErrInvalidAmount)
			as.Nil(bal)
			bal, err = v.Withdraw(tellergo.ChargeReq{Number: validNumber, Amount: amount})
			as.ErrorIs(err, tellergo.ErrInvalidAmount)
			as.Nil(bal)
		}
		_, err := v.Interest(tellergo.InterestReq{Number: validNumber, Days: 0})
		as.ErrorIs(err, tellergo.ErrInvalidAmount)
	})

	t.Run("passes a valid deposit through", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		v := tellergo.NewValidationMiddleware()(svc)
		req := tellergo.ChargeReq{Number: validNumber, Amount: decimal.NewFromInt(20)}
		want := decimal.NewFromInt(120)
		svc.EXPECT().
			Deposit(req).
			Return(&want, nil)

		bal, err := v.Deposit(req)
		as.NoError(err)
		as.Equal(want, *bal)
	})
}

func TestInstrumentingMW(t *testing.T) {
	t.Run("counts calls by outcome", func(tt *testing.T) {
		as := assert.New(tt)
		ctrl := gomock.NewController(tt)
		svc := mocks.NewMockService(ctrl)
		reg := prometheus.NewRegistry()
		metrics := tellergo.NewServiceMetrics(reg)
		m := tellergo.NewInstrumentingMiddleware(metrics)(svc)

		bal := decimal.NewFromInt(5)
		gomock.InOrder(
			svc.EXPECT().Withdraw(gomock.Any()).Return(&bal, nil),
			svc.EXPECT().Withdraw(gomock.Any()).Return(nil, tellergo.ErrInsufficientFunds),
			svc.EXPECT().Withdraw(gomock.Any()).Return(nil, tellergo.ErrInsufficientFunds),
		)
		svc.EXPECT().Login(gomock.Any()).Return(nil, tellergo.ErrWrongPIN{Remaining: 0})
		svc.EXPECT().Account(gomock.Any()).Return(nil, tellergo.ErrNotFound{Number: validNumber})

		for i := 0; i < 3; i++ {
			_, _ = m.Withdraw(tellergo.ChargeReq{Number: validNumber, Amount: decimal.NewFromInt(1)})
		}
		_, _ = m.Login(tellergo.LoginReq{Number: validNumber, PIN: 1})
		_, _ = m.Account(validNumber)

		as.Equal(1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("withdraw", "ok")))
		as.Equal(2.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("withdraw", "insufficient_funds")))
		as.Equal(1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("login", "locked")))
		as.Equal(1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("account", "not_found")))
		as.Equal(3, testutil.CollectAndCount(metrics.Duration))
	})
}

func TestChain(t *testing.T) {
	as := assert.New(t)
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	reg := prometheus.NewRegistry()
	metrics := tellergo.NewServiceMetrics(reg)
	chained := tellergo.Chain(svc,
		tellergo.NewInstrumentingMiddleware(metrics),
		tellergo.NewValidationMiddleware(),
	)

	// rejected by validation, still counted by the outer instrumentation
	_, err := chained.Account("bogus")
	as.ErrorAs(err, &tellergo.ErrBadRequest{})
	as.Equal(1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("account", "bad_request")))
}
