package tellergo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"
)

var (
	statusOK = []byte(`{"status":"OK"}`)

	errTooBusy = errors.New("server busy, try again later")
)

const adminPINHeader = "X-Admin-PIN"

type balanceJSONResp struct {
	Balance decimal.Decimal `json:"balance"`
}

type interestJSONResp struct {
	Days     int             `json:"days"`
	Interest decimal.Decimal `json:"interest"`
}

type historyJSONResp struct {
	Transactions []Transaction `json:"transactions"`
}

type sessionJSONResp struct {
	Token   string       `json:"token"`
	Account *AccountInfo `json:"account"`
}

type HTTPOpts struct {
	Sessions *Sessions
	// MaxInFlight bounds concurrently served requests; waiting longer than
	// AcquireTimeout for a slot yields 503.
	MaxInFlight    int64
	AcquireTimeout time.Duration
	Gatherer       prometheus.Gatherer
	Log            *zerolog.Logger
}

func NewHTTPHandler(svc Service, opts HTTPOpts) http.Handler {
	hndlr := &httpHandler{
		Svc:  svc,
		Sess: opts.Sessions,
		Log:  opts.Log,
	}
	mux := chi.NewMux()
	mux.Use(middleware.Recoverer)
	mux.NotFound(HTTPNotFound)
	if opts.Gatherer != nil {
		mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.Group(func(r chi.Router) {
		if opts.MaxInFlight > 0 {
			r.Use(limitHandler(semaphore.NewWeighted(opts.MaxInFlight), opts.AcquireTimeout))
		}
		r.Post("/sessions", hndlr.Login)
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", hndlr.CreateAccount)
			r.Route("/{number:ACC[0-9]+}", func(rr chi.Router) {
				rr.Use(hndlr.requireSession)
				rr.Get("/", hndlr.Account)
				rr.Post("/deposit", hndlr.Deposit)
				rr.Post("/withdraw", hndlr.Withdraw)
				rr.Post("/transfer", hndlr.Transfer)
				rr.Get("/history", hndlr.History)
				rr.Get("/interest", hndlr.Interest)
				rr.Post("/pin", hndlr.ChangePIN)
				rr.Get("/statement", hndlr.Statement)
			})
		})
		r.Route("/admin/accounts/{number:ACC[0-9]+}", func(rr chi.Router) {
			rr.Post("/unlock", hndlr.Unlock)
			rr.Post("/rate", hndlr.SetInterestRate)
		})
	})

	return mux
}

// limitHandler sheds load once max requests are in flight.
func limitHandler(sem *semaphore.Weighted, timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			if err := sem.Acquire(ctx, 1); err != nil {
				WriteHTTPError(w, errTooBusy)
				return
			}
			defer sem.Release(1)
			next.ServeHTTP(w, r)
		})
	}
}

type httpHandler struct {
	Svc  Service
	Sess *Sessions
	Log  *zerolog.Logger
}

// requireSession admits a request only when its bearer token was issued for
// the account named in the path.
func (h *httpHandler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			WriteHTTPError(w, ErrAuthFailed)
			return
		}
		number, err := h.Sess.Parse(raw)
		if err != nil {
			h.Log.Err(err).Str("path", r.URL.Path).Msg("invalid session token")
			WriteHTTPError(w, ErrAuthFailed)
			return
		}
		if number != chi.URLParam(r, "number") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"message": "token not valid for this account"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *httpHandler) decode(r *http.Request, method string, v any) error {
	buf, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		h.Log.Err(err).Str("method", method).Msg("error reading HTTP request")
		return ErrInternalServer
	}
	if err = json.Unmarshal(buf, v); err != nil {
		h.Log.Err(err).Str("method", method).Msg("error unmarshalling JSON")
		return ErrBadRequest{Fields: map[string]string{"request body": "malformed JSON"}}
	}
	return nil
}

func adminPIN(r *http.Request) (int, error) {
	pin, err := strconv.Atoi(r.Header.Get(adminPINHeader))
	if err != nil {
		return 0, ErrAuthFailed
	}
	return pin, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encoding failed")
	}
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(statusOK)
}

func (h *httpHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountReq
	if err := h.decode(r, "create_account", &req); err != nil {
		WriteHTTPError(w, err)
		return
	}
	info, err := h.Svc.CreateAccount(req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (h *httpHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginReq
	if err := h.decode(r, "login", &req); err != nil {
		WriteHTTPError(w, err)
		return
	}
	info, err := h.Svc.Login(req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	token, err := h.Sess.Issue(info.Number)
	if err != nil {
		h.Log.Err(err).Str("method", "login").Msg("error issuing session token")
		WriteHTTPError(w, ErrInternalServer)
		return
	}
	writeJSON(w, http.StatusOK, sessionJSONResp{Token: token, Account: info})
}

func (h *httpHandler) Account(w http.ResponseWriter, r *http.Request) {
	info, err := h.Svc.Account(chi.URLParam(r, "number"))
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *httpHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req ChargeReq
	if err := h.decode(r, "deposit", &req); err != nil {
		WriteHTTPError(w, err)
		return
	}
	req.Number = chi.URLParam(r, "number")
	bal, err := h.Svc.Deposit(req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceJSONResp{Balance: *bal})
}

func (h *httpHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req ChargeReq
	if err := h.decode(r, "withdraw", &req); err != nil {
		WriteHTTPError(w, err)
		return
	}
	req.Number = chi.URLParam(r, "number")
	bal, err := h.Svc.Withdraw(req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceJSONResp{Balance: *bal})
}

func (h *httpHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferReq
	if err := h.decode(r, "transfer", &req); err != nil {
		WriteHTTPError(w, err)
		return
	}
	req.From = chi.URLParam(r, "number")
	bal, err := h.Svc.Transfer(req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceJSONResp{Balance: *bal})
}

func (h *httpHandler) History(w http.ResponseWriter, r *http.Request) {
	txns, err := h.Svc.History(chi.URLParam(r, "number"))
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	if txns == nil {
		txns = []Transaction{}
	}
	writeJSON(w, http.StatusOK, historyJSONResp{Transactions: txns})
}

func (h *httpHandler) Interest(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil {
		WriteHTTPError(w, ErrBadRequest{Fields: map[string]string{"days": "must be an integer"}})
		return
	}
	req := InterestReq{
		Number: chi.URLParam(r, "number"),
		Days:   days,
	}
	interest, err := h.Svc.Interest(req)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, interestJSONResp{Days: days, Interest: *interest})
}

func (h *httpHandler) ChangePIN(w http.ResponseWriter, r *http.Request) {
	var req ChangePINReq
	if err := h.decode(r, "change_pin", &req); err != nil {
		WriteHTTPError(w, err)
		return
	}
	req.Number = chi.URLParam(r, "number")
	if err := h.Svc.ChangePIN(req); err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeOK(w)
}

func (h *httpHandler) Statement(w http.ResponseWriter, r *http.Request) {
	req := StatementReq{Number: chi.URLParam(r, "number")}
	buf := new(bytes.Buffer)
	if err := h.Svc.Statement(buf, req); err != nil {
		h.Log.Err(err).Str("method", "statement").Msg("error rendering statement")
		WriteHTTPError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="statement-`+req.Number+`.pdf"`)
	if _, err := buf.WriteTo(w); err != nil {
		h.Log.Err(err).Str("method", "statement").Msg("error writing statement")
	}
}

func (h *httpHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	pin, err := adminPIN(r)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	req := AdminReq{
		Number:   chi.URLParam(r, "number"),
		AdminPIN: pin,
	}
	if err = h.Svc.Unlock(req); err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeOK(w)
}

func (h *httpHandler) SetInterestRate(w http.ResponseWriter, r *http.Request) {
	pin, err := adminPIN(r)
	if err != nil {
		WriteHTTPError(w, err)
		return
	}
	var req RateReq
	if err = h.decode(r, "set_interest_rate", &req); err != nil {
		WriteHTTPError(w, err)
		return
	}
	req.Number = chi.URLParam(r, "number")
	req.AdminPIN = pin
	if err = h.Svc.SetInterestRate(req); err != nil {
		WriteHTTPError(w, err)
		return
	}
	writeOK(w)
}

func WriteHTTPError(w http.ResponseWriter, err error) {
	var ne error
	defer func() {
		if ne != nil {
			log.Error().
				Err(ne).
				Msg("error response encoding failed")
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	errnf := &ErrNotFound{}
	errbr := &ErrBadRequest{}
	message := map[string]string{"message": err.Error()}
	switch {
	case errors.As(err, errnf):
		w.WriteHeader(http.StatusNotFound)
		ne = json.NewEncoder(w).Encode(errnf)
	case errors.As(err, errbr):
		w.WriteHeader(http.StatusBadRequest)
		ne = json.NewEncoder(w).Encode(errbr)
	case errors.Is(err, ErrAccountLocked):
		w.WriteHeader(http.StatusLocked)
		ne = json.NewEncoder(w).Encode(message)
	case errors.Is(err, ErrAuthFailed):
		w.WriteHeader(http.StatusUnauthorized)
		ne = json.NewEncoder(w).Encode(message)
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSelfTransfer):
		w.WriteHeader(http.StatusBadRequest)
		ne = json.NewEncoder(w).Encode(message)
	case errors.Is(err, ErrInsufficientFunds):
		w.WriteHeader(http.StatusConflict)
		ne = json.NewEncoder(w).Encode(message)
	case errors.Is(err, errTooBusy), errors.Is(err, ErrNumberSpaceExhausted):
		w.WriteHeader(http.StatusServiceUnavailable)
		ne = json.NewEncoder(w).Encode(message)
	default:
		w.WriteHeader(http.StatusInternalServerError)
		resp := map[string]string{
			"message": "server error",
		}
		ne = json.NewEncoder(w).Encode(resp)
	}
}

func HTTPNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	resp := map[string]string{
		"path": r.URL.Path,
	}
	json.NewEncoder(w).Encode(resp)
}
