package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/xraph/factor"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/types"
)

// ==================== Requests ====================

// InitializeRequest is the body of POST /initialize.
type InitializeRequest struct {
	Admin types.Address `json:"admin" validate:"required"`
}

// MintRequest is the body of POST /invoices.
type MintRequest struct {
	Seller  types.Address `json:"seller" validate:"required"`
	Buyer   types.Address `json:"buyer" validate:"required"`
	Amount  types.Amount  `json:"amount"`
	DueDate time.Time     `json:"due_date" validate:"required"`
}

// VerifyRequest is the body of POST /invoices/{id}/verify.
type VerifyRequest struct {
	Buyer types.Address `json:"buyer" validate:"required"`
}

// ListRequest is the body of POST /invoices/{id}/list.
type ListRequest struct {
	Seller types.Address `json:"seller" validate:"required"`
	Price  types.Amount  `json:"price"`
}

// BuyRequest is the body of POST /invoices/{id}/buy.
type BuyRequest struct {
	Buyer types.Address `json:"buyer" validate:"required"`
	Token payment.Token `json:"token" validate:"required"`
}

// SettleRequest is the body of POST /invoices/{id}/settle.
type SettleRequest struct {
	Payer types.Address `json:"payer" validate:"required"`
	Token payment.Token `json:"token" validate:"required"`
}

// DepositRequest is the body of POST /balances/{token}/deposit.
type DepositRequest struct {
	Admin  types.Address `json:"admin" validate:"required"`
	Owner  types.Address `json:"owner" validate:"required"`
	Amount types.Amount  `json:"amount"`
}

// ==================== Responses ====================

// MintResponse is returned by POST /invoices.
type MintResponse struct {
	InvoiceID uint64 `json:"invoice_id"`
}

// OKResponse is returned by the boolean operations.
type OKResponse struct {
	OK bool `json:"ok"`
}

// CountResponse is returned by GET /invoices/count.
type CountResponse struct {
	Count uint64 `json:"count"`
}

// BalanceResponse is returned by GET /balances/{token}/{owner}.
type BalanceResponse struct {
	Token  payment.Token `json:"token"`
	Owner  types.Address `json:"owner"`
	Amount types.Amount  `json:"amount"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ==================== Mutations ====================

func (a *API) initialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.engine.Initialize(r.Context(), req.Admin); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, OKResponse{OK: true})
}

func (a *API) mint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if !a.decode(w, r, &req) {
		return
	}
	invoiceID, err := a.engine.Mint(r.Context(), req.Seller, req.Buyer, req.Amount, req.DueDate)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, MintResponse{InvoiceID: invoiceID})
}

func (a *API) verify(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := a.invoiceID(w, r)
	if !ok {
		return
	}
	var req VerifyRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.respondOK(w, r)(a.engine.Verify(r.Context(), invoiceID, req.Buyer))
}

func (a *API) list(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := a.invoiceID(w, r)
	if !ok {
		return
	}
	var req ListRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.respondOK(w, r)(a.engine.List(r.Context(), invoiceID, req.Seller, req.Price))
}

func (a *API) buy(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := a.invoiceID(w, r)
	if !ok {
		return
	}
	var req BuyRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.respondOK(w, r)(a.engine.Buy(r.Context(), invoiceID, req.Buyer, req.Token))
}

func (a *API) settle(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := a.invoiceID(w, r)
	if !ok {
		return
	}
	var req SettleRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.respondOK(w, r)(a.engine.Settle(r.Context(), invoiceID, req.Payer, req.Token))
}

func (a *API) deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !a.decode(w, r, &req) {
		return
	}
	token := payment.Token(chi.URLParam(r, "token"))
	if err := a.engine.Deposit(r.Context(), req.Admin, token, req.Owner, req.Amount); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// ==================== Queries ====================

func (a *API) getInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := a.invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := a.engine.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (a *API) getListing(w http.ResponseWriter, r *http.Request) {
	invoiceID, ok := a.invoiceID(w, r)
	if !ok {
		return
	}
	l, err := a.engine.GetListing(r.Context(), invoiceID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (a *API) invoicesByParty(w http.ResponseWriter, r *http.Request) {
	party := types.Address(r.URL.Query().Get("party"))
	if party.IsZero() {
		a.fail(w, r, errors.Mark(factor.ValidationError{Field: "party", Message: "query parameter is required"}, factor.ErrInvalidInput))
		return
	}
	invoices, err := a.engine.GetInvoicesBySeller(r.Context(), party)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (a *API) invoiceCount(w http.ResponseWriter, r *http.Request) {
	count, err := a.engine.GetInvoiceCount(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: count})
}

func (a *API) allListings(w http.ResponseWriter, r *http.Request) {
	listings, err := a.engine.GetAllListings(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

func (a *API) balance(w http.ResponseWriter, r *http.Request) {
	token := payment.Token(chi.URLParam(r, "token"))
	owner := types.Address(chi.URLParam(r, "owner"))
	bal, err := a.engine.Balance(r.Context(), token, owner)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Token: token, Owner: owner, Amount: bal})
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Store().Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error(), Code: factor.CodeInternal})
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (a *API) invoiceID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	invoiceID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error: "invalid invoice id " + strconv.Quote(raw),
			Code:  factor.CodeInvalidInput,
		})
		return 0, false
	}
	return invoiceID, true
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid body: " + err.Error(), Code: factor.CodeInvalidInput})
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: factor.CodeInvalidInput})
		return false
	}
	return true
}

func (a *API) respondOK(w http.ResponseWriter, r *http.Request) func(bool, error) {
	return func(ok bool, err error) {
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, OKResponse{OK: ok})
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := factor.Code(err)
	status := StatusCode(code)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Header.Get(HeaderRequestID),
		)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

// StatusCode maps an error code from factor.Code to an HTTP status.
func StatusCode(code string) int {
	switch code {
	case factor.CodeNotFound:
		return http.StatusNotFound
	case factor.CodeUnauthorized:
		return http.StatusForbidden
	case factor.CodeInvalidTransition, factor.CodeNotYetDue, factor.CodeAlreadyInitialized:
		return http.StatusConflict
	case factor.CodeNotInitialized:
		return http.StatusPreconditionFailed
	case factor.CodeInvalidInput:
		return http.StatusBadRequest
	case factor.CodeTransferFailed:
		return http.StatusPaymentRequired
	case factor.CodeNotSupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client gone
}
