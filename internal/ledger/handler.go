package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/vantage-erp/vantage-erp/internal/platform/cache"
	"github.com/vantage-erp/vantage-erp/internal/platform/db"
	"github.com/vantage-erp/vantage-erp/internal/platform/httpx"
	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// Handler exposes the posting service over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	cache    *cache.JSONCache
}

// NewHandler constructs handler. reports may be nil to disable caching.
func NewHandler(logger *slog.Logger, service *Service, reports *cache.JSONCache) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), cache: reports}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/accounts", h.listAccounts)
		r.Post("/accounts", h.createAccount)
		r.Put("/accounts/{id}", h.updateAccount)
		r.Delete("/accounts/{id}", h.deleteAccount)
		r.Post("/accounts/{id}/deactivate", h.deactivateAccount)
		r.Get("/accounts/{id}/balance", h.accountBalance)
		r.Get("/accounts/{id}/transactions", h.accountTransactions)
		r.Get("/periods", h.listPeriods)
		r.Post("/periods", h.createPeriod)
		r.Post("/periods/{id}/status", h.transitionPeriod)
		r.Post("/entries", h.createEntry)
		r.Post("/entries/{id}/post", h.postEntry)
		r.Post("/entries/{id}/reverse", h.reverseEntry)
		r.Get("/trial-balance", h.trialBalance)
	})
}

type lineRequest struct {
	AccountID   int64  `json:"account_id" validate:"required"`
	Description string `json:"description"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
}

type createEntryRequest struct {
	Date      string        `json:"date" validate:"required"`
	Memo      string        `json:"memo"`
	Type      string        `json:"type"`
	Reference string        `json:"reference"`
	Lines     []lineRequest `json:"lines" validate:"required,min=2,dive"`
	AutoPost  bool          `json:"auto_post"`
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	lines, err := parseLines(req.Lines)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.CreateEntry(r.Context(), CreateEntryInput{
		TenantID:  tenantID,
		Date:      date,
		Memo:      req.Memo,
		Type:      EntryType(req.Type),
		Reference: req.Reference,
		Lines:     lines,
		AutoPost:  req.AutoPost,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	if entry.Status == EntryStatusPosted {
		h.invalidateReports(r.Context(), tenantID)
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	entry, err := h.service.PostEntry(r.Context(), tenantID, entryID, 0)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.invalidateReports(r.Context(), tenantID)
	httpx.JSON(w, http.StatusOK, entry)
}

type reverseRequest struct {
	Date string `json:"date"`
	Memo string `json:"memo"`
}

func (h *Handler) reverseEntry(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && r.ContentLength > 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	input := ReverseInput{TenantID: tenantID, EntryID: entryID, Memo: req.Memo}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		input.ReversalDate = &date
	}
	reversal, err := h.service.ReverseEntry(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.invalidateReports(r.Context(), tenantID)
	httpx.JSON(w, http.StatusCreated, reversal)
}

type createAccountRequest struct {
	Code     string `json:"code" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Class    string `json:"class" validate:"required"`
	ParentID *int64 `json:"parent_id"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.CreateAccount(r.Context(), CreateAccountInput{
		TenantID: tenantID,
		Code:     req.Code,
		Name:     req.Name,
		Class:    AccountClass(req.Class),
		ParentID: req.ParentID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"
	accounts, err := h.service.ListAccounts(r.Context(), tenantID, activeOnly)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

type updateAccountRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	var req updateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.UpdateAccount(r.Context(), UpdateAccountInput{
		TenantID:  tenantID,
		AccountID: accountID,
		Name:      req.Name,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	if err := h.service.DeleteAccount(r.Context(), tenantID, accountID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	account, err := h.service.DeactivateAccount(r.Context(), tenantID, accountID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	if raw := r.URL.Query().Get("period_id"); raw != "" {
		periodID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || periodID < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid period id")
			return
		}
		bal, err := h.service.PeriodBalance(r.Context(), tenantID, accountID, periodID)
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, bal)
		return
	}
	asOf, err := parseDateOrNow(r.URL.Query().Get("as_of"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
		return
	}
	view, err := h.service.AccountBalance(r.Context(), tenantID, accountID, asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) accountTransactions(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	from, err := parseDateOr(r.URL.Query().Get("from"), time.Time{})
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
		return
	}
	to, err := parseDateOrNow(r.URL.Query().Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
		return
	}
	txns, err := h.service.AccountTransactions(r.Context(), tenantID, accountID, from, to)
	if err != nil {
		h.respondError(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := shared.NewPagination(page, perPage, len(txns))
	start := (pagination.Page - 1) * pagination.PerPage
	if start > len(txns) {
		start = len(txns)
	}
	end := start + pagination.PerPage
	if end > len(txns) {
		end = len(txns)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       txns[start:end],
		"pagination": pagination,
	})
}

type createPeriodRequest struct {
	Name      string `json:"name" validate:"required"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

func (h *Handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createPeriodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "end_date must be YYYY-MM-DD")
		return
	}
	period, err := h.service.CreatePeriod(r.Context(), CreatePeriodInput{
		TenantID:  tenantID,
		Name:      req.Name,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, period)
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	periods, err := h.service.ListPeriods(r.Context(), tenantID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, periods)
}

type transitionPeriodRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) transitionPeriod(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	periodID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid period id")
		return
	}
	var req transitionPeriodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	target := PeriodStatus(strings.ToUpper(req.Status))
	switch target {
	case PeriodStatusOpen, PeriodStatusSoftClose, PeriodStatusClosed:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "status must be OPEN, SOFT_CLOSE or CLOSED")
		return
	}
	period, err := h.service.TransitionPeriod(r.Context(), tenantID, periodID, target)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	tenantID, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf, err := parseDateOrNow(r.URL.Query().Get("as_of"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
		return
	}
	includeZero := r.URL.Query().Get("include_zero") == "true"

	key := fmt.Sprintf("ledger:tb:%d:%s:%t", tenantID, asOf.Format("2006-01-02"), includeZero)
	var cached TrialBalance
	if hit, err := h.cache.Get(r.Context(), key, &cached); err != nil {
		h.logger.Warn("trial balance cache read", slog.Any("error", err))
	} else if hit {
		httpx.JSON(w, http.StatusOK, cached)
		return
	}

	tb, err := h.service.TrialBalance(r.Context(), tenantID, asOf, includeZero)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if err := h.cache.Set(r.Context(), key, tb); err != nil {
		h.logger.Warn("trial balance cache write", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusOK, tb)
}

// invalidateReports drops cached trial balances after posting activity.
func (h *Handler) invalidateReports(ctx context.Context, tenantID int64) {
	if err := h.cache.Invalidate(ctx, fmt.Sprintf("ledger:tb:%d:*", tenantID)); err != nil {
		h.logger.Warn("trial balance cache invalidate", slog.Any("error", err))
	}
}

// respondError maps ledger errors onto problem responses, attaching the
// structured payloads the typed errors carry.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var unbalanced *UnbalancedEntryError
	var posted *PostedEntryError
	var closed *ClosedPeriodError
	var inactive *InactiveAccountError
	switch {
	case errors.As(err, &unbalanced):
		httpx.ProblemWithMeta(w, http.StatusUnprocessableEntity, "Unbalanced Entry", err.Error(), map[string]string{
			"debit_total":  unbalanced.DebitTotal.StringFixed(2),
			"credit_total": unbalanced.CreditTotal.StringFixed(2),
		})
	case errors.As(err, &posted):
		httpx.ProblemWithMeta(w, http.StatusConflict, "Entry Not Draft", err.Error(), map[string]any{
			"entry_id": posted.EntryID,
			"status":   posted.Status,
		})
	case errors.As(err, &closed):
		httpx.ProblemWithMeta(w, http.StatusConflict, "Period Closed", err.Error(), map[string]any{
			"period_id": closed.PeriodID,
			"period":    closed.Name,
		})
	case errors.As(err, &inactive):
		httpx.ProblemWithMeta(w, http.StatusUnprocessableEntity, "Inactive Accounts", err.Error(), map[string]any{
			"codes": inactive.Codes,
		})
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrPeriodNotFound), errors.Is(err, ErrMappingNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyReversed), errors.Is(err, ErrNotPosted),
		errors.Is(err, ErrSystemAccount), errors.Is(err, ErrAccountReferenced),
		errors.Is(err, ErrInvalidPeriodTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, db.ErrLockContention):
		w.Header().Set("Retry-After", "1")
		httpx.Problem(w, http.StatusServiceUnavailable, "Busy", "concurrent update in progress, retry")
	default:
		h.logger.Error("ledger request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseLines(reqs []lineRequest) ([]LineInput, error) {
	lines := make([]LineInput, 0, len(reqs))
	for _, lr := range reqs {
		debit, err := parseAmount(lr.Debit)
		if err != nil {
			return nil, err
		}
		credit, err := parseAmount(lr.Credit)
		if err != nil {
			return nil, err
		}
		lines = append(lines, LineInput{
			AccountID:   lr.AccountID,
			Description: lr.Description,
			Debit:       debit,
			Credit:      credit,
		})
	}
	return lines, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseDateOrNow(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}

func parseDateOr(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	return time.Parse("2006-01-02", s)
}
