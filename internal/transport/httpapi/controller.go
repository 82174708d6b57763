// Package httpapi exposes the stockbook over a JSON REST API. A user is
// picked once per browser via /api/users + /api/select-user; the choice is
// kept in a redis-backed session cookie and every ledger route resolves the
// user from it.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/andmosc/stockbook/config"
	"github.com/andmosc/stockbook/data/session"
	"github.com/andmosc/stockbook/internal/model"
	"github.com/andmosc/stockbook/internal/service"
	"github.com/andmosc/stockbook/internal/service/stockbookService"
	"github.com/andmosc/stockbook/utils"
	"github.com/google/uuid"
)

const sessionCookie = "session_id"

type StockbookProvider interface {
	GetUsers(ctx context.Context) ([]model.User, error)
	GetUser(ctx context.Context, userID int64) (model.User, error)
	AddTransaction(ctx context.Context, tx model.Transaction) (model.Transaction, error)
	GetTransactions(ctx context.Context, userID int64) ([]model.Transaction, error)
	ImportStatement(ctx context.Context, userID int64, r io.Reader) (stockbookService.ImportResult, error)
	BuildPortfolio(ctx context.Context, userID int64) ([]model.SymbolPosition, error)
	BuildPerformance(ctx context.Context, userID int64) (model.PerformanceSummary, error)
	ExportReport(ctx context.Context, userID int64) (stockbookService.Report, error)
}

type SessionStore interface {
	Set(ctx context.Context, sessionID string, session model.Session) error
	Get(ctx context.Context, sessionID string) (model.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

type Controller struct {
	srv      StockbookProvider
	sessions SessionStore
	cfg      *config.Config
}

func NewController(srv StockbookProvider, sessions SessionStore, cfg *config.Config) *Controller {
	return &Controller{srv: srv, sessions: sessions, cfg: cfg}
}

func (c *Controller) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/users", c.GetUsers)
	mux.HandleFunc("POST /api/select-user", c.SelectUser)
	mux.HandleFunc("POST /api/logout", c.Logout)
	mux.HandleFunc("GET /api/transactions", c.GetTransactions)
	mux.HandleFunc("POST /api/transactions", c.AddTransaction)
	mux.HandleFunc("POST /api/statement", c.UploadStatement)
	mux.HandleFunc("GET /api/portfolio", c.GetPortfolio)
	mux.HandleFunc("GET /api/performance", c.GetPerformance)
	mux.HandleFunc("GET /api/report", c.ExportReport)
}

func (c *Controller) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := c.srv.GetUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load users")
		return
	}

	dto := make([]userDTO, 0, len(users))
	for _, user := range users {
		dto = append(dto, convertUser(user))
	}

	writeJSON(w, http.StatusOK, dto)
}

func (c *Controller) SelectUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Controller.SelectUser"

	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := c.srv.GetUser(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	sessionID := uuid.NewString()
	err = c.sessions.Set(ctx, sessionID, model.Session{UserID: user.ID, Username: user.Username})
	if err != nil {
		slog.Error("got error from sessions.Set", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sessionID,
		Path:     "/",
		Expires:  time.Now().Add(c.cfg.SessionExpiration),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, convertUser(user))
}

func (c *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookie)
	if err == nil {
		_ = c.sessions.Delete(r.Context(), cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) GetTransactions(w http.ResponseWriter, r *http.Request) {
	sess, ok := c.currentSession(w, r)
	if !ok {
		return
	}

	txs, err := c.srv.GetTransactions(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load transactions")
		return
	}

	dto := make([]transactionDTO, 0, len(txs))
	for _, tx := range txs {
		dto = append(dto, convertTransaction(tx))
	}

	writeJSON(w, http.StatusOK, dto)
}

func (c *Controller) AddTransaction(w http.ResponseWriter, r *http.Request) {
	sess, ok := c.currentSession(w, r)
	if !ok {
		return
	}

	var req addTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx := model.Transaction{
		UserID:          sess.UserID,
		Symbol:          req.Symbol,
		Kind:            model.TransactionKind(req.Kind),
		Quantity:        req.Quantity,
		PricePerShare:   req.PricePerShare,
		Fee:             req.Fee,
		Pnl:             req.Amount,
		TransactionDate: time.Now(),
	}

	if req.TransactionDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.TransactionDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid transaction_date, want RFC3339")
			return
		}
		tx.TransactionDate = parsed
	}

	saved, err := c.srv.AddTransaction(r.Context(), tx)
	if err != nil {
		if errors.Is(err, service.ErrInvalidTransaction) {
			writeError(w, http.StatusBadRequest, "invalid transaction")
			return
		}
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save transaction")
		return
	}

	writeJSON(w, http.StatusCreated, convertTransaction(saved))
}

func (c *Controller) UploadStatement(w http.ResponseWriter, r *http.Request) {
	sess, ok := c.currentSession(w, r)
	if !ok {
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing statement file")
		return
	}
	defer file.Close()

	result, err := c.srv.ImportStatement(r.Context(), sess.UserID, file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to import statement")
		return
	}

	writeJSON(w, http.StatusOK, importResultDTO{Imported: result.Imported, Skipped: result.Skipped})
}

func (c *Controller) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	sess, ok := c.currentSession(w, r)
	if !ok {
		return
	}

	positions, err := c.srv.BuildPortfolio(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build portfolio")
		return
	}

	dto := make([]positionDTO, 0, len(positions))
	for _, position := range positions {
		dto = append(dto, convertPosition(position))
	}

	writeJSON(w, http.StatusOK, dto)
}

func (c *Controller) GetPerformance(w http.ResponseWriter, r *http.Request) {
	sess, ok := c.currentSession(w, r)
	if !ok {
		return
	}

	summary, err := c.srv.BuildPerformance(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build performance summary")
		return
	}

	writeJSON(w, http.StatusOK, convertPerformance(summary))
}

func (c *Controller) ExportReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := c.currentSession(w, r)
	if !ok {
		return
	}

	report, err := c.srv.ExportReport(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to export report")
		return
	}

	if report.DownloadLink != "" {
		writeJSON(w, http.StatusOK, map[string]string{"download_link": report.DownloadLink})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report.FileBytes)
}

// currentSession resolves the session cookie; on failure it writes a 401 and
// reports false.
func (c *Controller) currentSession(w http.ResponseWriter, r *http.Request) (model.Session, bool) {
	ctx := r.Context()
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Controller.currentSession"

	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no user selected")
		return model.Session{}, false
	}

	sess, err := c.sessions.Get(ctx, cookie.Value)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "session expired")
			return model.Session{}, false
		}
		slog.Error("got error from sessions.Get", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to resolve session")
		return model.Session{}, false
	}

	return sess, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", slog.String("err", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
