package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/rewardledger/internal/auth"
	"github.com/dukerupert/rewardledger/internal/model"
	"github.com/dukerupert/rewardledger/internal/moderation"
)

// AdminHandler serves the reviewer endpoints. Every call is also checked by
// the facade's admin policy against the caller's account id.
type AdminHandler struct {
	facade *moderation.Facade
	logger *slog.Logger
}

func NewAdminHandler(f *moderation.Facade, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{facade: f, logger: logger}
}

type taskRequest struct {
	Title       string `json:"title" validate:"required,max=256"`
	Description string `json:"description" validate:"max=4096"`
	Link        string `json:"link" validate:"omitempty,url"`
	Reward      int    `json:"reward" validate:"gt=0"`
	Category    string `json:"category" validate:"required,max=64"`
}

func (h *AdminHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !decode(w, r, &req) {
		return
	}

	t, err := h.facade.CreateTask(auth.AccountID(r.Context()),
		strings.TrimSpace(req.Title), req.Description, req.Link, req.Reward,
		model.TaskCategory(strings.ToLower(strings.TrimSpace(req.Category))))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

type toggleRequest struct {
	Value *bool `json:"value" validate:"required"`
}

func (h *AdminHandler) SetTaskActive(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.facade.SetTaskActive(auth.AccountID(r.Context()), r.PathValue("id"), *req.Value); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) SetBlocked(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.facade.SetBlocked(auth.AccountID(r.Context()), r.PathValue("account_id"), *req.Value); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) PendingSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.facade.PendingSubmissions(auth.AccountID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *AdminHandler) PendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	ws, err := h.facade.PendingWithdrawals(auth.AccountID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if ws == nil {
		ws = []model.Withdrawal{}
	}
	writeJSON(w, http.StatusOK, ws)
}

type decisionRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=approve reject"`
	Reason  string `json:"reason" validate:"max=1024"`
}

// DecideTask resolves the oldest pending submission for an account and task.
func (h *AdminHandler) DecideTask(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decode(w, r, &req) {
		return
	}
	sub, err := h.facade.ReviewDecision(auth.AccountID(r.Context()),
		r.PathValue("account_id"), r.PathValue("task_id"), model.Outcome(req.Outcome), req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *AdminHandler) DecideSubmission(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decode(w, r, &req) {
		return
	}
	sub, err := h.facade.ReviewSubmission(auth.AccountID(r.Context()),
		r.PathValue("account_id"), r.PathValue("id"), model.Outcome(req.Outcome), req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type payoutDecisionRequest struct {
	decisionRequest
	RequestedAt time.Time `json:"requested_at"`
}

// DecidePayout resolves the withdrawal identified by account and request time.
func (h *AdminHandler) DecidePayout(w http.ResponseWriter, r *http.Request) {
	var req payoutDecisionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RequestedAt.IsZero() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "requested_at is required"})
		return
	}
	wd, err := h.facade.WithdrawalDecision(auth.AccountID(r.Context()),
		r.PathValue("account_id"), req.RequestedAt, model.Outcome(req.Outcome), req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

func (h *AdminHandler) DecideWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decode(w, r, &req) {
		return
	}
	wd, err := h.facade.ReviewWithdrawal(auth.AccountID(r.Context()),
		r.PathValue("account_id"), r.PathValue("id"), model.Outcome(req.Outcome), req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.facade.Stats(auth.AccountID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
