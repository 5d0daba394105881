package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/rewardledger/internal/auth"
	"github.com/dukerupert/rewardledger/internal/model"
	"github.com/dukerupert/rewardledger/internal/moderation"
	"github.com/dukerupert/rewardledger/internal/referral"
)

type AccountHandler struct {
	facade *moderation.Facade
	logger *slog.Logger
}

func NewAccountHandler(f *moderation.Facade, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{facade: f, logger: logger}
}

type registerRequest struct {
	Name         string `json:"name" validate:"required,max=128"`
	ReferralCode string `json:"referral_code" validate:"omitempty,max=32"`
}

// Register is the /start command: it creates the caller's account on first
// contact and returns the existing one afterwards.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}

	reg, err := h.facade.RegisterAccount(auth.AccountID(r.Context()), req.Name, req.ReferralCode)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if reg.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, reg)
}

type profileResponse struct {
	*model.Account
	Milestones []referral.Milestone `json:"milestones"`
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	a, err := h.facade.Account(auth.AccountID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if a == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "account not registered"})
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Account: a, Milestones: h.facade.Milestones()})
}

func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	hist, err := h.facade.History(auth.AccountID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if hist.Submissions == nil {
		hist.Submissions = []model.Submission{}
	}
	if hist.Withdrawals == nil {
		hist.Withdrawals = []model.Withdrawal{}
	}
	writeJSON(w, http.StatusOK, hist)
}

type withdrawalRequest struct {
	Destination string `json:"destination" validate:"required,max=256"`
}

func (h *AccountHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if !decode(w, r, &req) {
		return
	}

	wd, err := h.facade.RequestWithdrawal(auth.AccountID(r.Context()), req.Destination)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}
