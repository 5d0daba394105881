package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/rewardledger/internal/auth"
	"github.com/dukerupert/rewardledger/internal/model"
	"github.com/dukerupert/rewardledger/internal/moderation"
)

type TaskHandler struct {
	facade *moderation.Facade
	logger *slog.Logger
}

func NewTaskHandler(f *moderation.Facade, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{facade: f, logger: logger}
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.facade.ActiveTasks()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Select(w http.ResponseWriter, r *http.Request) {
	t, err := h.facade.SelectTask(auth.AccountID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type proofRequest struct {
	ProofRef string `json:"proof_ref" validate:"required,max=512"`
}

func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req proofRequest
	if !decode(w, r, &req) {
		return
	}

	sub, err := h.facade.SubmitProof(auth.AccountID(r.Context()), r.PathValue("id"), req.ProofRef)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}
