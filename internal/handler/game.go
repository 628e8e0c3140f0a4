package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"case-market/internal/middleware"
	"case-market/internal/service"
	"case-market/pkg/apierror"
	"case-market/pkg/response"
)

// Rewards runs the reward operations.
type Rewards interface {
	Spin(ctx context.Context, profileID int64, slug string) (*service.SpinResult, error)
	Upgrade(ctx context.Context, profileID int64, inventoryIDs []int64, extra decimal.Decimal, targetItemID int64) (*service.UpgradeResult, error)
	Contract(ctx context.Context, profileID int64, inventoryIDs []int64, extra decimal.Decimal) (*service.ContractResult, error)
}

// GameHandler serves spins, upgrades and contracts.
type GameHandler struct {
	rewards Rewards
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(rewards Rewards) *GameHandler {
	return &GameHandler{rewards: rewards}
}

// UpgradeRequest is the body of POST /api/v1/upgrades.
type UpgradeRequest struct {
	ItemIDs      []int64         `json:"item_ids"`
	ExtraBalance decimal.Decimal `json:"extra_balance"`
	TargetItemID int64           `json:"target_item_id"`
}

// ContractRequest is the body of POST /api/v1/contracts.
type ContractRequest struct {
	ItemIDs      []int64         `json:"item_ids"`
	ExtraBalance decimal.Decimal `json:"extra_balance"`
}

// Spin handles POST /api/v1/cases/{slug}/spin
func (h *GameHandler) Spin(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetProfile(r.Context())

	res, err := h.rewards.Spin(r.Context(), p.ID, chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, res)
}

// Upgrade handles POST /api/v1/upgrades
func (h *GameHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetProfile(r.Context())

	var req UpgradeRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		response.Error(w, apiErr)
		return
	}
	if req.TargetItemID <= 0 {
		response.Error(w, apierror.ValidationError("invalid upgrade",
			apierror.FieldError{Field: "target_item_id", Message: "required"}))
		return
	}

	res, err := h.rewards.Upgrade(r.Context(), p.ID, req.ItemIDs, req.ExtraBalance, req.TargetItemID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, res)
}

// Contract handles POST /api/v1/contracts
func (h *GameHandler) Contract(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetProfile(r.Context())

	var req ContractRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	res, err := h.rewards.Contract(r.Context(), p.ID, req.ItemIDs, req.ExtraBalance)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, res)
}
