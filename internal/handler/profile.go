package handler

import (
	"context"
	"net/http"

	"case-market/internal/middleware"
	"case-market/internal/model"
	"case-market/internal/service"
	"case-market/pkg/apierror"
	"case-market/pkg/response"
)

// Accounts is the profile side of the account service.
type Accounts interface {
	Overview(ctx context.Context, profileID int64) (*service.Overview, error)
	UpdateTradeURL(ctx context.Context, profileID int64, raw string) error
}

// Inventory sells owned items.
type Inventory interface {
	Sell(ctx context.Context, profileID int64, inventoryIDs []int64) (*service.SellResult, error)
}

// Withdrawals creates and reconciles trade offers.
type Withdrawals interface {
	Create(ctx context.Context, profileID int64, inventoryIDs []int64) (*service.WithdrawResult, error)
	PollForProfile(ctx context.Context, profileID int64) (*service.PollResult, error)
	ListByProfile(ctx context.Context, profileID int64, limit int) ([]*model.Withdrawal, error)
}

// ProfileHandler serves the caller's profile, inventory and withdrawals.
type ProfileHandler struct {
	accounts    Accounts
	inventory   Inventory
	withdrawals Withdrawals
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(accounts Accounts, inventory Inventory, withdrawals Withdrawals) *ProfileHandler {
	return &ProfileHandler{accounts: accounts, inventory: inventory, withdrawals: withdrawals}
}

// TradeURLRequest is the body of PUT /api/v1/profile/trade-url.
type TradeURLRequest struct {
	TradeURL string `json:"trade_url"`
}

// ItemsRequest carries a list of inventory item ids.
type ItemsRequest struct {
	ItemIDs []int64 `json:"item_ids"`
}

func (req ItemsRequest) validate() *apierror.Error {
	if len(req.ItemIDs) == 0 {
		return apierror.ValidationError("no items selected",
			apierror.FieldError{Field: "item_ids", Message: "required"})
	}
	return nil
}

// Get handles GET /api/v1/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetProfile(r.Context())

	ov, err := h.accounts.Overview(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, ov)
}

// UpdateTradeURL handles PUT /api/v1/profile/trade-url
func (h *ProfileHandler) UpdateTradeURL(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetProfile(r.Context())

	var req TradeURLRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		response.Error(w, apiErr)
		return
	}
	if err := h.accounts.UpdateTradeURL(r.Context(), p.ID, req.TradeURL); err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, map[string]string{"status": "updated"})
}

// Sell handles POST /api/v1/inventory/sell
func (h *ProfileHandler) Sell(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetProfile(r.Context())

	var req ItemsRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		response.Error(w, apiErr)
		return
	}
	if apiErr := req.validate(); apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	res, err := h.inventory.Sell(r.Context(), p.ID, req.ItemIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, res)
}

// Withdraw handles POST /api/v1/withdrawals. Per-item failures are part of a
// 200 response.
func (h *ProfileHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetProfile(r.Context())

	var req ItemsRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		response.Error(w, apiErr)
		return
	}
	if apiErr := req.validate(); apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	res, err := h.withdrawals.Create(r.Context(), p.ID, req.ItemIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, res)
}

// PollWithdrawals handles POST /api/v1/withdrawals/poll
func (h *ProfileHandler) PollWithdrawals(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetProfile(r.Context())

	res, err := h.withdrawals.PollForProfile(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, res)
}

// ListWithdrawals handles GET /api/v1/withdrawals?limit=
func (h *ProfileHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetProfile(r.Context())

	limit, apiErr := queryInt(r, "limit", 50)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}
	list, err := h.withdrawals.ListByProfile(r.Context(), p.ID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, list)
}
