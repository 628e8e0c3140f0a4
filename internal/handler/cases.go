package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"case-market/internal/middleware"
	"case-market/internal/model"
	"case-market/internal/repository"
	"case-market/internal/service"
	"case-market/pkg/apierror"
	"case-market/pkg/response"
)

// CaseBrowser is the catalog read side.
type CaseBrowser interface {
	ListGrouped(ctx context.Context) ([]service.SectionCases, error)
	Search(ctx context.Context, f repository.CaseFilter) ([]*model.Case, error)
	Detail(ctx context.Context, slug string, viewer *model.Profile) (*service.CaseDetail, error)
	UpgradeTargets(ctx context.Context, offset, limit int) ([]*model.Item, error)
}

// CaseHandler serves public catalog endpoints.
type CaseHandler struct {
	cases CaseBrowser
}

// NewCaseHandler creates a new CaseHandler.
func NewCaseHandler(cases CaseBrowser) *CaseHandler {
	return &CaseHandler{cases: cases}
}

// List handles GET /api/v1/cases
func (h *CaseHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.cases.ListGrouped(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, groups)
}

// Search handles GET /api/v1/cases/search?q=&min_price=&max_price=
func (h *CaseHandler) Search(w http.ResponseWriter, r *http.Request) {
	f := repository.CaseFilter{Term: strings.TrimSpace(r.URL.Query().Get("q"))}

	var apiErr *apierror.Error
	if f.MinPrice, apiErr = queryDecimal(r, "min_price"); apiErr != nil {
		response.Error(w, apiErr)
		return
	}
	if f.MaxPrice, apiErr = queryDecimal(r, "max_price"); apiErr != nil {
		response.Error(w, apiErr)
		return
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		response.Error(w, apierror.BadRequest("min_price is above max_price"))
		return
	}

	cases, err := h.cases.Search(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, cases)
}

// Detail handles GET /api/v1/cases/{slug}
func (h *CaseHandler) Detail(w http.ResponseWriter, r *http.Request) {
	d, err := h.cases.Detail(r.Context(), chi.URLParam(r, "slug"), middleware.GetProfile(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, d)
}

// Targets handles GET /api/v1/items/targets?offset=&limit=
func (h *CaseHandler) Targets(w http.ResponseWriter, r *http.Request) {
	offset, apiErr := queryInt(r, "offset", 0)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}
	limit, apiErr := queryInt(r, "limit", 0)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	items, err := h.cases.UpgradeTargets(r.Context(), offset, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, items)
}
