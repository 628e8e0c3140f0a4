package service

import (
	"context"

	"github.com/shopspring/decimal"

	"case-market/internal/model"
	"case-market/internal/repository"
)

// Upgrade target paging limits.
const (
	DefaultTargetLimit = 60
	MaxTargetLimit     = 200
)

// SectionCases is one section of the case list.
type SectionCases struct {
	Section *model.CaseSection `json:"section,omitempty"`
	Cases   []*model.Case      `json:"cases"`
}

// CaseDetail is a case with its items. NeedAmount is set when the viewer
// cannot afford the case.
type CaseDetail struct {
	Case       *model.Case       `json:"case"`
	Items      []*model.CaseItem `json:"items"`
	NeedAmount *decimal.Decimal  `json:"need_amount,omitempty"`
}

// CaseService serves catalog browsing.
type CaseService struct {
	store *repository.Store
}

// NewCaseService creates a new CaseService instance.
func NewCaseService(store *repository.Store) *CaseService {
	return &CaseService{store: store}
}

// ListGrouped returns active cases grouped by section in display order.
// Cases without a section come last under a nil section.
func (s *CaseService) ListGrouped(ctx context.Context) ([]SectionCases, error) {
	sections, err := s.store.Cases.ListSections(ctx)
	if err != nil {
		return nil, err
	}
	cases, err := s.store.Cases.ListActive(ctx, repository.CaseFilter{})
	if err != nil {
		return nil, err
	}

	index := make(map[int64]int, len(sections))
	groups := make([]SectionCases, 0, len(sections)+1)
	for _, sec := range sections {
		index[sec.ID] = len(groups)
		groups = append(groups, SectionCases{Section: sec, Cases: []*model.Case{}})
	}

	var loose []*model.Case
	for _, c := range cases {
		if c.SectionID != nil {
			if i, ok := index[*c.SectionID]; ok {
				groups[i].Cases = append(groups[i].Cases, c)
				continue
			}
		}
		loose = append(loose, c)
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.Cases) > 0 {
			out = append(out, g)
		}
	}
	if len(loose) > 0 {
		out = append(out, SectionCases{Cases: loose})
	}
	return out, nil
}

// Search filters active cases by a case-insensitive title term and an
// optional price window.
func (s *CaseService) Search(ctx context.Context, f repository.CaseFilter) ([]*model.Case, error) {
	return s.store.Cases.ListActive(ctx, f)
}

// Detail returns an active case with its items. viewer may be nil.
func (s *CaseService) Detail(ctx context.Context, slug string, viewer *model.Profile) (*CaseDetail, error) {
	c, err := s.store.Cases.GetBySlug(ctx, slug, true)
	if err != nil {
		return nil, err
	}
	items, err := s.store.Cases.Items(ctx, c.ID, false)
	if err != nil {
		return nil, err
	}
	c.ItemCount = len(items)

	d := &CaseDetail{Case: c, Items: items}
	if viewer != nil && viewer.Balance.LessThan(c.Price) {
		need := c.Price.Sub(viewer.Balance)
		d.NeedAmount = &need
	}
	return d, nil
}

// UpgradeTargets pages through the catalog, most expensive first.
func (s *CaseService) UpgradeTargets(ctx context.Context, offset, limit int) ([]*model.Item, error) {
	offset, limit = ClampPage(offset, limit)
	return s.store.Items.ListByPriceDesc(ctx, offset, limit)
}

// ClampPage normalises upgrade target paging parameters.
func ClampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	switch {
	case limit == 0:
		limit = DefaultTargetLimit
	case limit < 1:
		limit = 1
	case limit > MaxTargetLimit:
		limit = MaxTargetLimit
	}
	return offset, limit
}
