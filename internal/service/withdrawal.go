package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"case-market/internal/config"
	"case-market/internal/market"
	"case-market/internal/model"
	"case-market/internal/pkg/lock"
	"case-market/internal/repository"
	"case-market/internal/steam"
)

// Marketplace is the part of the marketplace client withdrawals need.
type Marketplace interface {
	BuyFor(ctx context.Context, r market.BuyRequest) market.Outcome[market.BuyResult]
	BuyInfo(ctx context.Context, customID string) market.Outcome[market.BuyInfo]
	BatchBuyInfo(ctx context.Context, customIDs []string) market.Outcome[map[string]market.BuyInfo]
}

// Policy holds the reconciliation windows.
type Policy struct {
	GraceWindow     time.Duration
	FailDebounce    time.Duration
	AbsoluteTimeout time.Duration
	StaleLockAfter  time.Duration
	BatchSize       int
}

// PolicyFromConfig fills unset windows with their defaults.
func PolicyFromConfig(cfg config.WithdrawalConfig) Policy {
	p := Policy{
		GraceWindow:     cfg.GraceWindow,
		FailDebounce:    cfg.FailDebounce,
		AbsoluteTimeout: cfg.AbsoluteTimeout,
		StaleLockAfter:  cfg.StaleLockAfter,
		BatchSize:       cfg.BatchSize,
	}
	if p.GraceWindow <= 0 {
		p.GraceWindow = 300 * time.Second
	}
	if p.FailDebounce <= 0 {
		p.FailDebounce = 60 * time.Second
	}
	if p.AbsoluteTimeout <= 0 {
		p.AbsoluteTimeout = 360 * time.Second
	}
	if p.StaleLockAfter <= 0 {
		p.StaleLockAfter = 10 * time.Minute
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 100
	}
	return p
}

// Action is what one poll decides to do with a pending withdrawal.
type Action int

// Poll actions.
const (
	ActionWait Action = iota
	ActionComplete
	ActionMarkFailSeen
	ActionFail
)

func (a Action) String() string {
	switch a {
	case ActionComplete:
		return "complete"
	case ActionMarkFailSeen:
		return "mark_fail_seen"
	case ActionFail:
		return "fail"
	default:
		return "wait"
	}
}

// Decide applies the per-profile reconciliation policy to one pending
// withdrawal given the marketplace's answer. Stages 4 and 5 are left alone
// until the grace window has passed and the marketplace flags a failure;
// every other stage except 2 goes straight to the failure debounce and the
// absolute timeout, so no item stays locked indefinitely.
func Decide(w *model.Withdrawal, info market.Outcome[market.BuyInfo], now time.Time, p Policy) Action {
	if w.Status.Terminal() || !info.OK() {
		return ActionWait
	}

	age := now.Sub(w.CreatedAt)
	failed := info.Value.Failed()

	switch info.Value.Stage {
	case market.StageCompleted:
		return ActionComplete
	case market.StagePending, market.StageFailed:
		if age < p.GraceWindow || !failed {
			return ActionWait
		}
	}

	if failed {
		if w.FailSeenAt == nil {
			return ActionMarkFailSeen
		}
		if now.Sub(*w.FailSeenAt) < p.FailDebounce {
			return ActionWait
		}
	}
	if age < p.AbsoluteTimeout {
		return ActionWait
	}
	return ActionFail
}

// BatchDecide is the system-wide safety net: only stage 2 and stage 5 are
// acted upon, without windows.
func BatchDecide(info market.BuyInfo, found bool) Action {
	if !found {
		return ActionWait
	}
	switch info.Stage {
	case market.StageCompleted:
		return ActionComplete
	case market.StageFailed:
		return ActionFail
	default:
		return ActionWait
	}
}

// WithdrawResult lists accepted inventory ids and per-item errors.
type WithdrawResult struct {
	Succeeded []int64  `json:"succeeded"`
	Errors    []string `json:"errors"`
}

// PollResult is the outcome of a per-profile poll.
type PollResult struct {
	Removed  []int64       `json:"removed"`
	Returned []int64       `json:"returned"`
	Stages   map[int64]int `json:"stages"`
}

// WithdrawalService creates withdrawals and reconciles them with the
// marketplace. Database locks are held only around local state changes,
// never across a marketplace call.
type WithdrawalService struct {
	store   *repository.Store
	market  Marketplace
	locks   *lock.Keyed[int64]
	policy  Policy
	markup  decimal.Decimal
	timeout time.Duration
	now     func() time.Time
}

// NewWithdrawalService creates a new WithdrawalService instance.
func NewWithdrawalService(store *repository.Store, m Marketplace, cfg config.WithdrawalConfig) *WithdrawalService {
	markup := decimal.NewFromFloat(cfg.Markup)
	if !markup.IsPositive() {
		markup = decimal.RequireFromString("1.05")
	}
	return &WithdrawalService{
		store:   store,
		market:  m,
		locks:   lock.New[int64](),
		policy:  PolicyFromConfig(cfg),
		markup:  markup,
		timeout: 2 * time.Minute,
		now:     time.Now,
	}
}

// PriceCents converts a catalog price into the marketplace's smallest unit
// with the markup applied.
func PriceCents(price, markup decimal.Decimal) int64 {
	return price.Mul(decimal.NewFromInt(100)).Mul(markup).Round(0).IntPart()
}

// CustomID builds the correlation id of a buy request.
func CustomID(profileID, inventoryItemID int64, at time.Time) string {
	return fmt.Sprintf("%d_%d_%d", profileID, inventoryItemID, at.Unix())
}

// Create requests a trade offer for every listed inventory item. Partial
// success is normal: accepted ids and per-item errors are both returned.
// Only profile-level preconditions fail the whole request.
func (s *WithdrawalService) Create(ctx context.Context, profileID int64, inventoryIDs []int64) (*WithdrawResult, error) {
	p, err := s.store.Profiles.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if p.WithdrawBlocked {
		return nil, ErrWithdrawBlocked
	}
	tu, err := steam.ParseTradeURL(p.TradeURL)
	if err != nil {
		return nil, ErrNoTradeURL
	}

	// Once an item is reserved its purchase and bookkeeping must finish even
	// if the caller goes away; client timeouts still bound every call.
	work := context.WithoutCancel(ctx)

	res := &WithdrawResult{Succeeded: []int64{}, Errors: []string{}}
	err = s.locks.WithLockContext(ctx, profileID, s.timeout, func() error {
		for _, id := range uniqueIDs(inventoryIDs) {
			if ctx.Err() != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("item %d: request cancelled", id))
				continue
			}
			if msg := s.withdrawOne(work, p, tu, id); msg != "" {
				res.Errors = append(res.Errors, fmt.Sprintf("item %d: %s", id, msg))
				continue
			}
			res.Succeeded = append(res.Succeeded, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start withdrawal: %w", err)
	}

	log.Info().
		Int64("profile_id", profileID).
		Int("succeeded", len(res.Succeeded)).
		Int("failed", len(res.Errors)).
		Msg("Withdrawal request processed")
	return res, nil
}

var errAlreadyWithdrawing = errors.New("already being withdrawn")

// withdrawOne returns a user-facing error message, or "" on success.
func (s *WithdrawalService) withdrawOne(ctx context.Context, p *model.Profile, tu steam.TradeURL, id int64) string {
	now := s.now()

	var inv *model.InventoryItem
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		var err error
		if inv, err = r.Inventory.LockOne(ctx, p.ID, id); err != nil {
			return err
		}
		if inv.Pending {
			return errAlreadyWithdrawing
		}
		busy, err := r.Withdrawals.HasPending(ctx, id)
		if err != nil {
			return err
		}
		if busy {
			return errAlreadyWithdrawing
		}
		return r.Inventory.Reserve(ctx, id, now)
	})
	switch {
	case errors.Is(err, repository.ErrInventoryItemNotFound):
		return "not found"
	case errors.Is(err, errAlreadyWithdrawing):
		return errAlreadyWithdrawing.Error()
	case err != nil:
		log.Error().Err(err).Int64("inventory_item_id", id).Msg("Failed to reserve item for withdrawal")
		return "internal error"
	}

	req := market.BuyRequest{
		HashName:   inv.Item.HashName(),
		PriceCents: PriceCents(inv.Item.Price, s.markup),
		Partner:    tu.Partner,
		Token:      tu.Token,
		CustomID:   CustomID(p.ID, id, now),
	}
	out := s.market.BuyFor(ctx, req)
	if !out.OK() {
		if err := s.store.Inventory.Release(ctx, id); err != nil {
			log.Error().Err(err).Int64("inventory_item_id", id).Msg("Failed to release rejected withdrawal item")
		}
		log.Warn().Err(out.Err).Str("custom_id", req.CustomID).Msg("Marketplace refused withdrawal")
		if errors.Is(out.Err, market.ErrRejected) {
			return "marketplace declined the purchase"
		}
		return "marketplace unavailable, try again later"
	}

	err = s.store.InTx(ctx, func(r *repository.Repos) error {
		if _, err := r.Inventory.LockByID(ctx, id); err != nil {
			return err
		}
		_, err := r.Withdrawals.Create(ctx, &model.Withdrawal{
			ProfileID:       p.ID,
			InventoryItemID: &id,
			ItemID:          inv.ItemID,
			CustomID:        req.CustomID,
			OfferID:         out.Value.OfferID,
			PriceCents:      req.PriceCents,
			CreatedAt:       now,
		})
		return err
	})
	if err != nil {
		// The purchase is placed; the reservation stays so the item cannot be
		// spent while someone reconciles the custom id by hand.
		log.Error().Err(err).Str("custom_id", req.CustomID).Msg("Accepted withdrawal could not be recorded")
		return "internal error"
	}

	log.Info().
		Int64("profile_id", p.ID).
		Int64("inventory_item_id", id).
		Str("custom_id", req.CustomID).
		Int64("price_cents", req.PriceCents).
		Msg("Withdrawal created")
	return ""
}

// complete finalises a withdrawal. Reports whether this call moved it.
func (s *WithdrawalService) complete(ctx context.Context, w *model.Withdrawal) (bool, error) {
	var moved bool
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		var err error
		if moved, err = r.Withdrawals.MarkCompleted(ctx, w.ID); err != nil || !moved {
			return err
		}
		if w.InventoryItemID != nil {
			if err := r.Inventory.Delete(ctx, *w.InventoryItemID); err != nil {
				return err
			}
		}
		return r.Profiles.Increment(ctx, w.ProfileID, repository.CounterWithdrawals)
	})
	return moved, err
}

// fail marks a withdrawal failed and unlocks its item.
func (s *WithdrawalService) fail(ctx context.Context, w *model.Withdrawal) (bool, error) {
	var moved bool
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		var err error
		if moved, err = r.Withdrawals.MarkFailed(ctx, w.ID); err != nil || !moved {
			return err
		}
		if w.InventoryItemID != nil {
			return r.Inventory.Release(ctx, *w.InventoryItemID)
		}
		return nil
	})
	return moved, err
}

// PollForProfile reconciles one profile's pending withdrawals one by one.
func (s *WithdrawalService) PollForProfile(ctx context.Context, profileID int64) (*PollResult, error) {
	pending, err := s.store.Withdrawals.ListPendingByProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	res := &PollResult{Removed: []int64{}, Returned: []int64{}, Stages: map[int64]int{}}
	for _, w := range pending {
		info := s.market.BuyInfo(ctx, w.CustomID)
		if info.OK() && w.InventoryItemID != nil {
			res.Stages[*w.InventoryItemID] = int(info.Value.Stage)
		}

		action := Decide(w, info, s.now(), s.policy)
		if err := s.apply(ctx, w, action, res); err != nil {
			log.Warn().Err(err).Str("custom_id", w.CustomID).Str("action", action.String()).Msg("Withdrawal poll step failed")
		}
	}
	return res, nil
}

func (s *WithdrawalService) apply(ctx context.Context, w *model.Withdrawal, action Action, res *PollResult) error {
	switch action {
	case ActionComplete:
		moved, err := s.complete(ctx, w)
		if err != nil {
			return err
		}
		if moved && w.InventoryItemID != nil {
			res.Removed = append(res.Removed, *w.InventoryItemID)
		}
		if moved {
			log.Info().Str("custom_id", w.CustomID).Msg("Withdrawal completed")
		}
	case ActionFail:
		moved, err := s.fail(ctx, w)
		if err != nil {
			return err
		}
		if moved && w.InventoryItemID != nil {
			res.Returned = append(res.Returned, *w.InventoryItemID)
		}
		if moved {
			log.Warn().Str("custom_id", w.CustomID).Msg("Withdrawal failed, item returned")
		}
	case ActionMarkFailSeen:
		if _, err := s.store.Withdrawals.MarkFailSeen(ctx, w.ID, s.now()); err != nil {
			return err
		}
	}
	return nil
}

// PollWithdrawals is the scheduled safety net. It sweeps stale reservations
// and resolves every pending withdrawal whose batched status is final.
func (s *WithdrawalService) PollWithdrawals(ctx context.Context) error {
	now := s.now()

	released, err := s.store.Inventory.ReleaseStale(ctx, now.Add(-s.policy.StaleLockAfter))
	if err != nil {
		log.Warn().Err(err).Msg("Stale reservation sweep failed")
	} else if len(released) > 0 {
		log.Warn().Ints64("inventory_item_ids", released).Msg("Released stale withdrawal reservations")
	}

	pending, err := s.store.Withdrawals.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending withdrawals: %w", err)
	}

	var completed, failed, unknown int
	res := &PollResult{Stages: map[int64]int{}}
	for start := 0; start < len(pending); start += s.policy.BatchSize {
		chunk := pending[start:min(start+s.policy.BatchSize, len(pending))]

		ids := make([]string, len(chunk))
		for i, w := range chunk {
			ids[i] = w.CustomID
		}
		out := s.market.BatchBuyInfo(ctx, ids)
		if !out.OK() {
			unknown += len(chunk)
			log.Warn().Err(out.Err).Int("chunk", len(chunk)).Msg("Batch status lookup failed")
			continue
		}

		for _, w := range chunk {
			info, found := out.Value[w.CustomID]
			action := BatchDecide(info, found)
			if err := s.apply(ctx, w, action, res); err != nil {
				log.Warn().Err(err).Str("custom_id", w.CustomID).Str("action", action.String()).Msg("Withdrawal poll step failed")
				continue
			}
			switch action {
			case ActionComplete:
				completed++
			case ActionFail:
				failed++
			}
		}
	}

	log.Info().
		Int("pending", len(pending)).
		Int("completed", completed).
		Int("failed", failed).
		Int("unknown", unknown).
		Int("released", len(released)).
		Msg("Withdrawal poll finished")
	return nil
}

// ListByProfile returns the profile's withdrawal history, newest first.
func (s *WithdrawalService) ListByProfile(ctx context.Context, profileID int64, limit int) ([]*model.Withdrawal, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.Withdrawals.ListByProfile(ctx, profileID, limit)
}
