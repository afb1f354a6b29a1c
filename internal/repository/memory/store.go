// Package memoryrepository is an in-process Repository used by tests and by
// the "memory" database driver.
package memoryrepository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository"
)

// slot holds one intent. Slots are never replaced once created, so a pointer
// taken under the store lock stays valid; capacity moves under slot.mu.
type slot struct {
	mu     sync.Mutex
	intent models.ProviderIntent
}

// Store locks in a fixed order: s.mu, then a slot's mu.
type Store struct {
	mu          sync.RWMutex
	orders      map[string]models.Order
	proposals   map[string]models.Proposal
	byOrder     map[string][]string
	slots       map[models.IntentKey]*slot
	reputations map[string]models.ProviderReputation
	events      []models.DomainEvent
	settings    map[string]models.SystemSetting
}

var _ repository.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		orders:      map[string]models.Order{},
		proposals:   map[string]models.Proposal{},
		byOrder:     map[string][]string{},
		slots:       map[models.IntentKey]*slot{},
		reputations: map[string]models.ProviderReputation{},
		settings:    map[string]models.SystemSetting{},
	}
}

func (s *Store) LoadActiveIntents(ctx context.Context, currency string) ([]models.ProviderIntent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ProviderIntent, 0)
	for key, sl := range s.slots {
		if key.Currency != currency {
			continue
		}
		sl.mu.Lock()
		item := sl.intent
		sl.mu.Unlock()
		if item.IsActive {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (s *Store) LoadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.orders[orderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &item, nil
}

func (s *Store) AtomicallyReserve(ctx context.Context, provider, currency string, amount decimal.Decimal) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !amount.IsPositive() {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[models.IntentKey{Provider: provider, Currency: currency}]
	if !ok {
		return false, repository.ErrNotFound
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.intent.AvailableAmount.LessThan(amount) {
		return false, nil
	}
	sl.intent.AvailableAmount = sl.intent.AvailableAmount.Sub(amount)
	sl.intent.ReservedAmount = sl.intent.ReservedAmount.Add(amount)
	return true, nil
}

func (s *Store) Persist(ctx context.Context, cs repository.Changeset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if p := cs.Proposal; p != nil {
		cur, ok := s.proposals[p.ProposalID]
		if cs.ExpectProposal == "" {
			if ok {
				return repository.ErrDuplicate
			}
			if s.hasActiveProposalLocked(p.OrderID) {
				return repository.ErrConflict
			}
		} else {
			if !ok {
				return repository.ErrNotFound
			}
			if cur.Status != cs.ExpectProposal {
				return repository.ErrConflict
			}
		}
	}
	if o := cs.Order; o != nil {
		cur, ok := s.orders[o.OrderID]
		if !ok {
			return repository.ErrNotFound
		}
		if cur.Status != cs.ExpectOrder {
			return repository.ErrConflict
		}
		if cs.RequireNoActiveProposal && s.hasActiveProposalLocked(o.OrderID) {
			return repository.ErrConflict
		}
	}
	var sl *slot
	if c := cs.Capacity; c != nil {
		var ok bool
		sl, ok = s.slots[c.Key]
		if !ok {
			return repository.ErrNotFound
		}
		sl.mu.Lock()
		defer sl.mu.Unlock()
		if c.Move == repository.CapacityReserve {
			if sl.intent.AvailableAmount.LessThan(c.Amount) {
				return repository.ErrInsufficientCapacity
			}
		} else if sl.intent.ReservedAmount.LessThan(c.Amount) {
			return repository.ErrConflict
		}
	}

	if p := cs.Proposal; p != nil {
		if cs.ExpectProposal == "" {
			s.byOrder[p.OrderID] = append(s.byOrder[p.OrderID], p.ProposalID)
		}
		s.proposals[p.ProposalID] = *p
	}
	if o := cs.Order; o != nil {
		s.orders[o.OrderID] = *o
	}
	if c := cs.Capacity; c != nil {
		switch c.Move {
		case repository.CapacityReserve:
			sl.intent.AvailableAmount = sl.intent.AvailableAmount.Sub(c.Amount)
			sl.intent.ReservedAmount = sl.intent.ReservedAmount.Add(c.Amount)
		case repository.CapacityRelease:
			sl.intent.ReservedAmount = sl.intent.ReservedAmount.Sub(c.Amount)
			sl.intent.AvailableAmount = sl.intent.AvailableAmount.Add(c.Amount)
		default:
			sl.intent.ReservedAmount = sl.intent.ReservedAmount.Sub(c.Amount)
		}
	}
	if u := cs.Reputation; u != nil {
		rec, ok := s.reputations[u.Provider]
		if !ok {
			rec = models.NewProviderReputation(u.Provider, u.At)
		}
		u.Apply(&rec)
		s.reputations[u.Provider] = rec
	}
	s.events = append(s.events, cs.Events...)
	return nil
}

func (s *Store) hasActiveProposalLocked(orderID string) bool {
	for _, id := range s.byOrder[orderID] {
		if s.proposals[id].Status.Active() {
			return true
		}
	}
	return false
}

func (s *Store) InsertOrder(ctx context.Context, item *models.Order, events ...models.DomainEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[item.OrderID]; ok {
		return repository.ErrDuplicate
	}
	s.orders[item.OrderID] = *item
	s.events = append(s.events, events...)
	return nil
}

func (s *Store) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items := s.filterOrders(params)
	asc := params.Asc != nil && *params.Asc
	sort.SliceStable(items, func(i, j int) bool {
		if asc {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return page(items, params.Limit, params.Offset, 200), nil
}

func (s *Store) CountOrders(ctx context.Context, params repository.ListOrdersParams) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return int64(len(s.filterOrders(params))), nil
}

func (s *Store) filterOrders(params repository.ListOrdersParams) []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, 0, len(s.orders))
	for _, item := range s.orders {
		if params.Status != nil && strings.TrimSpace(*params.Status) != "" && string(item.Status) != strings.TrimSpace(*params.Status) {
			continue
		}
		if params.Currency != nil && strings.TrimSpace(*params.Currency) != "" && item.Currency != strings.TrimSpace(*params.Currency) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (s *Store) ListExpirableOrders(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]models.Order, 0)
	for _, item := range s.orders {
		if item.Status.Open() && item.ExpiresAt.Before(before) {
			out = append(out, item)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return page(out, limit, 0, 200), nil
}

func (s *Store) ListOpenOrders(ctx context.Context, limit int) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]models.Order, 0)
	for _, item := range s.orders {
		if item.Status == models.OrderPending {
			out = append(out, item)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, 0, 200), nil
}

// UpsertIntent replaces the declared terms of an intent. Reserved capacity
// belongs to live proposals and is carried over.
func (s *Store) UpsertIntent(ctx context.Context, item *models.ProviderIntent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := item.Key()
	sl, ok := s.slots[key]
	if !ok {
		if item.ReservedAmount.IsZero() {
			item.ReservedAmount = decimal.Zero
		}
		s.slots[key] = &slot{intent: *item}
		return nil
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	item.ReservedAmount = sl.intent.ReservedAmount
	item.RegisteredAt = sl.intent.RegisteredAt
	sl.intent = *item
	return nil
}

func (s *Store) GetIntent(ctx context.Context, provider, currency string) (*models.ProviderIntent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[models.IntentKey{Provider: provider, Currency: currency}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	sl.mu.Lock()
	item := sl.intent
	sl.mu.Unlock()
	return &item, nil
}

func (s *Store) ListIntents(ctx context.Context, params repository.ListIntentsParams) ([]models.ProviderIntent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]models.ProviderIntent, 0, len(s.slots))
	for key, sl := range s.slots {
		if params.Currency != nil && strings.TrimSpace(*params.Currency) != "" && key.Currency != strings.TrimSpace(*params.Currency) {
			continue
		}
		if params.Provider != nil && strings.TrimSpace(*params.Provider) != "" && key.Provider != strings.TrimSpace(*params.Provider) {
			continue
		}
		sl.mu.Lock()
		item := sl.intent
		sl.mu.Unlock()
		if params.Active != nil && item.IsActive != *params.Active {
			continue
		}
		out = append(out, item)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Currency < out[j].Currency
	})
	return page(out, params.Limit, params.Offset, 200), nil
}

func (s *Store) GetProposal(ctx context.Context, proposalID string) (*models.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.proposals[proposalID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &item, nil
}

func (s *Store) ListProposalsByOrder(ctx context.Context, orderID string) ([]models.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byOrder[orderID]
	out := make([]models.Proposal, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.proposals[id])
	}
	return out, nil
}

func (s *Store) ListPendingProposalsBefore(ctx context.Context, before time.Time, limit int) ([]models.Proposal, error) {
	return s.listProposals(ctx, limit, func(p models.Proposal) bool {
		return p.Status == models.ProposalPending && p.Deadline.Before(before)
	}, func(a, b models.Proposal) bool { return a.Deadline.Before(b.Deadline) })
}

func (s *Store) ListAcceptedProposals(ctx context.Context, limit int) ([]models.Proposal, error) {
	return s.listProposals(ctx, limit, func(p models.Proposal) bool {
		return p.Status == models.ProposalAccepted
	}, func(a, b models.Proposal) bool { return a.CreatedAt.Before(b.CreatedAt) })
}

func (s *Store) listProposals(ctx context.Context, limit int, keep func(models.Proposal) bool, less func(a, b models.Proposal) bool) ([]models.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]models.Proposal, 0)
	for _, item := range s.proposals {
		if keep(item) {
			out = append(out, item)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return page(out, limit, 0, 200), nil
}

func (s *Store) CountActiveProposalsByProvider(ctx context.Context, providers []string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(providers))
	for _, p := range providers {
		want[p] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(providers))
	for _, item := range s.proposals {
		if _, ok := want[item.Provider]; ok && item.Status.Active() {
			out[item.Provider]++
		}
	}
	return out, nil
}

func (s *Store) GetReputation(ctx context.Context, provider string) (*models.ProviderReputation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.reputations[provider]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &item, nil
}

func (s *Store) ListReputations(ctx context.Context, params repository.ListReputationsParams) ([]models.ProviderReputation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var want map[string]struct{}
	if len(params.Providers) > 0 {
		want = make(map[string]struct{}, len(params.Providers))
		for _, p := range params.Providers {
			want[p] = struct{}{}
		}
	}
	s.mu.RLock()
	out := make([]models.ProviderReputation, 0, len(s.reputations))
	for _, item := range s.reputations {
		if want != nil {
			if _, ok := want[item.Provider]; !ok {
				continue
			}
		}
		out = append(out, item)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return page(out, params.Limit, params.Offset, 500), nil
}

func (s *Store) ListEvents(ctx context.Context, params repository.ListEventsParams) ([]models.DomainEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]models.DomainEvent, 0, len(s.events))
	for _, item := range s.events {
		if params.Type != nil && *params.Type != "" && item.Type != *params.Type {
			continue
		}
		if params.OrderID != nil && *params.OrderID != "" && item.OrderID != *params.OrderID {
			continue
		}
		if params.Provider != nil && *params.Provider != "" && item.Provider != *params.Provider {
			continue
		}
		if params.Since != nil && item.CreatedAt.Before(*params.Since) {
			continue
		}
		out = append(out, item)
	}
	s.mu.RUnlock()
	if params.Asc == nil || !*params.Asc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return page(out, params.Limit, params.Offset, 200), nil
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[item.Key] = *item
	return nil
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.settings[strings.TrimSpace(key)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]models.SystemSetting, 0, len(s.settings))
	for key, item := range s.settings {
		if params.Prefix != nil && !strings.HasPrefix(key, strings.TrimSpace(*params.Prefix)) {
			continue
		}
		out = append(out, item)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return page(out, params.Limit, params.Offset, 500), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func page[T any](items []T, limit, offset, fallback int) []T {
	if limit <= 0 {
		limit = fallback
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
