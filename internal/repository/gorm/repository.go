package gormrepository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/repository"
)

var activeProposalStatuses = []models.ProposalStatus{models.ProposalPending, models.ProposalAccepted}

type Store struct {
	db *gorm.DB
}

var _ repository.Repository = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- matching core -----------------------------------------------------------

func (s *Store) LoadActiveIntents(ctx context.Context, currency string) ([]models.ProviderIntent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.ProviderIntent
	if err := s.db.WithContext(ctx).
		Model(&models.ProviderIntent{}).
		Where("currency = ?", currency).
		Where("is_active = ?", true).
		Order("provider asc").
		Find(&items).Error; err != nil {
		return nil, wrapErr(err)
	}
	return items, nil
}

func (s *Store) LoadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if s == nil || s.db == nil {
		return nil, repository.ErrNotFound
	}
	var item models.Order
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&item).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &item, nil
}

// AtomicallyReserve moves amount from available to reserved with one
// conditional update, so concurrent reservations cannot overdraw the intent.
func (s *Store) AtomicallyReserve(ctx context.Context, provider, currency string, amount decimal.Decimal) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	if !amount.IsPositive() {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.ProviderIntent{}).
		Where("provider = ? AND currency = ?", provider, currency).
		Where("available_amount >= ?", amount).
		Updates(map[string]any{
			"available_amount": gorm.Expr("available_amount - ?", amount),
			"reserved_amount":  gorm.Expr("reserved_amount + ?", amount),
		})
	if res.Error != nil {
		return false, wrapErr(res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.ProviderIntent{}).
		Where("provider = ? AND currency = ?", provider, currency).
		Count(&count).Error; err != nil {
		return false, wrapErr(err)
	}
	if count == 0 {
		return false, repository.ErrNotFound
	}
	return false, nil
}

// Persist writes a changeset in one transaction. Rows are touched in the
// order proposal, order, intent, reputation.
func (s *Store) Persist(ctx context.Context, cs repository.Changeset) error {
	if s == nil || s.db == nil || cs.Empty() {
		return nil
	}
	return wrapErr(s.InTx(ctx, func(tx *gorm.DB) error {
		if err := persistProposal(tx, cs); err != nil {
			return err
		}
		if err := persistOrder(tx, cs); err != nil {
			return err
		}
		if err := persistCapacity(tx, cs.Capacity); err != nil {
			return err
		}
		if err := persistReputation(tx, cs); err != nil {
			return err
		}
		if len(cs.Events) > 0 {
			return createInBatches(tx, cs.Events, 100)
		}
		return nil
	}))
}

func persistProposal(tx *gorm.DB, cs repository.Changeset) error {
	p := cs.Proposal
	if p == nil {
		return nil
	}
	if cs.ExpectProposal == "" {
		var active int64
		if err := tx.Model(&models.Proposal{}).
			Where("order_id = ?", p.OrderID).
			Where("status IN ?", activeProposalStatuses).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return repository.ErrConflict
		}
		return tx.Create(p).Error
	}
	res := tx.Model(&models.Proposal{}).
		Where("proposal_id = ? AND status = ?", p.ProposalID, cs.ExpectProposal).
		Updates(map[string]any{
			"status":         p.Status,
			"accepted_at":    p.AcceptedAt,
			"executed_at":    p.ExecutedAt,
			"settlement_ref": p.SettlementRef,
			"failure_reason": p.FailureReason,
			"updated_at":     p.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return missingOrConflict(tx, &models.Proposal{}, "proposal_id = ?", p.ProposalID)
	}
	return nil
}

func persistOrder(tx *gorm.DB, cs repository.Changeset) error {
	o := cs.Order
	if o == nil {
		return nil
	}
	query := tx.Model(&models.Order{}).
		Where("order_id = ? AND status = ?", o.OrderID, cs.ExpectOrder)
	if cs.RequireNoActiveProposal {
		query = query.Where(
			"NOT EXISTS (SELECT 1 FROM proposals WHERE proposals.order_id = orders.order_id AND proposals.status IN ?)",
			activeProposalStatuses,
		)
	}
	res := query.Updates(map[string]any{
		"status":         o.Status,
		"refund_tx_hash": o.RefundTxHash,
		"updated_at":     o.UpdatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return missingOrConflict(tx, &models.Order{}, "order_id = ?", o.OrderID)
	}
	return nil
}

func persistCapacity(tx *gorm.DB, change *repository.CapacityChange) error {
	if change == nil {
		return nil
	}
	query := tx.Model(&models.ProviderIntent{}).
		Where("provider = ? AND currency = ?", change.Key.Provider, change.Key.Currency)
	var updates map[string]any
	switch change.Move {
	case repository.CapacityReserve:
		query = query.Where("available_amount >= ?", change.Amount)
		updates = map[string]any{
			"available_amount": gorm.Expr("available_amount - ?", change.Amount),
			"reserved_amount":  gorm.Expr("reserved_amount + ?", change.Amount),
		}
	case repository.CapacityRelease:
		query = query.Where("reserved_amount >= ?", change.Amount)
		updates = map[string]any{
			"available_amount": gorm.Expr("available_amount + ?", change.Amount),
			"reserved_amount":  gorm.Expr("reserved_amount - ?", change.Amount),
		}
	default:
		query = query.Where("reserved_amount >= ?", change.Amount)
		updates = map[string]any{
			"reserved_amount": gorm.Expr("reserved_amount - ?", change.Amount),
		}
	}
	res := query.Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	err := missingOrConflict(tx, &models.ProviderIntent{}, "provider = ? AND currency = ?", change.Key.Provider, change.Key.Currency)
	if errors.Is(err, repository.ErrConflict) && change.Move == repository.CapacityReserve {
		return repository.ErrInsufficientCapacity
	}
	return err
}

func persistReputation(tx *gorm.DB, cs repository.Changeset) error {
	u := cs.Reputation
	if u == nil {
		return nil
	}
	fresh := models.NewProviderReputation(u.Provider, u.At)
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
		return err
	}
	var rec models.ProviderReputation
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider = ?", u.Provider).
		First(&rec).Error; err != nil {
		return err
	}
	u.Apply(&rec)
	return tx.Save(&rec).Error
}

func missingOrConflict(tx *gorm.DB, model any, query string, args ...any) error {
	var count int64
	if err := tx.Model(model).Where(query, args...).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

// --- orders --------------------------------------------------------------------

var orderColumns = map[string]struct{}{
	"created_at": {}, "expires_at": {}, "amount": {}, "status": {}, "updated_at": {},
}

func (s *Store) InsertOrder(ctx context.Context, item *models.Order, events ...models.DomainEvent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return wrapErr(s.InTx(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Order{}).Where("order_id = ?", item.OrderID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return repository.ErrDuplicate
		}
		if err := tx.Create(item).Error; err != nil {
			return err
		}
		return createInBatches(tx, events, 100)
	}))
}

func (s *Store) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.Order, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.ordersQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at", orderColumns)
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Order
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, wrapErr(err)
	}
	return items, nil
}

func (s *Store) CountOrders(ctx context.Context, params repository.ListOrdersParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.ordersQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, wrapErr(err)
	}
	return total, nil
}

func (s *Store) ordersQuery(ctx context.Context, params repository.ListOrdersParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Order{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.ToUpper(strings.TrimSpace(*params.Status)))
	}
	if params.Currency != nil && strings.TrimSpace(*params.Currency) != "" {
		query = query.Where("currency = ?", strings.TrimSpace(*params.Currency))
	}
	return query
}

func (s *Store) ListExpirableOrders(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Order
	if err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status IN ?", []models.OrderStatus{models.OrderPending, models.OrderAccepted}).
		Where("expires_at < ?", before).
		Order("expires_at asc").
		Limit(normalizeLimit(limit, 200)).
		Find(&items).Error; err != nil {
		return nil, wrapErr(err)
	}
	return items, nil
}

func (s *Store) ListOpenOrders(ctx context.Context, limit int) ([]models.Order, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Order
	if err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ?", models.OrderPending).
		Order("created_at asc").
		Limit(normalizeLimit(limit, 200)).
		Find(&items).Error; err != nil {
		return nil, wrapErr(err)
	}
	return items, nil
}

// --- intents -------------------------------------------------------------------

var intentColumns = map[string]struct{}{
	"provider": {}, "currency": {}, "available_amount": {}, "min_fee_bps": {}, "expires_at": {}, "updated_at": {},
}

// UpsertIntent replaces the declared terms; reserved_amount and
// registered_at survive an update.
func (s *Store) UpsertIntent(ctx context.Context, item *models.ProviderIntent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Provider) == "" || strings.TrimSpace(item.Currency) == "" {
		return nil
	}
	return wrapErr(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}, {Name: "currency"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"available_amount",
			"min_fee_bps",
			"max_fee_bps",
			"commitment_window_seconds",
			"is_active",
			"expires_at",
			"updated_at",
		}),
	}).Create(item).Error)
}

func (s *Store) GetIntent(ctx context.Context, provider, currency string) (*models.ProviderIntent, error) {
	if s == nil || s.db == nil {
		return nil, repository.ErrNotFound
	}
	var item models.ProviderIntent
	if err := s.db.WithContext(ctx).
		Where("provider = ? AND currency = ?", provider, currency).
		First(&item).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &item, nil
}

func (s *Store) ListIntents(ctx context.Context, params repository.ListIntentsParams) ([]models.ProviderIntent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.ProviderIntent{})
	if params.Currency != nil && strings.TrimSpace(*params.Currency) != "" {
		query = query.Where("currency = ?", strings.TrimSpace(*params.Currency))
	}
	if params.Provider != nil && strings.TrimSpace(*params.Provider) != "" {
		query = query.Where("provider = ?", strings.TrimSpace(*params.Provider))
	}
	if params.Active != nil {
		query = query.Where("is_active = ?", *params.Active)
	}
	asc := params.Asc
	if asc == nil {
		asc = boolPtr(true)
	}
	query = applyOrder(query, params.OrderBy, asc, "provider", intentColumns)
	var items []models.ProviderIntent
	if err := query.
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, wrapErr(err)
	}
	return items, nil
}

// --- proposals -----------------------------------------------------------------

func (s *Store) GetProposal(ctx context.Context, proposalID string) (*models.Proposal, error) {
	if s == nil || s.db == nil {
		return nil, repository.ErrNotFound
	}
	var item models.Proposal
	if err := s.db.WithContext(ctx).Where("proposal_id = ?", proposalID).First(&item).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &item, nil
}

func (s *Store) ListProposalsByOrder(ctx context.Context, orderID string) ([]models.Proposal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Proposal
	if err := s.db.WithContext(ctx).
		Model(&models.Proposal{}).
		Where("order_id = ?", orderID).
		Order("created_at asc").
		Find(&items).Error; err != nil {
		return nil, wrapErr(err)
	}
	return items, nil
}

func (s *Store) ListPendingProposalsBefore(ctx context.Context, before time.Time, limit int) ([]models.Proposal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Proposal
	if err := s.db.WithContext(ctx).
		Model(&models.Proposal{}).
		Where("status = ?", models.ProposalPending).
		Where("deadline < ?", before).
		Order("deadline asc").
		Limit(normalizeLimit(limit, 200)).
		Find(&items).Error; err != nil {
		return nil, wrapErr(err)
	}
	return items, nil
}

func (s *Store) ListAcceptedProposals(ctx context.Context, limit int) ([]models.Proposal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Proposal
	if err := s.db.WithContext(ctx).
		Model(&models.Proposal{}).
		Where("status = ?", models.ProposalAccepted).
		Order("created_at asc").
		Limit(normalizeLimit(limit, 200)).
		Find(&items).Error; err != nil {
		return nil, wrapErr(err)
	}
	return items, nil
}

func (s *Store) CountActiveProposalsByProvider(ctx context.Context, providers []string) (map[string]int, error) {
	out := map[string]int{}
	providers = cleanStrings(providers)
	if s == nil || s.db == nil || len(providers) == 0 {
		return out, nil
	}
	var rows []struct {
		Provider string
		N        int
	}
	if err := s.db.WithContext(ctx).
		Model(&models.Proposal{}).
		Select("provider, count(*) as n").
		Where("provider IN ?", providers).
		Where("status IN ?", activeProposalStatuses).
		Group("provider").
		Scan(&rows).Error; err != nil {
		return nil, wrapErr(err)
	}
	for _, row := range rows {
		out[row.Provider] = row.N
	}
	return out, nil
}

// --- reputation ----------------------------------------------------------------

var reputationColumns = map[string]struct{}{
	"provider": {}, "total_orders": {}, "successful_orders": {}, "no_shows": {}, "total_volume": {}, "last_updated": {},
}

func (s *Store) GetReputation(ctx context.Context, provider string) (*models.ProviderReputation, error) {
	if s == nil || s.db == nil {
		return nil, repository.ErrNotFound
	}
	var item models.ProviderReputation
	if err := s.db.WithContext(ctx).Where("provider = ?", provider).First(&item).Error; err != nil {
		return nil, wrapErr(err)
	}
	return &item, nil
}

func (s *Store) ListReputations(ctx context.Context, params repository.ListReputationsParams) ([]models.ProviderReputation, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.ProviderReputation{})
	if providers := cleanStrings(params.Providers); len(providers) > 0 {
		query = query.Where("provider IN ?", providers)
	}
	asc := params.Asc
	if asc == nil {
		asc = boolPtr(true)
	}
	query = applyOrder(query, params.OrderBy, asc, "provider", reputationColumns)
	var items []models.ProviderReputation
	if err := query.
		Limit(normalizeLimit(params.Limit, 500)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, wrapErr(err)
	}
	return items, nil
}

// --- outbox --------------------------------------------------------------------

func (s *Store) ListEvents(ctx context.Context, params repository.ListEventsParams) ([]models.DomainEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.DomainEvent{})
	if params.Type != nil && strings.TrimSpace(*params.Type) != "" {
		query = query.Where("type = ?", strings.TrimSpace(*params.Type))
	}
	if params.OrderID != nil && strings.TrimSpace(*params.OrderID) != "" {
		query = query.Where("order_id = ?", strings.TrimSpace(*params.OrderID))
	}
	if params.Provider != nil && strings.TrimSpace(*params.Provider) != "" {
		query = query.Where("provider = ?", strings.TrimSpace(*params.Provider))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	query = applyOrder(query, "", params.Asc, "created_at", nil)
	var items []models.DomainEvent
	if err := query.
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, wrapErr(err)
	}
	return items, nil
}

// --- system settings -----------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return wrapErr(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error)
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		pattern := strings.TrimSpace(*params.Prefix) + "%"
		query = query.Where("key LIKE ?", pattern)
	}
	asc := params.Asc
	if asc == nil {
		asc = boolPtr(true)
	}
	query = applyOrder(query, params.OrderBy, asc, "key", map[string]struct{}{"key": {}, "updated_at": {}})
	limit := normalizeLimit(params.Limit, 500)
	offset := normalizeOffset(params.Offset)
	var items []models.SystemSetting
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, wrapErr(err)
	}
	return items, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return repository.ErrStorageUnavailable
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return wrapErr(err)
	}
	return wrapErr(sqlDB.PingContext(ctx))
}

// --- helpers -------------------------------------------------------------------

// wrapErr maps driver errors onto the repository sentinels. Anything not
// recognised is treated as the storage being unavailable.
func wrapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrDuplicate),
		errors.Is(err, repository.ErrConflict),
		errors.Is(err, repository.ErrInsufficientCapacity),
		errors.Is(err, repository.ErrStorageUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return repository.ErrDuplicate
	default:
		return fmt.Errorf("%w: %v", repository.ErrStorageUnavailable, err)
	}
}

// applyOrder only accepts columns from allowed; an empty or unknown column
// falls back.
func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string, allowed map[string]struct{}) *gorm.DB {
	column := strings.ToLower(strings.TrimSpace(orderBy))
	if _, ok := allowed[column]; !ok {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func createInBatches[T any](db *gorm.DB, items []T, batchSize int) error {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		if err := db.CreateInBatches(items[i:end], batchSize).Error; err != nil {
			return err
		}
	}
	return nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}

func boolPtr(v bool) *bool {
	return &v
}
