package businessflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/repository"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// memClickLogRepo is an in-memory ClickLogRepository with the store's uniqueness rules
type memClickLogRepo struct {
	mu      sync.Mutex
	rows    map[uint]*models.ClickLog
	nextID  uint
	saveErr error
}

func newMemClickLogRepo() *memClickLogRepo {
	return &memClickLogRepo{rows: make(map[uint]*models.ClickLog)}
}

func (r *memClickLogRepo) seed(rows ...*models.ClickLog) {
	for _, row := range rows {
		if err := r.Save(context.Background(), row); err != nil {
			panic(err)
		}
	}
}

func (r *memClickLogRepo) snapshot() []models.ClickLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ClickLog, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memClickLogRepo) sorted(keep func(*models.ClickLog) bool, desc bool) []*models.ClickLog {
	out := make([]*models.ClickLog, 0)
	for _, row := range r.rows {
		if keep(row) {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			if desc {
				return out[i].CreatedAt.After(out[j].CreatedAt)
			}
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if desc {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *memClickLogRepo) orderTaken(orderID *string, except uint) bool {
	if orderID == nil {
		return false
	}
	for id, row := range r.rows {
		if id != except && row.OrderID != nil && *row.OrderID == *orderID {
			return true
		}
	}
	return false
}

func (r *memClickLogRepo) ByID(_ context.Context, id uint) (*models.ClickLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (r *memClickLogRepo) ByFilter(_ context.Context, f models.ClickLogFilter, _ string, limit, _ int) ([]*models.ClickLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sorted(func(row *models.ClickLog) bool {
		if f.CustomerRef != nil && row.CustomerRef != *f.CustomerRef {
			return false
		}
		if f.Converted != nil && row.Converted != *f.Converted {
			return false
		}
		return true
	}, false)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memClickLogRepo) Save(_ context.Context, row *models.ClickLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	for _, existing := range r.rows {
		if existing.UID == row.UID {
			return fmt.Errorf("insert: %w", repository.ErrDuplicateKey)
		}
	}
	if r.orderTaken(row.OrderID, 0) {
		return fmt.Errorf("insert: %w", repository.ErrDuplicateKey)
	}
	r.nextID++
	row.ID = r.nextID
	cp := *row
	r.rows[row.ID] = &cp
	return nil
}

func (r *memClickLogRepo) ByUID(_ context.Context, uid string) (*models.ClickLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UID == uid {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memClickLogRepo) MarkClicked(_ context.Context, uid string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UID != uid {
			continue
		}
		if row.ClickedAt != nil {
			return false, nil
		}
		at = at.UTC()
		if at.Before(row.CreatedAt) {
			at = row.CreatedAt
		}
		row.ClickedAt = &at
		return true, nil
	}
	return false, nil
}

func (r *memClickLogRepo) Attribute(_ context.Context, id uint, a models.Attribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Converted {
		return repository.ErrAlreadyConverted
	}
	if r.orderTaken(a.Data.OrderID, id) {
		return fmt.Errorf("update: %w", repository.ErrDuplicateKey)
	}
	row.ApplyAttribution(a)
	return nil
}

func (r *memClickLogRepo) AttributedOrderIDs(_ context.Context, ids []string) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool)
	for _, id := range ids {
		for _, row := range r.rows {
			if row.OrderID != nil && *row.OrderID == id {
				out[id] = true
			}
		}
	}
	return out, nil
}

func (r *memClickLogRepo) ListUnconvertedBetween(_ context.Context, from, to time.Time) ([]*models.ClickLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(row *models.ClickLog) bool {
		return !row.Converted && !row.CreatedAt.Before(from) && !row.CreatedAt.After(to)
	}, true), nil
}

func (r *memClickLogRepo) ListCreatedBetween(_ context.Context, from, to time.Time) ([]*models.ClickLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(row *models.ClickLog) bool {
		return !row.CreatedAt.Before(from) && row.CreatedAt.Before(to)
	}, false), nil
}

func (r *memClickLogRepo) ListConvertedBetween(_ context.Context, from, to time.Time) ([]*models.ClickLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(row *models.ClickLog) bool {
		return row.Converted && !row.CreatedAt.Before(from) && row.CreatedAt.Before(to)
	}, true), nil
}

func (r *memClickLogRepo) ListActiveBetween(_ context.Context, from, to time.Time) ([]*models.ClickLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := func(t *time.Time) bool { return t != nil && !t.Before(from) && t.Before(to) }
	return r.sorted(func(row *models.ClickLog) bool {
		created := row.CreatedAt
		return in(&created) || in(row.ClickedAt) || in(row.ConvertedAt)
	}, false), nil
}

func (r *memClickLogRepo) ListRecentConversions(_ context.Context, limit int) ([]*models.ClickLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sorted(func(row *models.ClickLog) bool { return row.Converted }, true)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ConvertedAt.After(*out[j].ConvertedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memClickLogRepo) CustomerRefsByBuyer(_ context.Context, nicknames []string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string)
	latest := make(map[string]time.Time)
	for _, nick := range nicknames {
		for _, row := range r.rows {
			if !row.Converted || row.IsOrphan || row.BuyerNickname == nil || *row.BuyerNickname != nick {
				continue
			}
			if t, ok := latest[nick]; !ok || row.ConvertedAt.After(t) {
				latest[nick] = *row.ConvertedAt
				out[nick] = row.CustomerRef
			}
		}
	}
	return out, nil
}

func (r *memClickLogRepo) ShippingCitiesByCustomer(_ context.Context, refs []string) (map[string][]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]string)
	for _, ref := range refs {
		for _, row := range r.rows {
			if row.Converted && !row.IsOrphan && row.CustomerRef == ref && row.ShippingCity != nil {
				out[ref] = append(out[ref], *row.ShippingCity)
			}
		}
	}
	return out, nil
}

// inlineTx runs fn on the caller's context. commitErr fails the commit after fn succeeds.
type inlineTx struct {
	mu        sync.Mutex
	calls     int
	commitErr error
}

func (tx *inlineTx) run(ctx context.Context, fn func(context.Context) error) error {
	tx.mu.Lock()
	tx.calls++
	tx.mu.Unlock()
	if err := fn(ctx); err != nil {
		return err
	}
	return tx.commitErr
}

// memRunRepo records correlation runs
type memRunRepo struct {
	mu   sync.Mutex
	runs []*models.CorrelationRun
}

func (r *memRunRepo) ByID(context.Context, uint) (*models.CorrelationRun, error) { return nil, nil }
func (r *memRunRepo) ByFilter(context.Context, models.CorrelationRunFilter, string, int, int) ([]*models.CorrelationRun, error) {
	return r.runs, nil
}
func (r *memRunRepo) Save(_ context.Context, run *models.CorrelationRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.ID = uint(len(r.runs) + 1)
	r.runs = append(r.runs, run)
	return nil
}
func (r *memRunRepo) Update(context.Context, *models.CorrelationRun) error { return nil }
func (r *memRunRepo) ListRecent(_ context.Context, sellerID string, limit int) ([]*models.CorrelationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.CorrelationRun, 0)
	for i := len(r.runs) - 1; i >= 0; i-- {
		if sellerID == "" || r.runs[i].SellerID == sellerID {
			out = append(out, r.runs[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// stubOrders serves a fixed order feed
type stubOrders struct {
	orders []models.MarketplaceOrder
	err    error
	calls  int
	limits []int
}

func (s *stubOrders) RecentOrders(_ context.Context, _ string, limit int) ([]models.MarketplaceOrder, error) {
	s.calls++
	s.limits = append(s.limits, limit)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.MarketplaceOrder, len(s.orders))
	copy(out, s.orders)
	return out, nil
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []dto.ConversionEvent
	err    error
}

func (p *recordingPublisher) PublishConversion(_ context.Context, e dto.ConversionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

var errFeedDown = errors.New("feed down")

func testLogger() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

func seqUID() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("uid%06d", n)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func strPtr(s string) *string { return &s }
