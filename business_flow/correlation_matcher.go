package businessflow

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/amirphl/orochi-attribution/models"
	"golang.org/x/sync/errgroup"
)

// MatcherConfig tunes the tiered matcher
type MatcherConfig struct {
	Window              time.Duration
	SimilarityThreshold float64
	CityCorroboration   bool
	RequireCityMatch    bool
	RecordOrphans       bool
	Workers             int

	// TimeMatchUnknownBuyer opens the time tier to every in-window candidate when the buyer is unknown
	TimeMatchUnknownBuyer bool
}

// MatchInput is everything the matcher reads. It never touches the store.
type MatchInput struct {
	Orders []models.MarketplaceOrder
	// Candidates are unconverted click logs that may fall inside some order's window
	Candidates []*models.ClickLog
	// BuyerCustomers maps buyer nicknames to the customer their past orders were credited to
	BuyerCustomers map[string]string
	// CustomerCities lists the shipping cities previously seen per customer
	CustomerCities map[string][]string
}

// Match pairs an order with the click log it is credited to. ClickLog is nil for orphans.
type Match struct {
	Order    models.MarketplaceOrder
	ClickLog *models.ClickLog
	Method   models.CorrelationMethod
	Score    float64
}

type scoredCandidate struct {
	log   *models.ClickLog
	score float64
}

type rankedOrder struct {
	order    models.MarketplaceOrder
	window   []scoredCandidate
	item     []scoredCandidate
	enhanced []scoredCandidate
	timePool []scoredCandidate
}

// CorrelationMatcher assigns orders to click logs tier by tier: item id, text, time, orphan
type CorrelationMatcher struct {
	cfg MatcherConfig
	sim TextSimilarity
}

func NewCorrelationMatcher(cfg MatcherConfig, sim TextSimilarity) *CorrelationMatcher {
	if sim == nil {
		sim = TokenOverlapSimilarity{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &CorrelationMatcher{cfg: cfg, sim: sim}
}

// Match ranks candidates for every order in parallel, then assigns them oldest order first so
// each click log is claimed at most once. Orders with no match are left out of the result.
func (m *CorrelationMatcher) Match(ctx context.Context, in MatchInput) ([]Match, error) {
	orders := make([]models.MarketplaceOrder, len(in.Orders))
	copy(orders, in.Orders)
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].OrderID < orders[j].OrderID
	})

	ranked := make([]rankedOrder, len(orders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for i := range orders {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ranked[i] = m.rank(orders[i], in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	claimed := make(map[uint]struct{})
	matches := make([]Match, 0, len(ranked))
	for _, r := range ranked {
		if match, ok := m.assign(r, claimed); ok {
			if match.ClickLog != nil {
				claimed[match.ClickLog.ID] = struct{}{}
			}
			matches = append(matches, match)
		}
	}
	return matches, nil
}

func (m *CorrelationMatcher) rank(order models.MarketplaceOrder, in MatchInput) rankedOrder {
	r := rankedOrder{order: order}
	customer, knownBuyer := in.BuyerCustomers[order.BuyerNickname]
	if order.BuyerNickname == "" {
		knownBuyer = false
	}
	orderCity := NormalizeText(order.ShippingCity)

	for _, log := range in.Candidates {
		if log == nil || log.Converted || !m.inWindow(log, order) {
			continue
		}
		r.window = append(r.window, scoredCandidate{log: log})
		if order.ItemID != "" && log.ProductItemID != nil && strings.EqualFold(*log.ProductItemID, order.ItemID) {
			r.item = append(r.item, scoredCandidate{log: log, score: 1})
		}

		score := m.sim.Similarity(log.ProductName, order.ItemTitle)
		textOK := score >= m.cfg.SimilarityThreshold && score > 0
		cityOK := m.cfg.CityCorroboration && orderCity != "" && cityKnown(orderCity, in.CustomerCities[log.CustomerRef])
		passes := textOK || cityOK
		if m.cfg.RequireCityMatch {
			passes = textOK && cityOK
		}
		if passes {
			r.enhanced = append(r.enhanced, scoredCandidate{log: log, score: score})
		}

		if (knownBuyer && log.CustomerRef == customer) || (!knownBuyer && m.cfg.TimeMatchUnknownBuyer) {
			r.timePool = append(r.timePool, scoredCandidate{log: log})
		}
	}

	sortCandidates(r.item)
	sortCandidates(r.enhanced)
	sortCandidates(r.timePool)
	return r
}

func (m *CorrelationMatcher) assign(r rankedOrder, claimed map[uint]struct{}) (Match, bool) {
	if c, ok := firstUnclaimed(r.item, claimed); ok {
		return Match{Order: r.order, ClickLog: c.log, Method: models.CorrelationMethodMLItemMatch, Score: c.score}, true
	}
	if c, ok := firstUnclaimed(r.enhanced, claimed); ok {
		return Match{Order: r.order, ClickLog: c.log, Method: models.CorrelationMethodEnhanced, Score: c.score}, true
	}

	if only, open := unclaimed(r.timePool, claimed); open == 1 {
		return Match{Order: r.order, ClickLog: only.log, Method: models.CorrelationMethodTime}, true
	}

	// an order with unclaimed in-window clicks is ambiguous, not orphaned
	if _, open := unclaimed(r.window, claimed); open == 0 && m.cfg.RecordOrphans && r.order.IsPaid() {
		return Match{Order: r.order, Method: models.CorrelationMethodOrphan}, true
	}
	return Match{}, false
}

// inWindow holds when the log was created no later than the order and at most Window before it
func (m *CorrelationMatcher) inWindow(log *models.ClickLog, order models.MarketplaceOrder) bool {
	if log.CreatedAt.After(order.CreatedAt) {
		return false
	}
	return order.CreatedAt.Sub(log.CreatedAt) <= m.cfg.Window
}

// sortCandidates orders by latest createdAt, then highest score, then highest id
func sortCandidates(cs []scoredCandidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if !a.log.CreatedAt.Equal(b.log.CreatedAt) {
			return a.log.CreatedAt.After(b.log.CreatedAt)
		}
		if a.score != b.score {
			return a.score > b.score
		}
		return a.log.ID > b.log.ID
	})
}

// unclaimed counts the candidates not yet claimed and returns the last of them
func unclaimed(cs []scoredCandidate, claimed map[uint]struct{}) (scoredCandidate, int) {
	var last scoredCandidate
	open := 0
	for _, c := range cs {
		if _, taken := claimed[c.log.ID]; taken {
			continue
		}
		open++
		last = c
	}
	return last, open
}

func firstUnclaimed(cs []scoredCandidate, claimed map[uint]struct{}) (scoredCandidate, bool) {
	for _, c := range cs {
		if _, taken := claimed[c.log.ID]; !taken {
			return c, true
		}
	}
	return scoredCandidate{}, false
}

func cityKnown(normalizedCity string, cities []string) bool {
	for _, c := range cities {
		if NormalizeText(c) == normalizedCity {
			return true
		}
	}
	return false
}
