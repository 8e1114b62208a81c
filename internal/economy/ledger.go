package economy

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"promotion/internal/kv"
	"promotion/internal/metrics"
)

const (
	keyCompanies   = "companies"
	keyUserCompany = "user_company"
	keyMarketCrash = "market_crash_mode"
)

func marketKey(userID string) string       { return "market_data:" + userID }
func notificationKey(userID string) string { return "notifications:" + userID }

// investmentKey holds the append-only log of investments into one user.
func investmentKey(userID string) string { return "shareholders:" + userID }

// Ledger applies the economy rules to records held in a kv.Store. Every
// read-modify-write cycle runs under one mutex; separate processes sharing a
// store are last-writer-wins.
type Ledger struct {
	store kv.Store
	log   *slog.Logger
	now   func() time.Time
	mu    sync.Mutex
}

type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(store kv.Store, logger *slog.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = kv.Nop{}
	}
	l := &Ledger{
		store: store,
		log:   logger.With("component", "ledger"),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Today() string {
	return Day(l.now())
}

func (l *Ledger) getJSON(ctx context.Context, key string, out any) bool {
	err := kv.GetJSON(ctx, l.store, key, out)
	if err == nil {
		return true
	}
	var decodeErr *kv.DecodeError
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case errors.As(err, &decodeErr):
		l.log.Warn("stored value unreadable, using defaults", "key", key, "err", err)
		metrics.StoreErrors.WithLabelValues("decode").Inc()
	default:
		l.log.Warn("store read failed, using defaults", "key", key, "err", err)
		metrics.StoreErrors.WithLabelValues("read").Inc()
	}
	return false
}

func (l *Ledger) putJSON(ctx context.Context, key string, v any) {
	if err := kv.SetJSON(ctx, l.store, key, v); err != nil {
		l.log.Error("store write failed", "key", key, "err", err)
		metrics.StoreErrors.WithLabelValues("write").Inc()
	}
}

// loadMarketData must run with l.mu held.
func (l *Ledger) loadMarketData(ctx context.Context, userID string) UserMarketData {
	today := l.Today()
	var data UserMarketData
	if !l.getJSON(ctx, marketKey(userID), &data) {
		return InitialMarketData(today)
	}
	advanced, roll := AdvanceTo(data, today)
	if roll.Advanced {
		l.putJSON(ctx, marketKey(userID), advanced)
		l.recordRollover(ctx, userID, roll)
	}
	return advanced
}

func (l *Ledger) recordRollover(ctx context.Context, userID string, roll Rollover) {
	if !roll.Penalized {
		metrics.DayRollovers.WithLabelValues("quota_met").Inc()
		return
	}
	metrics.DayRollovers.WithLabelValues("penalized").Inc()
	l.log.Info("quota penalty applied",
		"user_id", userID,
		"yesterday_respects", roll.YesterdayRespects,
		"old_market_cap", roll.OldMarketCap,
		"new_market_cap", roll.NewMarketCap,
	)
	now := l.now()
	l.pushNotification(ctx, penaltyNotice(userID, roll, now))
	if roll.Rank.Demoted {
		metrics.RankChanges.WithLabelValues("demotion").Inc()
		l.log.Info("rank demotion", "user_id", userID, "old_rank", roll.Rank.Old.String(), "new_rank", roll.Rank.New.String())
		l.pushNotification(ctx, demotionNotice(userID, roll.Rank, now))
	}
}

// LoadMarketData returns the user's record advanced to today, creating the
// starting record on first sight.
func (l *Ledger) LoadMarketData(ctx context.Context, userID string) UserMarketData {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadMarketData(ctx, userID)
}

func (l *Ledger) SaveMarketData(ctx context.Context, userID string, data UserMarketData) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.putJSON(ctx, marketKey(userID), data)
}

type RespectReceipt struct {
	Data     UserMarketData `json:"data"`
	Growth   int64          `json:"growth"`
	Rank     RankChange     `json:"rank"`
	Dividend *Dividend      `json:"dividend,omitempty"`
}

// ReceiveRespect credits amount respects (minimum 1) to userID under the
// current market crash setting. On promotion the top shareholder's dividend
// is computed and returned in the receipt but not credited; the caller does
// that with CreditDividend.
func (l *Ledger) ReceiveRespect(ctx context.Context, userID string, amount int64, fromName string) RespectReceipt {
	if amount < 1 {
		amount = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	growth := RespectGrowth(amount, l.marketCrash(ctx))
	return l.creditRespect(ctx, userID, amount, growth, fromName)
}

// CreditRespect is ReceiveRespect with the growth already decided, for
// callers that wrote the same delta to the social store first.
func (l *Ledger) CreditRespect(ctx context.Context, userID string, amount, growth int64, fromName string) RespectReceipt {
	if amount < 1 {
		amount = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creditRespect(ctx, userID, amount, max(0, growth), fromName)
}

func (l *Ledger) creditRespect(ctx context.Context, userID string, amount, growth int64, fromName string) RespectReceipt {
	before := l.loadMarketData(ctx, userID)
	after := ApplyGrowth(before, amount, growth)
	l.putJSON(ctx, marketKey(userID), after)

	metrics.RespectsReceived.Add(float64(amount))
	metrics.MarketCapGrowth.Add(float64(growth))

	now := l.now()
	receipt := RespectReceipt{Data: after, Growth: growth}
	receipt.Rank = RankChange{Old: before.Rank(), New: after.Rank()}
	receipt.Rank.Promoted = receipt.Rank.New > receipt.Rank.Old

	if growth > 0 {
		if fromName == "" {
			fromName = "匿名"
		}
		l.pushNotification(ctx, investmentNotice(userID, fromName, growth, now))
	}
	if receipt.Rank.Promoted {
		metrics.RankChanges.WithLabelValues("promotion").Inc()
		l.log.Info("rank promotion", "user_id", userID, "old_rank", receipt.Rank.Old.String(), "new_rank", receipt.Rank.New.String())
		l.pushNotification(ctx, promotionNotice(userID, receipt.Rank.New, now))
		holders := AggregateShareholders(l.loadInvestments(ctx, userID), userID, ShareholderLimit)
		if d, ok := DistributeDividend(holders, after.MarketCap, DefaultDividendRate); ok {
			receipt.Dividend = &d
		}
	}
	return receipt
}

// SendRespect counts one sent respect for today, rolling the day over first
// when needed.
func (l *Ledger) SendRespect(ctx context.Context, userID string) UserMarketData {
	l.mu.Lock()
	defer l.mu.Unlock()
	data := ApplySend(l.loadMarketData(ctx, userID))
	l.putJSON(ctx, marketKey(userID), data)
	metrics.RespectsSent.Inc()
	return data
}

// CreditDividend adds a computed dividend to the shareholder's market cap.
func (l *Ledger) CreditDividend(ctx context.Context, d Dividend) UserMarketData {
	l.mu.Lock()
	defer l.mu.Unlock()
	data := l.loadMarketData(ctx, d.ShareholderID)
	if d.Amount <= 0 {
		return data
	}
	data.MarketCap += d.Amount
	l.putJSON(ctx, marketKey(d.ShareholderID), data)
	l.pushNotification(ctx, dividendNotice(d.ShareholderID, d.Amount, l.now()))
	return data
}

// SyncMarketCap overwrites the local market cap with an authoritative value.
func (l *Ledger) SyncMarketCap(ctx context.Context, userID string, marketCap int64) UserMarketData {
	l.mu.Lock()
	defer l.mu.Unlock()
	data := l.loadMarketData(ctx, userID)
	data.MarketCap = max(0, marketCap)
	l.putJSON(ctx, marketKey(userID), data)
	return data
}

func (l *Ledger) QuotaProgress(ctx context.Context, userID string) QuotaProgress {
	return l.LoadMarketData(ctx, userID).QuotaProgress()
}

func (l *Ledger) ShouldShowWarning(ctx context.Context, userID string) bool {
	return ShouldShowWarning(l.QuotaProgress(ctx, userID), l.now())
}

func (l *Ledger) marketCrash(ctx context.Context) MarketCrash {
	var c MarketCrash
	if !l.getJSON(ctx, keyMarketCrash, &c) {
		return NormalMarket()
	}
	return c
}

func (l *Ledger) MarketCrash(ctx context.Context) MarketCrash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.marketCrash(ctx)
}

func (l *Ledger) SetMarketCrashMode(ctx context.Context, isActive bool, multiplier float64) MarketCrash {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := NewMarketCrash(isActive, multiplier, l.now())
	l.putJSON(ctx, keyMarketCrash, c)
	if isActive {
		metrics.MarketCrashActive.Set(1)
	} else {
		metrics.MarketCrashActive.Set(0)
	}
	l.log.Info("market crash mode set", "active", isActive, "multiplier", c.GrowthRateMultiplier)
	return c
}

func (l *Ledger) loadInvestments(ctx context.Context, toUserID string) []InvestmentRecord {
	var records []InvestmentRecord
	if !l.getJSON(ctx, investmentKey(toUserID), &records) {
		return nil
	}
	return records
}

func (l *Ledger) RecordInvestment(ctx context.Context, fromUserID, toUserID string) InvestmentRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := InvestmentRecord{FromUserID: fromUserID, ToUserID: toUserID, Timestamp: l.now().UTC()}
	records := append(l.loadInvestments(ctx, toUserID), rec)
	l.putJSON(ctx, investmentKey(toUserID), records)
	return rec
}

func (l *Ledger) Shareholders(ctx context.Context, userID string) []Shareholder {
	l.mu.Lock()
	defer l.mu.Unlock()
	return AggregateShareholders(l.loadInvestments(ctx, userID), userID, ShareholderLimit)
}

func (l *Ledger) DistributeDividend(ctx context.Context, userID string, marketCap int64, rate float64) (Dividend, bool) {
	return DistributeDividend(l.Shareholders(ctx, userID), marketCap, rate)
}

func (l *Ledger) loadNotifications(ctx context.Context, userID string) []Notification {
	var list []Notification
	if !l.getJSON(ctx, notificationKey(userID), &list) {
		return []Notification{}
	}
	return list
}

func (l *Ledger) pushNotification(ctx context.Context, n Notification) {
	list := prependNotification(l.loadNotifications(ctx, n.UserID), n)
	l.putJSON(ctx, notificationKey(n.UserID), list)
}

// maxExcerptRunes bounds the comment text quoted in a notification.
const maxExcerptRunes = 40

// NotifyComment tells a post author that someone commented. Comments on one's
// own post are not notified.
func (l *Ledger) NotifyComment(ctx context.Context, authorID, commenterID, commenterName, content string) bool {
	if authorID == "" || authorID == commenterID {
		return false
	}
	if commenterName == "" {
		commenterName = "匿名"
	}
	excerpt := []rune(strings.TrimSpace(content))
	if len(excerpt) > maxExcerptRunes {
		excerpt = append(excerpt[:maxExcerptRunes], '…')
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pushNotification(ctx, commentNotice(authorID, commenterName, string(excerpt), l.now()))
	return true
}

// Notifications lists newest first.
func (l *Ledger) Notifications(ctx context.Context, userID string) []Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadNotifications(ctx, userID)
}

func (l *Ledger) UnreadCount(ctx context.Context, userID string) int {
	n := 0
	for _, item := range l.Notifications(ctx, userID) {
		if !item.IsRead {
			n++
		}
	}
	return n
}

func (l *Ledger) MarkAsRead(ctx context.Context, userID, notificationID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.loadNotifications(ctx, userID)
	for i := range list {
		if list[i].ID == notificationID {
			list[i].IsRead = true
			l.putJSON(ctx, notificationKey(userID), list)
			return true
		}
	}
	return false
}

func (l *Ledger) MarkAllAsRead(ctx context.Context, userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.loadNotifications(ctx, userID)
	for i := range list {
		list[i].IsRead = true
	}
	l.putJSON(ctx, notificationKey(userID), list)
}
