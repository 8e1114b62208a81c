package economy

import (
	"maps"
	"time"
)

type UserMarketData struct {
	MarketCap          int64            `json:"market_cap"`
	ReceivedRespects   int64            `json:"received_respects"`
	GivenRespectsToday int64            `json:"given_respects_today"`
	LastCheckDate      string           `json:"last_check_date"`
	DailyRespects      map[string]int64 `json:"daily_respects"`
}

func InitialMarketData(today string) UserMarketData {
	return UserMarketData{
		MarketCap:     InitialMarketCap,
		LastCheckDate: today,
		DailyRespects: map[string]int64{},
	}
}

func (d UserMarketData) clone() UserMarketData {
	out := d
	out.DailyRespects = maps.Clone(d.DailyRespects)
	if out.DailyRespects == nil {
		out.DailyRespects = map[string]int64{}
	}
	return out
}

// Rank derives the holder's title with no post credit.
func (d UserMarketData) Rank() Rank {
	return RankFromMarketCap(d.MarketCap, d.ReceivedRespects, 0)
}

// Rollover describes what AdvanceTo did to a record.
type Rollover struct {
	Advanced          bool       `json:"advanced"`
	Penalized         bool       `json:"penalized"`
	YesterdayRespects int64      `json:"yesterday_respects"`
	OldMarketCap      int64      `json:"old_market_cap"`
	NewMarketCap      int64      `json:"new_market_cap"`
	Rank              RankChange `json:"rank"`
}

// AdvanceTo moves a record forward to today. Yesterday's sent count is
// checked against the quota once, the daily counter resets and history older
// than HistoryDays is dropped. A record already on (or past) today is
// returned unchanged, so repeated calls are harmless.
func AdvanceTo(data UserMarketData, today string) (UserMarketData, Rollover) {
	out := data.clone()
	roll := Rollover{OldMarketCap: out.MarketCap, NewMarketCap: out.MarketCap}
	if out.LastCheckDate != "" && out.LastCheckDate >= today {
		return out, roll
	}
	roll.Advanced = true

	yesterday := shiftDay(today, -1)
	roll.YesterdayRespects = out.DailyRespects[yesterday]
	if roll.YesterdayRespects < DailyQuota {
		out.MarketCap = ApplyPenalty(out.MarketCap)
		roll.Penalized = true
		roll.NewMarketCap = out.MarketCap
		roll.Rank = CheckRankDemotion(roll.OldMarketCap, roll.NewMarketCap, out.ReceivedRespects, 0)
	}

	out.GivenRespectsToday = 0
	out.LastCheckDate = today

	cutoff := shiftDay(today, -HistoryDays)
	for day := range out.DailyRespects {
		if day < cutoff {
			delete(out.DailyRespects, day)
		}
	}
	return out, roll
}

// ApplyPenalty cuts marketCap by PenaltyPercent, never below MarketCapFloor.
func ApplyPenalty(marketCap int64) int64 {
	return max(MarketCapFloor, marketCap*(100-PenaltyPercent)/100)
}

// ApplyReceive credits amount respects. Callers advance the record first.
func ApplyReceive(data UserMarketData, amount int64, crash MarketCrash) (UserMarketData, int64) {
	growth := RespectGrowth(amount, crash)
	return ApplyGrowth(data, amount, growth), growth
}

// ApplyGrowth credits amount respects worth growth market cap.
func ApplyGrowth(data UserMarketData, amount, growth int64) UserMarketData {
	out := data.clone()
	out.ReceivedRespects += amount
	out.MarketCap += growth
	return out
}

// ApplySend counts one sent respect on the record's current day.
func ApplySend(data UserMarketData) UserMarketData {
	out := data.clone()
	out.GivenRespectsToday++
	out.DailyRespects[out.LastCheckDate]++
	return out
}

type QuotaProgress struct {
	Current    int64   `json:"current"`
	Quota      int64   `json:"quota"`
	Percentage float64 `json:"percentage"`
}

func (d UserMarketData) QuotaProgress() QuotaProgress {
	pct := float64(d.GivenRespectsToday) / float64(DailyQuota) * 100
	return QuotaProgress{
		Current:    d.GivenRespectsToday,
		Quota:      DailyQuota,
		Percentage: min(100, pct),
	}
}

// ShouldShowWarning is true from WarningHour local time while the quota is
// still open.
func ShouldShowWarning(p QuotaProgress, now time.Time) bool {
	return now.Hour() >= WarningHour && p.Current < p.Quota
}
