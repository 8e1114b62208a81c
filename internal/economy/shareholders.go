package economy

import (
	"math"
	"sort"
	"time"
)

type InvestmentRecord struct {
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	Timestamp  time.Time `json:"timestamp"`
}

type Shareholder struct {
	UserID           string `json:"user_id"`
	UserName         string `json:"user_name"`
	InvestmentCount  int64  `json:"investment_count"`
	InvestmentAmount int64  `json:"investment_amount"`
	Rank             int    `json:"rank"`
}

// AggregateShareholders counts investments into userID per investor and
// keeps the top limit. Equal counts keep the order of each investor's first
// investment.
func AggregateShareholders(records []InvestmentRecord, userID string, limit int) []Shareholder {
	index := map[string]int{}
	var out []Shareholder
	for _, r := range records {
		if r.ToUserID != userID {
			continue
		}
		i, ok := index[r.FromUserID]
		if !ok {
			i = len(out)
			index[r.FromUserID] = i
			out = append(out, Shareholder{UserID: r.FromUserID, UserName: shareholderName(r.FromUserID)})
		}
		out[i].InvestmentCount++
		out[i].InvestmentAmount++
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].InvestmentCount > out[j].InvestmentCount })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func shareholderName(userID string) string {
	if len(userID) > 4 {
		return "User" + userID[len(userID)-4:]
	}
	return "User" + userID
}

type Dividend struct {
	ShareholderID string `json:"shareholder_id"`
	Amount        int64  `json:"amount"`
}

// DistributeDividend computes the top shareholder's cut. It does not credit
// anything; see Ledger.CreditDividend.
func DistributeDividend(shareholders []Shareholder, marketCap int64, rate float64) (Dividend, bool) {
	if len(shareholders) == 0 {
		return Dividend{}, false
	}
	return Dividend{
		ShareholderID: shareholders[0].UserID,
		Amount:        int64(math.Floor(float64(marketCap) * rate)),
	}, true
}
