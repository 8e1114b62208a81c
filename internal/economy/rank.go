package economy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Rank is a job title ordered from Newcomer (0) to Chairman (7).
type Rank int

const (
	RankNewcomer Rank = iota
	RankChief
	RankSectionChief
	RankManager
	RankDirector
	RankExecutive
	RankPresident
	RankChairman
)

var rankLabels = [...]string{"新人", "主任", "係長", "課長", "部長", "役員", "社長", "会長"}

var rankNames = [...]string{"Newcomer", "Chief", "Section Chief", "Manager", "Director", "Executive", "President", "Chairman"}

var rankThresholds = []struct {
	minScore int64
	rank     Rank
}{
	{20_000, RankChairman},
	{5_000, RankPresident},
	{2_000, RankExecutive},
	{500, RankDirector},
	{150, RankManager},
	{50, RankSectionChief},
	{10, RankChief},
}

// Ranks lists every rank in promotion order.
func Ranks() []Rank {
	out := make([]Rank, 0, len(rankLabels))
	for r := RankNewcomer; r <= RankChairman; r++ {
		out = append(out, r)
	}
	return out
}

func (r Rank) Valid() bool {
	return r >= RankNewcomer && r <= RankChairman
}

// String returns the Japanese title.
func (r Rank) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Rank(%d)", int(r))
	}
	return rankLabels[r]
}

// Name returns the English title.
func (r Rank) Name() string {
	if !r.Valid() {
		return fmt.Sprintf("Rank(%d)", int(r))
	}
	return rankNames[r]
}

func (r Rank) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Rank) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseRank(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRank accepts either the Japanese or the English title, case-insensitive.
func ParseRank(s string) (Rank, error) {
	s = strings.TrimSpace(s)
	for i := range rankLabels {
		if s == rankLabels[i] || strings.EqualFold(s, rankNames[i]) {
			return Rank(i), nil
		}
	}
	return RankNewcomer, fmt.Errorf("%w: %q", ErrInvalidRank, s)
}

// CalculateRank scores postCount*1 + respectCount*2 against the title table.
func CalculateRank(postCount, respectCount int64) Rank {
	score := postCount + respectCount*2
	for _, t := range rankThresholds {
		if score >= t.minScore {
			return t.rank
		}
	}
	return RankNewcomer
}

// RankFromMarketCap treats every 10 of market cap as one respect when that
// beats the lifetime received count.
func RankFromMarketCap(marketCap, receivedRespects, postCount int64) Rank {
	respectCount := max(receivedRespects, marketCap/GrowthPerRespect)
	return CalculateRank(postCount, respectCount)
}

type RankChange struct {
	Old      Rank `json:"old_rank"`
	New      Rank `json:"new_rank"`
	Demoted  bool `json:"demoted"`
	Promoted bool `json:"promoted"`
}

func CheckRankDemotion(oldMarketCap, newMarketCap, receivedRespects, postCount int64) RankChange {
	oldRank := RankFromMarketCap(oldMarketCap, receivedRespects, postCount)
	newRank := RankFromMarketCap(newMarketCap, receivedRespects, postCount)
	return RankChange{
		Old:      oldRank,
		New:      newRank,
		Demoted:  newRank < oldRank,
		Promoted: newRank > oldRank,
	}
}
