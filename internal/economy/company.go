package economy

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"
)

type Stage string

const (
	StageStartup Stage = "startup"
	StageVenture Stage = "venture"
	StageListed  Stage = "listed"
	StageUnicorn Stage = "unicorn"
)

// UnlimitedMembers marks stages without a member cap.
const UnlimitedMembers = math.MaxInt

type stageRule struct {
	min        int64
	maxMembers int
	name       string
}

var stageRules = map[Stage]stageRule{
	StageStartup: {min: 10_000_000, maxMembers: 5, name: "スタートアップ"},
	StageVenture: {min: 50_000_000, maxMembers: 20, name: "ベンチャー"},
	StageListed:  {min: 200_000_000, maxMembers: UnlimitedMembers, name: "上場企業"},
	StageUnicorn: {min: 1_000_000_000, maxMembers: UnlimitedMembers, name: "ユニコーン"},
}

// highest first
var stageOrder = []Stage{StageUnicorn, StageListed, StageVenture, StageStartup}

func (s Stage) rule() stageRule {
	if r, ok := stageRules[s]; ok {
		return r
	}
	return stageRules[StageStartup]
}

func (s Stage) MinMarketCap() int64 { return s.rule().min }
func (s Stage) MaxMembers() int     { return s.rule().maxMembers }
func (s Stage) Name() string        { return s.rule().name }

type CompanyMember struct {
	UserID             string    `json:"user_id"`
	UserName           string    `json:"user_name"`
	MarketCap          int64     `json:"market_cap"`
	GivenRespectsToday int64     `json:"given_respects_today"`
	JoinedAt           time.Time `json:"joined_at"`
}

type Company struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	CreatedAt          time.Time       `json:"created_at"`
	Members            []CompanyMember `json:"members"`
	OwnerID            string          `json:"owner_id"`
	LockedCapital      int64           `json:"locked_capital"`
	Stage              Stage           `json:"stage"`
	IsBankrupt         bool            `json:"is_bankrupt"`
	DaysBelowThreshold int             `json:"days_below_threshold"`
	LastCheckDate      string          `json:"last_check_date"`
}

func (c Company) clone() Company {
	out := c
	out.Members = slices.Clone(c.Members)
	return out
}

func (c Company) memberIndex(userID string) int {
	return slices.IndexFunc(c.Members, func(m CompanyMember) bool { return m.UserID == userID })
}

func (c Company) HasMember(userID string) bool {
	return c.memberIndex(userID) >= 0
}

func (c Company) totalMemberCap() int64 {
	var total int64
	for _, m := range c.Members {
		total += m.MarketCap
	}
	return total
}

func (c *Company) recomputeStage() {
	c.Stage = DetermineCompanyStage(CalculateCompanyMarketCap(*c))
}

type Requirements struct {
	CanCreate bool     `json:"can_create"`
	Reasons   []string `json:"reasons"`
}

func CheckCompanyCreationRequirements(marketCap int64, rank Rank) Requirements {
	reasons := []string{}
	if marketCap < CompanyCapitalRequirement {
		reasons = append(reasons, fmt.Sprintf("Insufficient market cap (required: ¥%s, current: ¥%s)",
			formatYen(CompanyCapitalRequirement), formatYen(marketCap)))
	}
	if rank < RankManager {
		reasons = append(reasons, fmt.Sprintf("Insufficient rank (required: %s or above, current: %s)",
			RankManager.Name(), rank.String()))
	}
	return Requirements{CanCreate: len(reasons) == 0, Reasons: reasons}
}

func organizationTenths(c Company) int64 {
	for _, m := range c.Members {
		if m.GivenRespectsToday < DailyQuota {
			return 8
		}
	}
	return 12
}

// CalculateOrganizationFactor is 1.2 when every member met today's quota and
// 0.8 as soon as one did not.
func CalculateOrganizationFactor(c Company) float64 {
	return float64(organizationTenths(c)) / 10
}

func CalculateCompanyMarketCap(c Company) int64 {
	if c.IsBankrupt {
		return 0
	}
	return c.totalMemberCap() * organizationTenths(c) / 10
}

func DetermineCompanyStage(marketCap int64) Stage {
	for _, s := range stageOrder {
		if marketCap >= s.MinMarketCap() {
			return s
		}
	}
	return StageStartup
}

type StageMaintenance struct {
	MeetsThreshold    bool  `json:"meets_threshold"`
	RequiredMarketCap int64 `json:"required_market_cap"`
}

// CheckStageMaintenance compares against the floor of the current stage.
func CheckStageMaintenance(c Company) StageMaintenance {
	required := c.Stage.MinMarketCap()
	return StageMaintenance{
		MeetsThreshold:    CalculateCompanyMarketCap(c) >= required,
		RequiredMarketCap: required,
	}
}

// CheckBankruptcy runs the once-a-day maintenance check. The second result
// reports whether this call is the one that bankrupted the company.
func CheckBankruptcy(c Company, today string) (Company, bool) {
	if c.IsBankrupt || c.LastCheckDate == today {
		return c, false
	}
	out := c.clone()
	wentBankrupt := false
	if CheckStageMaintenance(out).MeetsThreshold {
		out.DaysBelowThreshold = 0
	} else {
		out.DaysBelowThreshold++
		if out.DaysBelowThreshold >= BankruptcyThresholdDays {
			out.IsBankrupt = true
			wentBankrupt = true
		}
	}
	out.LastCheckDate = today
	out.recomputeStage()
	return out, wentBankrupt
}

type Contribution struct {
	Percentage float64 `json:"percentage"`
	Rank       int     `json:"rank"`
}

// CalculateContribution returns the member's share of the summed member caps
// and their 1-based position by market cap. Non-members get the zero value.
func CalculateContribution(userID string, c Company) Contribution {
	idx := c.memberIndex(userID)
	if idx < 0 {
		return Contribution{}
	}
	var out Contribution
	if total := c.totalMemberCap(); total > 0 {
		out.Percentage = float64(c.Members[idx].MarketCap) / float64(total) * 100
	}
	sorted := slices.Clone(c.Members)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MarketCap > sorted[j].MarketCap })
	out.Rank = slices.IndexFunc(sorted, func(m CompanyMember) bool { return m.UserID == userID }) + 1
	return out
}

type RankedCompany struct {
	Company
	MarketCap int64  `json:"market_cap"`
	Rank      int    `json:"rank"`
	Label     string `json:"label"`
}

// RankCompanies orders by market cap, keeping input order on ties.
func RankCompanies(companies []Company) []RankedCompany {
	out := make([]RankedCompany, 0, len(companies))
	for _, c := range companies {
		out = append(out, RankedCompany{Company: c, MarketCap: CalculateCompanyMarketCap(c)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MarketCap > out[j].MarketCap })
	for i := range out {
		out[i].Rank = i + 1
		out[i].Label = CompanyLabel(out[i].MarketCap, out[i].Rank, out[i].Stage)
	}
	return out
}

func CompanyLabel(marketCap int64, rank int, stage Stage) string {
	switch {
	case rank == 1 && stage == StageUnicorn:
		return "伝説のユニコーン企業"
	case stage == StageUnicorn:
		return "ユニコーン企業"
	case rank == 1 && marketCap >= StageListed.MinMarketCap():
		return "上場企業（トップ）"
	case stage == StageListed:
		return "上場企業"
	case stage == StageVenture:
		return "ベンチャー企業"
	default:
		return "スタートアップ"
	}
}

func formatYen(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%d", v)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		return "-" + s
	}
	return s
}
