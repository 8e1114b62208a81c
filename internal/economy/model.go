package economy

import (
	"errors"
	"time"
)

const (
	InitialMarketCap = int64(1_000)
	MarketCapFloor   = int64(100)

	DailyQuota       = int64(3)
	PenaltyPercent   = int64(30)
	GrowthPerRespect = int64(10)
	HistoryDays      = 30
	WarningHour      = 18

	CompanyCapitalRequirement = int64(10_000_000)
	CompanyCapitalLock        = int64(2_000_000)
	BankruptcyThresholdDays   = 3

	DefaultDividendRate    = 0.05
	DefaultCrashMultiplier = 0.5
	ShareholderLimit       = 3

	DateLayout = "2006-01-02"
)

var (
	ErrCompanyNotFound   = errors.New("company not found")
	ErrCompanyBankrupt   = errors.New("company is bankrupt")
	ErrAlreadyMember     = errors.New("already a member of this company")
	ErrAlreadyAffiliated = errors.New("already a member of another company")
	ErrCompanyFull       = errors.New("company member limit reached")
	ErrRequirementsUnmet = errors.New("company creation requirements not met")
	ErrCapitalShortfall  = errors.New("cannot secure founding capital")
	ErrOwnerCannotLeave  = errors.New("owner cannot leave the company")
	ErrNotInCompany      = errors.New("user is not in a company")
	ErrInvalidRank       = errors.New("unknown rank")
	ErrInvalidAmount     = errors.New("amount must be > 0")
)

// Day returns the calendar day t falls on, in UTC.
func Day(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

func shiftDay(day string, delta int) string {
	t, err := time.Parse(DateLayout, day)
	if err != nil {
		return day
	}
	return t.AddDate(0, 0, delta).Format(DateLayout)
}
