package economy

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"promotion/internal/metrics"
)

type CreateCompanyInput struct {
	Name           string
	Description    string
	OwnerID        string
	OwnerName      string
	OwnerMarketCap int64
	OwnerRank      Rank
}

// RequirementsError lists every unmet founding condition.
type RequirementsError struct {
	Reasons []string
}

func (e *RequirementsError) Error() string {
	return strings.Join(e.Reasons, "\n")
}

func (e *RequirementsError) Unwrap() error { return ErrRequirementsUnmet }

// MemberUpdate carries the fields to merge into a member snapshot; nil fields
// are left alone.
type MemberUpdate struct {
	UserName           *string `json:"user_name,omitempty"`
	MarketCap          *int64  `json:"market_cap,omitempty"`
	GivenRespectsToday *int64  `json:"given_respects_today,omitempty"`
}

func (l *Ledger) loadCompanies(ctx context.Context) []Company {
	var companies []Company
	if !l.getJSON(ctx, keyCompanies, &companies) {
		return []Company{}
	}
	return companies
}

func (l *Ledger) loadUserCompanies(ctx context.Context) map[string]string {
	m := map[string]string{}
	if !l.getJSON(ctx, keyUserCompany, &m) || m == nil {
		return map[string]string{}
	}
	return m
}

func (l *Ledger) setUserCompany(ctx context.Context, userID, companyID string) {
	m := l.loadUserCompanies(ctx)
	if companyID == "" {
		delete(m, userID)
	} else {
		m[userID] = companyID
	}
	l.putJSON(ctx, keyUserCompany, m)
}

func findCompany(companies []Company, id string) int {
	return slices.IndexFunc(companies, func(c Company) bool { return c.ID == id })
}

func (l *Ledger) ListCompanies(ctx context.Context) []Company {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadCompanies(ctx)
}

func (l *Ledger) GetCompany(ctx context.Context, companyID string) (Company, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	companies := l.loadCompanies(ctx)
	if i := findCompany(companies, companyID); i >= 0 {
		return companies[i], true
	}
	return Company{}, false
}

func (l *Ledger) UserCompanyID(ctx context.Context, userID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.loadUserCompanies(ctx)[userID]
	return id, ok && id != ""
}

// CreateCompany founds a startup owned by in.OwnerID. CompanyCapitalLock is
// taken out of the owner's member snapshot.
func (l *Ledger) CreateCompany(ctx context.Context, in CreateCompanyInput) (Company, error) {
	req := CheckCompanyCreationRequirements(in.OwnerMarketCap, in.OwnerRank)
	if !req.CanCreate {
		return Company{}, &RequirementsError{Reasons: req.Reasons}
	}
	available := in.OwnerMarketCap - CompanyCapitalLock
	if available < 0 {
		return Company{}, ErrCapitalShortfall
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Company{}, fmt.Errorf("company name is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	company := Company{
		ID:            "company_" + uuid.NewString(),
		Name:          name,
		Description:   strings.TrimSpace(in.Description),
		CreatedAt:     now,
		OwnerID:       in.OwnerID,
		LockedCapital: CompanyCapitalLock,
		Stage:         StageStartup,
		LastCheckDate: Day(now),
		Members: []CompanyMember{{
			UserID:    in.OwnerID,
			UserName:  in.OwnerName,
			MarketCap: available,
			JoinedAt:  now,
		}},
	}
	companies := append(l.loadCompanies(ctx), company)
	l.putJSON(ctx, keyCompanies, companies)
	l.setUserCompany(ctx, in.OwnerID, company.ID)

	metrics.CompanyEvents.WithLabelValues("created").Inc()
	l.log.Info("company created", "company_id", company.ID, "owner_id", in.OwnerID)
	return company, nil
}

// JoinCompany adds userID to companyID. A user belongs to at most one company
// at a time.
func (l *Ledger) JoinCompany(ctx context.Context, companyID, userID, userName string, marketCap int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	companies := l.loadCompanies(ctx)
	i := findCompany(companies, companyID)
	if i < 0 {
		return ErrCompanyNotFound
	}
	c := &companies[i]
	if c.IsBankrupt {
		return ErrCompanyBankrupt
	}
	if c.HasMember(userID) {
		return ErrAlreadyMember
	}
	if current := l.loadUserCompanies(ctx)[userID]; current != "" && current != companyID {
		return ErrAlreadyAffiliated
	}
	if limit := c.Stage.MaxMembers(); len(c.Members) >= limit {
		return fmt.Errorf("%w: this company can have up to %d members", ErrCompanyFull, limit)
	}
	c.Members = append(c.Members, CompanyMember{
		UserID:    userID,
		UserName:  userName,
		MarketCap: marketCap,
		JoinedAt:  l.now().UTC(),
	})
	c.recomputeStage()
	l.putJSON(ctx, keyCompanies, companies)
	l.setUserCompany(ctx, userID, companyID)
	metrics.CompanyEvents.WithLabelValues("joined").Inc()
	return nil
}

// LeaveCompany removes userID from their company. Owners cannot leave.
func (l *Ledger) LeaveCompany(ctx context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	companyID, ok := l.loadUserCompanies(ctx)[userID]
	if !ok || companyID == "" {
		return ErrNotInCompany
	}
	companies := l.loadCompanies(ctx)
	i := findCompany(companies, companyID)
	if i < 0 {
		return ErrCompanyNotFound
	}
	c := &companies[i]
	if c.OwnerID == userID {
		return ErrOwnerCannotLeave
	}
	c.Members = slices.DeleteFunc(c.Members, func(m CompanyMember) bool { return m.UserID == userID })
	l.putJSON(ctx, keyCompanies, companies)
	l.setUserCompany(ctx, userID, "")
	metrics.CompanyEvents.WithLabelValues("left").Inc()
	return nil
}

// UpdateCompanyMember merges upd into the member's snapshot and recomputes
// the stage. It reports false when the company or member is missing.
func (l *Ledger) UpdateCompanyMember(ctx context.Context, companyID, userID string, upd MemberUpdate) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.updateCompanyMember(ctx, companyID, userID, upd)
}

func (l *Ledger) updateCompanyMember(ctx context.Context, companyID, userID string, upd MemberUpdate) bool {
	companies := l.loadCompanies(ctx)
	i := findCompany(companies, companyID)
	if i < 0 {
		return false
	}
	c := &companies[i]
	j := c.memberIndex(userID)
	if j < 0 {
		return false
	}
	m := &c.Members[j]
	if upd.UserName != nil {
		m.UserName = *upd.UserName
	}
	if upd.MarketCap != nil {
		m.MarketCap = *upd.MarketCap
	}
	if upd.GivenRespectsToday != nil {
		m.GivenRespectsToday = *upd.GivenRespectsToday
	}
	c.recomputeStage()
	l.putJSON(ctx, keyCompanies, companies)
	return true
}

// SyncMembership copies the user's current market data into their company
// member snapshot. The owner's snapshot stays net of the locked capital.
func (l *Ledger) SyncMembership(ctx context.Context, userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	companyID, ok := l.loadUserCompanies(ctx)[userID]
	if !ok || companyID == "" {
		return false
	}
	companies := l.loadCompanies(ctx)
	i := findCompany(companies, companyID)
	if i < 0 {
		return false
	}
	data := l.loadMarketData(ctx, userID)
	memberCap := data.MarketCap
	if companies[i].OwnerID == userID {
		memberCap = max(0, memberCap-companies[i].LockedCapital)
	}
	given := data.GivenRespectsToday
	return l.updateCompanyMember(ctx, companyID, userID, MemberUpdate{MarketCap: &memberCap, GivenRespectsToday: &given})
}

// SweepMembers rolls every company member's market record over to today and
// refreshes their snapshot, so quota penalties land before the bankruptcy
// check. It returns the number of members synced.
func (l *Ledger) SweepMembers(ctx context.Context) int {
	l.mu.Lock()
	var ids []string
	for _, c := range l.loadCompanies(ctx) {
		if c.IsBankrupt {
			continue
		}
		for _, m := range c.Members {
			ids = append(ids, m.UserID)
		}
	}
	l.mu.Unlock()

	n := 0
	for _, id := range ids {
		if l.SyncMembership(ctx, id) {
			n++
		}
	}
	return n
}

// SettleCompanies runs today's bankruptcy check on every company, persists
// the result and returns the ranking plus the companies that went bankrupt on
// this pass. Members of a newly bankrupt company lose their affiliation.
func (l *Ledger) SettleCompanies(ctx context.Context) ([]RankedCompany, []Company) {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := l.Today()
	companies := l.loadCompanies(ctx)
	var bankrupted []Company
	for i := range companies {
		updated, wentBankrupt := CheckBankruptcy(companies[i], today)
		companies[i] = updated
		if wentBankrupt {
			bankrupted = append(bankrupted, updated)
		}
	}
	l.putJSON(ctx, keyCompanies, companies)

	for _, c := range bankrupted {
		l.releaseMembers(ctx, c)
	}
	return RankCompanies(companies), bankrupted
}

func (l *Ledger) releaseMembers(ctx context.Context, c Company) {
	metrics.CompanyEvents.WithLabelValues("bankrupt").Inc()
	l.log.Info("company bankrupt", "company_id", c.ID, "members", len(c.Members))
	mapping := l.loadUserCompanies(ctx)
	now := l.now()
	for _, m := range c.Members {
		if mapping[m.UserID] == c.ID {
			delete(mapping, m.UserID)
		}
		l.pushNotification(ctx, bankruptcyNotice(m.UserID, c, now))
	}
	l.putJSON(ctx, keyUserCompany, mapping)
}

// CompanyRanking settles today's bankruptcy checks and ranks every company by
// market cap.
func (l *Ledger) CompanyRanking(ctx context.Context) []RankedCompany {
	ranking, _ := l.SettleCompanies(ctx)
	return ranking
}

func (l *Ledger) Contribution(ctx context.Context, companyID, userID string) (Contribution, error) {
	c, ok := l.GetCompany(ctx, companyID)
	if !ok {
		return Contribution{}, ErrCompanyNotFound
	}
	return CalculateContribution(userID, c), nil
}
