package economy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"promotion/internal/kv"
)

type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time { return c.t }

func (c *testClock) nextDay() { c.t = c.t.AddDate(0, 0, 1) }

func newTestLedger(t *testing.T) (*Ledger, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewLedger(kv.NewMemory(), logger, WithClock(clock.Now)), clock
}

func hasNotification(list []Notification, typ NotificationType) bool {
	for _, n := range list {
		if n.Type == typ {
			return true
		}
	}
	return false
}

func TestLedgerPenaltyOnMissedQuota(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLedger(t)

	if got := l.LoadMarketData(ctx, "u1").MarketCap; got != InitialMarketCap {
		t.Fatalf("first sight market cap got %d", got)
	}
	l.SendRespect(ctx, "u1")

	clock.nextDay()
	data := l.LoadMarketData(ctx, "u1")
	if data.MarketCap != 700 {
		t.Fatalf("expected 700 after penalty, got %d", data.MarketCap)
	}
	if data.GivenRespectsToday != 0 || data.LastCheckDate != "2026-10-20" {
		t.Fatalf("expected counters reset, got %+v", data)
	}
	if !hasNotification(l.Notifications(ctx, "u1"), NotifyPenalty) {
		t.Fatalf("expected penalty notification")
	}

	// second load on the same day must not penalize again
	if again := l.LoadMarketData(ctx, "u1"); again.MarketCap != 700 {
		t.Fatalf("penalty applied twice: %d", again.MarketCap)
	}
}

func TestLedgerQuotaMetKeepsMarketCap(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLedger(t)
	for range DailyQuota {
		l.SendRespect(ctx, "u1")
	}
	clock.nextDay()
	if got := l.LoadMarketData(ctx, "u1").MarketCap; got != InitialMarketCap {
		t.Fatalf("expected no penalty, got %d", got)
	}
}

func TestLedgerSendOnNewDayStartsAtOne(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLedger(t)
	l.SendRespect(ctx, "u1")
	l.SendRespect(ctx, "u1")

	clock.nextDay()
	data := l.SendRespect(ctx, "u1")
	if data.GivenRespectsToday != 1 {
		t.Fatalf("expected 1 sent today, got %d", data.GivenRespectsToday)
	}
	if data.DailyRespects["2026-10-20"] != 1 || data.DailyRespects["2026-10-19"] != 2 {
		t.Fatalf("unexpected history %+v", data.DailyRespects)
	}
}

func TestLedgerReceiveRespect(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	r := l.ReceiveRespect(ctx, "u1", 0, "alice")
	if r.Growth != GrowthPerRespect || r.Data.ReceivedRespects != 1 || r.Data.MarketCap != 1010 {
		t.Fatalf("unexpected receipt %+v", r)
	}
	if !hasNotification(l.Notifications(ctx, "u1"), NotifyInvestment) {
		t.Fatalf("expected investment notification")
	}

	crash := l.SetMarketCrashMode(ctx, true, 0.5)
	if !crash.IsActive || crash.ActivatedAt == nil {
		t.Fatalf("unexpected crash state %+v", crash)
	}
	r = l.ReceiveRespect(ctx, "u1", 1, "alice")
	if r.Growth != 5 || r.Data.MarketCap != 1015 {
		t.Fatalf("expected halved growth, got %+v", r)
	}

	l.SetMarketCrashMode(ctx, false, 0.5)
	if l.MarketCrash(ctx).IsActive {
		t.Fatalf("expected crash mode off")
	}
}

func TestLedgerShareholdersAndDividend(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	counts := []struct {
		from string
		n    int
	}{{"userA", 5}, {"userB", 9}, {"userC", 2}, {"userD", 9}}
	for _, c := range counts {
		for range c.n {
			l.RecordInvestment(ctx, c.from, "target")
		}
	}

	holders := l.Shareholders(ctx, "target")
	if len(holders) != 3 || holders[0].UserID != "userB" || holders[1].UserID != "userD" || holders[2].UserID != "userA" {
		t.Fatalf("unexpected shareholders %+v", holders)
	}

	d, ok := l.DistributeDividend(ctx, "target", 10_000, DefaultDividendRate)
	if !ok || d.ShareholderID != "userB" || d.Amount != 500 {
		t.Fatalf("unexpected dividend %+v", d)
	}
	before := l.LoadMarketData(ctx, "userB").MarketCap
	after := l.CreditDividend(ctx, d)
	if after.MarketCap != before+500 {
		t.Fatalf("dividend not credited: %d -> %d", before, after.MarketCap)
	}
	if !hasNotification(l.Notifications(ctx, "userB"), NotifyInvestment) {
		t.Fatalf("expected dividend notification")
	}
}

func TestLedgerInvestmentsKeyedByRecipient(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	l := NewLedger(store, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	l.RecordInvestment(ctx, "amy", "bob")
	l.RecordInvestment(ctx, "amy", "bob")
	l.RecordInvestment(ctx, "bob", "carol")

	var bob []InvestmentRecord
	if err := kv.GetJSON(ctx, store, "shareholders:bob", &bob); err != nil || len(bob) != 2 {
		t.Fatalf("bob's log: %v %+v", err, bob)
	}
	var carol []InvestmentRecord
	if err := kv.GetJSON(ctx, store, "shareholders:carol", &carol); err != nil || len(carol) != 1 {
		t.Fatalf("carol's log: %v %+v", err, carol)
	}
	if holders := l.Shareholders(ctx, "carol"); len(holders) != 1 || holders[0].UserID != "bob" {
		t.Fatalf("unexpected shareholders %+v", holders)
	}
}

func TestLedgerNotifyComment(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	if l.NotifyComment(ctx, "bob", "bob", "Bob", "self") {
		t.Fatalf("own comment should not notify")
	}
	long := strings.Repeat("あ", 60)
	if !l.NotifyComment(ctx, "bob", "amy", "Amy", long) {
		t.Fatalf("expected notification")
	}
	list := l.Notifications(ctx, "bob")
	if len(list) != 1 || list[0].Type != NotifyHuman || list[0].FromUser != "Amy" {
		t.Fatalf("unexpected inbox %+v", list)
	}
	if strings.Contains(list[0].Message, long) || !strings.Contains(list[0].Message, strings.Repeat("あ", maxExcerptRunes)+"…") {
		t.Fatalf("excerpt not trimmed: %q", list[0].Message)
	}
}

func TestLedgerPromotionComputesDividend(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	l.RecordInvestment(ctx, "fan", "star")
	l.SyncMarketCap(ctx, "star", 99_995)

	r := l.ReceiveRespect(ctx, "star", 1, "fan")
	if !r.Rank.Promoted {
		t.Fatalf("expected promotion, got %+v", r.Rank)
	}
	if r.Dividend == nil || r.Dividend.ShareholderID != "fan" {
		t.Fatalf("expected dividend for top shareholder, got %+v", r.Dividend)
	}
	if !hasNotification(l.Notifications(ctx, "star"), NotifyPromotion) {
		t.Fatalf("expected promotion notification")
	}
	// computed, not credited
	if got := l.LoadMarketData(ctx, "fan").MarketCap; got != InitialMarketCap {
		t.Fatalf("dividend credited implicitly: %d", got)
	}
}

func TestLedgerCreateCompany(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_, err := l.CreateCompany(ctx, CreateCompanyInput{Name: "Acme", OwnerID: "poor", OwnerMarketCap: 9_000_000, OwnerRank: RankManager})
	if !errors.Is(err, ErrRequirementsUnmet) {
		t.Fatalf("expected requirements error, got %v", err)
	}
	var reqErr *RequirementsError
	if !errors.As(err, &reqErr) || len(reqErr.Reasons) != 1 {
		t.Fatalf("expected one reason, got %v", err)
	}

	c, err := l.CreateCompany(ctx, CreateCompanyInput{Name: "  Acme  ", OwnerID: "owner", OwnerName: "Owner", OwnerMarketCap: 12_000_000, OwnerRank: RankManager})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Name != "Acme" || c.Stage != StageStartup || c.LockedCapital != CompanyCapitalLock {
		t.Fatalf("unexpected company %+v", c)
	}
	if len(c.Members) != 1 || c.Members[0].MarketCap != 10_000_000 {
		t.Fatalf("owner snapshot should be net of locked capital: %+v", c.Members)
	}
	if id, ok := l.UserCompanyID(ctx, "owner"); !ok || id != c.ID {
		t.Fatalf("owner not affiliated: %q %v", id, ok)
	}
	if got, ok := l.GetCompany(ctx, c.ID); !ok || got.Name != "Acme" {
		t.Fatalf("company not persisted")
	}
}

func TestLedgerCompanyCapacityFollowsStage(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	c, err := l.CreateCompany(ctx, CreateCompanyInput{Name: "Acme", OwnerID: "owner", OwnerMarketCap: 12_000_000, OwnerRank: RankManager})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, id := range []string{"m1", "m2", "m3", "m4"} {
		if err := l.JoinCompany(ctx, c.ID, id, id, 1_000); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	if err := l.JoinCompany(ctx, c.ID, "m5", "m5", 1_000); !errors.Is(err, ErrCompanyFull) {
		t.Fatalf("expected full company, got %v", err)
	}
	if err := l.JoinCompany(ctx, c.ID, "m1", "m1", 1_000); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected already member, got %v", err)
	}

	ownerCap := int64(70_000_000)
	if !l.UpdateCompanyMember(ctx, c.ID, "owner", MemberUpdate{MarketCap: &ownerCap}) {
		t.Fatalf("update failed")
	}
	got, _ := l.GetCompany(ctx, c.ID)
	if got.Stage != StageVenture {
		t.Fatalf("expected venture stage, got %s", got.Stage)
	}
	if err := l.JoinCompany(ctx, c.ID, "m5", "m5", 1_000); err != nil {
		t.Fatalf("join after growth: %v", err)
	}
	if err := l.JoinCompany(ctx, "missing", "m6", "m6", 1_000); !errors.Is(err, ErrCompanyNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLedgerLeaveCompany(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	c, _ := l.CreateCompany(ctx, CreateCompanyInput{Name: "Acme", OwnerID: "owner", OwnerMarketCap: 12_000_000, OwnerRank: RankManager})
	if err := l.JoinCompany(ctx, c.ID, "m1", "m1", 1_000); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := l.LeaveCompany(ctx, "owner"); !errors.Is(err, ErrOwnerCannotLeave) {
		t.Fatalf("expected owner error, got %v", err)
	}
	if err := l.LeaveCompany(ctx, "m1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, ok := l.UserCompanyID(ctx, "m1"); ok {
		t.Fatalf("member still affiliated")
	}
	if err := l.LeaveCompany(ctx, "m1"); !errors.Is(err, ErrNotInCompany) {
		t.Fatalf("expected not in company, got %v", err)
	}
}

func TestLedgerMembershipIsExclusive(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	a, _ := l.CreateCompany(ctx, CreateCompanyInput{Name: "A", OwnerID: "ownerA", OwnerMarketCap: 12_000_000, OwnerRank: RankManager})
	b, _ := l.CreateCompany(ctx, CreateCompanyInput{Name: "B", OwnerID: "ownerB", OwnerMarketCap: 12_000_000, OwnerRank: RankManager})
	if err := l.JoinCompany(ctx, a.ID, "m1", "m1", 1_000); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := l.JoinCompany(ctx, b.ID, "m1", "m1", 1_000); !errors.Is(err, ErrAlreadyAffiliated) {
		t.Fatalf("expected affiliation error, got %v", err)
	}
	if err := l.JoinCompany(ctx, b.ID, "ownerA", "ownerA", 1_000); !errors.Is(err, ErrAlreadyAffiliated) {
		t.Fatalf("owner joined a second company: %v", err)
	}
	if got, _ := l.GetCompany(ctx, b.ID); got.HasMember("m1") || got.HasMember("ownerA") {
		t.Fatalf("B gained a member from A: %+v", got.Members)
	}
	if id, _ := l.UserCompanyID(ctx, "ownerA"); id != a.ID {
		t.Fatalf("owner mapping changed to %q", id)
	}

	if err := l.LeaveCompany(ctx, "m1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := l.JoinCompany(ctx, b.ID, "m1", "m1", 1_000); err != nil {
		t.Fatalf("join after leaving: %v", err)
	}
}

func TestLedgerSyncMembershipNetsLockedCapital(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	c, _ := l.CreateCompany(ctx, CreateCompanyInput{Name: "Acme", OwnerID: "owner", OwnerMarketCap: 12_000_000, OwnerRank: RankManager})

	l.SyncMarketCap(ctx, "owner", 15_000_000)
	for range DailyQuota {
		l.SendRespect(ctx, "owner")
	}
	if !l.SyncMembership(ctx, "owner") {
		t.Fatalf("sync failed")
	}
	got, _ := l.GetCompany(ctx, c.ID)
	m := got.Members[0]
	if m.MarketCap != 13_000_000 || m.GivenRespectsToday != DailyQuota {
		t.Fatalf("unexpected owner snapshot %+v", m)
	}
	if l.SyncMembership(ctx, "stranger") {
		t.Fatalf("sync should fail for users without a company")
	}
}

func TestLedgerSweepMembersAppliesPenalties(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLedger(t)
	l.SyncMarketCap(ctx, "owner", 12_000_000)
	c, err := l.CreateCompany(ctx, CreateCompanyInput{Name: "Acme", OwnerID: "owner", OwnerMarketCap: 12_000_000, OwnerRank: RankManager})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	l.SyncMarketCap(ctx, "m1", 5_000_000)
	if err := l.JoinCompany(ctx, c.ID, "m1", "m1", 5_000_000); err != nil {
		t.Fatalf("join: %v", err)
	}

	clock.nextDay()
	if n := l.SweepMembers(ctx); n != 2 {
		t.Fatalf("expected 2 members synced, got %d", n)
	}
	got, _ := l.GetCompany(ctx, c.ID)
	if got.Members[0].MarketCap != 6_400_000 || got.Members[1].MarketCap != 3_500_000 {
		t.Fatalf("unexpected snapshots %+v", got.Members)
	}
	if !hasNotification(l.Notifications(ctx, "m1"), NotifyPenalty) {
		t.Fatalf("expected penalty notification")
	}
}

func TestLedgerCompanyRankingAndBankruptcy(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLedger(t)
	c, _ := l.CreateCompany(ctx, CreateCompanyInput{Name: "Acme", OwnerName: "Owner", OwnerID: "owner", OwnerMarketCap: 12_000_000, OwnerRank: RankManager})
	if err := l.JoinCompany(ctx, c.ID, "m1", "m1", 0); err != nil {
		t.Fatalf("join: %v", err)
	}

	// 10M * 0.8 sits below the startup floor; the creation day is already checked
	ranking := l.CompanyRanking(ctx)
	if len(ranking) != 1 || ranking[0].DaysBelowThreshold != 0 || ranking[0].MarketCap != 8_000_000 {
		t.Fatalf("unexpected ranking %+v", ranking)
	}

	for day := 1; day <= 2; day++ {
		clock.nextDay()
		l.CompanyRanking(ctx)
		ranking = l.CompanyRanking(ctx)
		if ranking[0].DaysBelowThreshold != day || ranking[0].IsBankrupt {
			t.Fatalf("day %d: unexpected state %+v", day, ranking[0].Company)
		}
	}

	clock.nextDay()
	ranking, bankrupted := l.SettleCompanies(ctx)
	if len(bankrupted) != 1 || !ranking[0].IsBankrupt || ranking[0].MarketCap != 0 {
		t.Fatalf("expected bankruptcy on third day, got %+v", ranking[0])
	}
	for _, id := range []string{"owner", "m1"} {
		if _, ok := l.UserCompanyID(ctx, id); ok {
			t.Fatalf("%s still affiliated", id)
		}
		if !hasNotification(l.Notifications(ctx, id), NotifyCompany) {
			t.Fatalf("%s not notified", id)
		}
	}
	if err := l.JoinCompany(ctx, c.ID, "late", "late", 1_000); !errors.Is(err, ErrCompanyBankrupt) {
		t.Fatalf("expected bankrupt error, got %v", err)
	}

	clock.nextDay()
	if _, again := l.SettleCompanies(ctx); len(again) != 0 {
		t.Fatalf("bankruptcy reported twice")
	}
}

func TestLedgerContribution(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	c, _ := l.CreateCompany(ctx, CreateCompanyInput{Name: "Acme", OwnerID: "owner", OwnerMarketCap: 12_000_000, OwnerRank: RankManager})
	_ = l.JoinCompany(ctx, c.ID, "m1", "m1", 30_000_000)

	got, err := l.Contribution(ctx, c.ID, "owner")
	if err != nil {
		t.Fatalf("contribution: %v", err)
	}
	if got.Rank != 2 || got.Percentage != 25 {
		t.Fatalf("unexpected contribution %+v", got)
	}
	if _, err := l.Contribution(ctx, "missing", "owner"); !errors.Is(err, ErrCompanyNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLedgerNotificationsReadState(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	l.ReceiveRespect(ctx, "u1", 1, "a")
	l.ReceiveRespect(ctx, "u1", 1, "b")

	list := l.Notifications(ctx, "u1")
	if len(list) != 2 || l.UnreadCount(ctx, "u1") != 2 {
		t.Fatalf("expected two unread notifications, got %d", len(list))
	}
	if list[0].FromUser != "b" {
		t.Fatalf("expected newest first, got %+v", list[0])
	}
	if !l.MarkAsRead(ctx, "u1", list[1].ID) || l.UnreadCount(ctx, "u1") != 1 {
		t.Fatalf("mark as read failed")
	}
	if l.MarkAsRead(ctx, "u1", "missing") {
		t.Fatalf("unknown notification marked")
	}
	l.MarkAllAsRead(ctx, "u1")
	if l.UnreadCount(ctx, "u1") != 0 {
		t.Fatalf("expected all read")
	}
}

func TestLedgerNotificationInboxIsBounded(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	for range maxNotifications + 5 {
		l.ReceiveRespect(ctx, "u1", 1, "a")
	}
	if got := len(l.Notifications(ctx, "u1")); got != maxNotifications {
		t.Fatalf("inbox holds %d", got)
	}
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("boom") }
func (brokenStore) Set(context.Context, string, []byte) error   { return errors.New("boom") }
func (brokenStore) Delete(context.Context, string) error        { return errors.New("boom") }

func TestLedgerStoreFailuresFallBackToDefaults(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(brokenStore{}, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if got := l.LoadMarketData(ctx, "u1"); got.MarketCap != InitialMarketCap {
		t.Fatalf("expected defaults, got %+v", got)
	}
	if got := l.SendRespect(ctx, "u1"); got.GivenRespectsToday != 1 {
		t.Fatalf("expected in-memory result, got %+v", got)
	}
	if len(l.ListCompanies(ctx)) != 0 || l.MarketCrash(ctx).IsActive {
		t.Fatalf("expected empty defaults")
	}
}

func TestLedgerCreditRespectUsesGivenGrowth(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	l.SetMarketCrashMode(ctx, true, 0.5)

	r := l.CreditRespect(ctx, "u1", 2, 20, "alice")
	if r.Growth != 20 || r.Data.MarketCap != 1020 || r.Data.ReceivedRespects != 2 {
		t.Fatalf("unexpected receipt %+v", r)
	}
}
