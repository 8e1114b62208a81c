package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "promotion/internal/cli"
	"promotion/internal/economy"
	"promotion/internal/social"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)

	styled     = true
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 2)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

// configureOutput drops colour and borders when stdout is piped.
func configureOutput() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		styled = false
		color.NoColor = true
	}
}

func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

type marketPayload struct {
	Market    economy.UserMarketData `json:"market"`
	Rank      economy.Rank           `json:"rank"`
	RankName  string                 `json:"rank_name"`
	Quota     economy.QuotaProgress  `json:"quota"`
	Warning   bool                   `json:"warning"`
	Crash     economy.MarketCrash    `json:"crash"`
	Unread    int                    `json:"unread_notifications"`
	CompanyID string                 `json:"company_id"`
}

type respectPayload struct {
	Receipt  economy.RespectReceipt `json:"receipt"`
	Quota    economy.QuotaProgress  `json:"quota"`
	Dividend *economy.Dividend      `json:"dividend"`
}

type shareholdersPayload struct {
	UserID       string                `json:"user_id"`
	Shareholders []economy.Shareholder `json:"shareholders"`
}

type playerRow struct {
	social.User
	Position int          `json:"position"`
	Rank     economy.Rank `json:"rank"`
}

type playersPayload struct {
	Players []playerRow `json:"players"`
}

type rankingPayload struct {
	Companies []economy.RankedCompany `json:"companies"`
}

type companyPayload struct {
	economy.Company
	MarketCap          int64                    `json:"market_cap"`
	StageName          string                   `json:"stage_name"`
	MaxMembers         int                      `json:"max_members"`
	OrganizationFactor float64                  `json:"organization_factor"`
	Maintenance        economy.StageMaintenance `json:"maintenance"`
}

type postPayload struct {
	social.Post
	ImpactRank   economy.ImpactRank `json:"impact_rank"`
	CommentCount int                `json:"comment_count"`
}

type postsPayload struct {
	Posts []postPayload `json:"posts"`
}

type notificationsPayload struct {
	Notifications []economy.Notification `json:"notifications"`
	Unread        int                    `json:"unread"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Fprintln(os.Stderr, msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func panel(title string, lines ...string) {
	if !styled {
		fmt.Printf("\n== %s ==\n%s\n\n", strings.ToUpper(title), strings.Join(lines, "\n"))
		return
	}
	body := lipgloss.JoinVertical(lipgloss.Left, append([]string{titleStyle.Render(title), ""}, lines...)...)
	fmt.Println(panelStyle.Render(body))
}

func renderDashboard(raw map[string]any, sess cl.Session) error {
	d, err := decodeInto[marketPayload](raw)
	if err != nil {
		return err
	}
	lines := []string{
		fmt.Sprintf("Market Cap:   ¥%s", comma(d.Market.MarketCap)),
		fmt.Sprintf("Rank:         %s (%s)", d.Rank, d.RankName),
		fmt.Sprintf("Respects:     %d received", d.Market.ReceivedRespects),
		fmt.Sprintf("Daily Quota:  %s", quotaBar(d.Quota)),
	}
	if d.CompanyID != "" {
		lines = append(lines, fmt.Sprintf("Company:      %s", d.CompanyID))
	}
	if d.Unread > 0 {
		lines = append(lines, fmt.Sprintf("Inbox:        %s", warn.Sprintf("%d unread", d.Unread)))
	}
	panel(sess.UserName+" の市場データ", lines...)
	if d.Crash.IsActive {
		printError(fmt.Sprintf("MARKET CRASH: respect growth x%.2f", d.Crash.GrowthRateMultiplier))
	}
	if d.Warning {
		printWarn(fmt.Sprintf("ノルマ未達成です (%d/%d)。日付が変わると時価総額が%d%%下落します。",
			d.Quota.Current, d.Quota.Quota, economy.PenaltyPercent))
	}
	return nil
}

func quotaBar(q economy.QuotaProgress) string {
	filled := int(min(q.Current, q.Quota))
	bar := strings.Repeat("■", filled) + strings.Repeat("□", int(q.Quota)-filled)
	text := fmt.Sprintf("%s %d/%d", bar, q.Current, q.Quota)
	if q.Current >= q.Quota {
		return success.Sprint(text)
	}
	return warn.Sprint(text)
}

func renderRespect(raw map[string]any, to string) error {
	out, err := decodeInto[respectPayload](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Sent respect to %s: %s", to, colorizeYen(out.Receipt.Growth)))
	fmt.Printf("Their market cap: ¥%s (%s)\n", comma(out.Receipt.Data.MarketCap), out.Receipt.Rank.New)
	if out.Receipt.Rank.Promoted {
		accent.Printf("%s was promoted to %s!\n", to, out.Receipt.Rank.New)
	}
	if out.Dividend != nil {
		accent.Printf("Dividend ¥%s paid to %s\n", comma(out.Dividend.Amount), out.Dividend.ShareholderID)
	}
	fmt.Printf("Your quota: %s\n", quotaBar(out.Quota))
	return nil
}

func renderShareholders(raw map[string]any) error {
	out, err := decodeInto[shareholdersPayload](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== SHAREHOLDERS OF %s ==\n", out.UserID)
	if len(out.Shareholders) == 0 {
		printInfo("No investors yet.")
		return nil
	}
	fmt.Printf("%-6s %-20s %10s\n", "RANK", "INVESTOR", "RESPECTS")
	for _, s := range out.Shareholders {
		fmt.Printf("%-6d %-20s %10d\n", s.Rank, truncate(s.UserName, 20), s.InvestmentCount)
	}
	fmt.Println()
	return nil
}

func renderPlayers(raw map[string]any, self string) error {
	out, err := decodeInto[playersPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== PLAYER RANKING ==")
	if len(out.Players) == 0 {
		printInfo("No players yet.")
		return nil
	}
	fmt.Printf("%-6s %-20s %-8s %10s %18s\n", "RANK", "PLAYER", "TITLE", "RESPECTS", "MARKET CAP")
	for _, p := range out.Players {
		name := truncate(p.UserName, 20)
		if p.ID == self {
			name = accent.Sprint(name)
		}
		fmt.Printf("%-6d %-20s %-8s %10d %18s\n",
			p.Position, name, p.Rank, p.ReceivedRespects, "¥"+comma(p.MarketCap))
	}
	fmt.Println()
	return nil
}

func renderCompanyRanking(raw map[string]any) error {
	out, err := decodeInto[rankingPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== COMPANY RANKING ==")
	if len(out.Companies) == 0 {
		printInfo("No companies yet.")
		return nil
	}
	fmt.Printf("%-6s %-24s %-10s %8s %18s  %s\n", "RANK", "NAME", "STAGE", "MEMBERS", "MARKET CAP", "ID")
	for _, c := range out.Companies {
		name := truncate(c.Name, 24)
		if c.IsBankrupt {
			name = danger.Sprint(name)
		}
		fmt.Printf("%-6d %-24s %-10s %8d %18s  %s\n",
			c.Rank, name, c.Stage.Name(), len(c.Members), "¥"+comma(c.MarketCap), c.ID)
	}
	fmt.Println()
	return nil
}

func renderCompany(raw map[string]any) error {
	c, err := decodeInto[companyPayload](raw)
	if err != nil {
		return err
	}
	members := strconv.Itoa(len(c.Members))
	if c.MaxMembers > 0 {
		members += "/" + strconv.Itoa(c.MaxMembers)
	}
	lines := []string{
		fmt.Sprintf("ID:           %s", c.ID),
		fmt.Sprintf("Stage:        %s", c.StageName),
		fmt.Sprintf("Market Cap:   ¥%s", comma(c.MarketCap)),
		fmt.Sprintf("Members:      %s", members),
		fmt.Sprintf("Organization: x%.1f", c.OrganizationFactor),
	}
	switch {
	case c.IsBankrupt:
		lines = append(lines, danger.Sprint("BANKRUPT"))
	case !c.Maintenance.MeetsThreshold:
		lines = append(lines, warn.Sprintf("Below ¥%s for %d day(s); bankruptcy after %d",
			comma(c.Maintenance.RequiredMarketCap), c.DaysBelowThreshold, economy.BankruptcyThresholdDays))
	}
	if c.Description != "" {
		lines = append(lines, "", c.Description)
	}
	panel(c.Name, lines...)

	fmt.Printf("%-20s %16s %8s\n", "MEMBER", "MARKET CAP", "GIVEN")
	for _, m := range c.Members {
		name := truncate(m.UserName, 20)
		if m.UserID == c.OwnerID {
			name = accent.Sprint(name)
		}
		fmt.Printf("%-20s %16s %8d\n", name, "¥"+comma(m.MarketCap), m.GivenRespectsToday)
	}
	fmt.Println()
	return nil
}

func renderContribution(raw map[string]any) error {
	c, err := decodeInto[economy.Contribution](raw)
	if err != nil {
		return err
	}
	if c.Rank == 0 {
		return nil
	}
	fmt.Printf("Your contribution: %.1f%% (#%d)\n", c.Percentage, c.Rank)
	return nil
}

func renderRequirements(raw map[string]any) error {
	req, err := decodeInto[economy.Requirements](raw)
	if err != nil {
		return err
	}
	if req.CanCreate {
		printSuccess("You can found a company.")
		return nil
	}
	printWarn("You cannot found a company yet:")
	for _, r := range req.Reasons {
		fmt.Printf("  - %s\n", r)
	}
	return nil
}

func renderPosts(raw map[string]any) error {
	out, err := decodeInto[postsPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== IR RELEASES ==")
	if len(out.Posts) == 0 {
		printInfo("No posts yet.")
		return nil
	}
	for _, p := range out.Posts {
		fmt.Printf("[%s] %s  %s  ¥%s  %d comment(s)\n",
			p.ImpactRank.Rank, p.CreatedAt.Local().Format("01/02 15:04"),
			truncate(p.UserID, 16), comma(p.ImpactAmount), p.CommentCount)
		fmt.Printf("    %s\n", truncate(strings.ReplaceAll(p.Content, "\n", " "), 72))
		neutral.Printf("    id: %s\n", p.ID)
	}
	fmt.Println()
	return nil
}

func renderPostCreated(raw map[string]any) error {
	p, err := decodeInto[postPayload](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Published (%s %s): estimated impact ¥%s",
		p.ImpactRank.Rank, p.ImpactRank.Label, comma(p.ImpactAmount)))
	return nil
}

func renderNotifications(raw map[string]any) error {
	out, err := decodeInto[notificationsPayload](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== NOTIFICATIONS (%d unread) ==\n", out.Unread)
	if len(out.Notifications) == 0 {
		printInfo("Inbox is empty.")
		return nil
	}
	for _, n := range out.Notifications {
		mark := " "
		if !n.IsRead {
			mark = warn.Sprint("●")
		}
		fmt.Printf("%s %s %-18s %s\n", mark, n.Timestamp.Local().Format("01/02 15:04"), n.Title, n.Message)
	}
	fmt.Println()
	return nil
}

func renderCrash(raw map[string]any) error {
	c, err := decodeInto[economy.MarketCrash](raw)
	if err != nil {
		return err
	}
	if !c.IsActive {
		printSuccess("Market is normal.")
		return nil
	}
	since := ""
	if c.ActivatedAt != nil {
		since = " since " + c.ActivatedAt.Local().Format(time.DateTime)
	}
	printError(fmt.Sprintf("MARKET CRASH%s: respect growth x%.2f", since, c.GrowthRateMultiplier))
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func colorizeYen(v int64) string {
	text := "¥" + comma(v)
	switch {
	case v > 0:
		return success.Sprint("+" + text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
