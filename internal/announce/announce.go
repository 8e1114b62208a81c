// Package announce fans economy events out to external channels.
package announce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"promotion/internal/economy"
)

type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier delivers to every sender; one failing sender does not stop the
// others.
type Notifier struct {
	senders []Sender
	log     *slog.Logger
}

func NewNotifier(logger *slog.Logger, senders ...Sender) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{senders: senders, log: logger.With("component", "announce")}
}

func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

func (n *Notifier) Notify(ctx context.Context, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.log.Error("announcement failed", "sender", s.Name(), "title", title, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.log.Debug("announcement sent", "sender", s.Name(), "title", title)
	}
	return errors.Join(errs...)
}

func (n *Notifier) Bankruptcies(ctx context.Context, companies []economy.Company) error {
	var errs []error
	for _, c := range companies {
		msg := fmt.Sprintf("%s (%d members) missed the %s floor for %d days and is out of business.",
			c.Name, len(c.Members), c.Stage.Name(), economy.BankruptcyThresholdDays)
		errs = append(errs, n.Notify(ctx, "Bankruptcy", msg))
	}
	return errors.Join(errs...)
}

// Ranking posts the top entries of a company ranking.
func (n *Notifier) Ranking(ctx context.Context, ranking []economy.RankedCompany, top int) error {
	msg := FormatRanking(ranking, top)
	if msg == "" {
		return nil
	}
	return n.Notify(ctx, "Company ranking", msg)
}

func FormatRanking(ranking []economy.RankedCompany, top int) string {
	var b strings.Builder
	for _, r := range ranking {
		if top > 0 && r.Rank > top {
			break
		}
		if r.IsBankrupt {
			continue
		}
		fmt.Fprintf(&b, "%d. %s  ¥%d  %s\n", r.Rank, r.Name, r.MarketCap, r.Label)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (n *Notifier) MarketCrash(ctx context.Context, c economy.MarketCrash) error {
	if !c.IsActive {
		return n.Notify(ctx, "Market recovered", "Respect growth is back to normal.")
	}
	return n.Notify(ctx, "Market crash", fmt.Sprintf("Respect growth is scaled by %.2f until further notice.", c.GrowthRateMultiplier))
}
