package economy

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotifyInvestment NotificationType = "investment"
	NotifyHuman      NotificationType = "human"
	NotifyPromotion  NotificationType = "promotion"
	NotifyDemotion   NotificationType = "demotion"
	NotifyPenalty    NotificationType = "penalty"
	NotifyCompany    NotificationType = "company"
)

// maxNotifications bounds each user's inbox.
const maxNotifications = 100

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	IsRead    bool             `json:"is_read"`
	FromUser  string           `json:"from_user,omitempty"`
}

func newNotification(userID string, typ NotificationType, title, message string, now time.Time) Notification {
	return Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Timestamp: now.UTC(),
	}
}

func investmentNotice(userID, fromName string, growth int64, now time.Time) Notification {
	n := newNotification(userID, NotifyInvestment, "[CAPITAL IN]",
		fmt.Sprintf("%s氏があなたの活動に投資を実行しました (+¥%s)", fromName, formatYen(growth)), now)
	n.FromUser = fromName
	return n
}

func promotionNotice(userID string, rank Rank, now time.Time) Notification {
	return newNotification(userID, NotifyPromotion, "[PROMOTION]",
		fmt.Sprintf("あなたの時価総額が上昇し、役職が「%s」に昇進しました", rank), now)
}

func demotionNotice(userID string, change RankChange, now time.Time) Notification {
	return newNotification(userID, NotifyDemotion, "[DEMOTION]",
		fmt.Sprintf("役職が「%s」から「%s」に降格しました", change.Old, change.New), now)
}

func penaltyNotice(userID string, roll Rollover, now time.Time) Notification {
	return newNotification(userID, NotifyPenalty, "[MARKET UPDATE]",
		fmt.Sprintf("昨日のノルマ未達成 (%d/%d) により時価総額が ¥%s → ¥%s に下落しました",
			roll.YesterdayRespects, DailyQuota, formatYen(roll.OldMarketCap), formatYen(roll.NewMarketCap)), now)
}

func dividendNotice(userID string, amount int64, now time.Time) Notification {
	return newNotification(userID, NotifyInvestment, "[DIVIDEND]",
		fmt.Sprintf("筆頭株主として配当 ¥%s を受け取りました", formatYen(amount)), now)
}

func bankruptcyNotice(userID string, c Company, now time.Time) Notification {
	return newNotification(userID, NotifyCompany, "[BANKRUPTCY]",
		fmt.Sprintf("%s が経営破綻しました。所属が解除されました", c.Name), now)
}

func commentNotice(userID, fromName, excerpt string, now time.Time) Notification {
	n := newNotification(userID, NotifyHuman, "[INSIGHT]",
		fmt.Sprintf("%s氏があなたのIRにコメントしました: %s", fromName, excerpt), now)
	n.FromUser = fromName
	return n
}

// prependNotification puts n first and trims the inbox.
func prependNotification(list []Notification, n Notification) []Notification {
	out := make([]Notification, 0, len(list)+1)
	out = append(out, n)
	out = append(out, list...)
	if len(out) > maxNotifications {
		out = out[:maxNotifications]
	}
	return out
}
