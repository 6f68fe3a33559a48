package telegram_api

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"rideguardian/internal/formatters"
	"rideguardian/internal/models"
)

// Sender - отправка сообщения в чат. Реализуется *BotClient.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// CompanyLookup - имя тенанта для заголовка уведомления.
type CompanyLookup interface {
	GetCompany(ctx context.Context, companyID int64) (models.Company, error)
}

// Notifier отправляет уведомления о критических нарушениях и готовых выгрузках в один чат.
// Нулевой chatID или nil sender отключают отправку.
type Notifier struct {
	sender    Sender
	chatID    int64
	companies CompanyLookup
}

// NewNotifier создает уведомитель.
func NewNotifier(sender Sender, chatID int64, companies CompanyLookup) *Notifier {
	return &Notifier{sender: sender, chatID: chatID, companies: companies}
}

// Enabled - уведомления настроены.
func (n *Notifier) Enabled() bool {
	return n != nil && n.sender != nil && n.chatID != 0
}

// NotifyCritical отправляет только критические нарушения; остальные игнорируются.
func (n *Notifier) NotifyCritical(ctx context.Context, companyID int64, ride models.Ride, violations []models.Violation) {
	if !n.Enabled() {
		return
	}
	var critical []models.Violation
	for _, v := range violations {
		if v.Severity == models.SeverityCritical {
			critical = append(critical, v)
		}
	}
	if len(critical) == 0 {
		return
	}
	company := models.Company{ID: companyID, Name: fmt.Sprintf("Unternehmen #%d", companyID)}
	if n.companies != nil {
		if c, err := n.companies.GetCompany(ctx, companyID); err == nil {
			company = c
		}
	}
	n.SendText(formatters.FormatCriticalViolations(company, ride, critical))
}

// SendText отправляет текст в Markdown. Ошибки отправки только логируются.
func (n *Notifier) SendText(text string) {
	if !n.Enabled() || strings.TrimSpace(text) == "" {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.sender.Send(msg); err != nil {
		log.Printf("Notifier.SendText: ошибка отправки уведомления в чат %d: %v", n.chatID, err)
	}
}
