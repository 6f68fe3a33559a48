package telegram_api

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"rideguardian/internal/models"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

type stubCompanies struct{}

func (stubCompanies) GetCompany(ctx context.Context, companyID int64) (models.Company, error) {
	return models.Company{ID: companyID, Name: "Taxi Muster"}, nil
}

func testRide() models.Ride {
	return models.Ride{
		ID:             7,
		PickupTime:     time.Date(2025, 2, 1, 8, 15, 0, 0, time.UTC),
		PickupLocation: "Wrong Street 1, Berlin",
		Destination:    "Goetheplatz 4, 45468 Mülheim an der Ruhr",
	}
}

func TestNotifyCriticalSendsOnlyCritical(t *testing.T) {
	sender := new(mockSender)
	sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 42 &&
			msg.ParseMode == tgbotapi.ModeMarkdown &&
			containsAll(msg.Text, "Taxi Muster", "Fahrt #7", "Schichtbeginn am Betriebssitz") &&
			!containsAll(msg.Text, "Mindestdauer")
	})).Return(tgbotapi.Message{}, nil).Once()

	n := NewNotifier(sender, 42, stubCompanies{})
	n.NotifyCritical(context.Background(), 1, testRide(), []models.Violation{
		{RuleName: "Schichtbeginn am Betriebssitz", Severity: models.SeverityCritical, SeverityScore: 9, Description: "Erste Fahrt beginnt nicht am Betriebssitz"},
		{RuleName: "Mindestdauer", Severity: models.SeverityWarning, SeverityScore: 5},
	})
	sender.AssertExpectations(t)
}

func TestNotifyCriticalSkipsWithoutCritical(t *testing.T) {
	sender := new(mockSender)
	n := NewNotifier(sender, 42, stubCompanies{})
	n.NotifyCritical(context.Background(), 1, testRide(), []models.Violation{
		{RuleName: "Mindestdauer", Severity: models.SeverityWarning},
	})
	sender.AssertNotCalled(t, "Send", mock.Anything)
}

func TestNotifierDisabledAndSendErrors(t *testing.T) {
	var disabled *Notifier
	assert.False(t, disabled.Enabled())
	assert.False(t, NewNotifier(nil, 42, nil).Enabled())
	assert.False(t, NewNotifier(new(mockSender), 0, nil).Enabled())

	sender := new(mockSender)
	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("network down")).Once()
	n := NewNotifier(sender, 42, nil)
	assert.NotPanics(t, func() { n.SendText("Export fertig") })
	sender.AssertExpectations(t)
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
