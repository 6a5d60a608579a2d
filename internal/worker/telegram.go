package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"studiodesk/internal/domain"
	"studiodesk/internal/events"
	"studiodesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender is the part of the bot API used for staff notifications.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts studio events to a staff chat.
type TelegramNotifier struct {
	bot    TelegramSender
	chatID int64
}

func NewTelegramNotifier(bot TelegramSender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

func (n *TelegramNotifier) Notify(_ context.Context, task models.OutboxTask) error {
	note, err := notificationOf(task)
	if err != nil {
		return err
	}
	text, err := telegramText(note)
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableNotification = note.EventType == events.EventPayoutRecorded
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func telegramText(note Notification) (string, error) {
	var sb strings.Builder
	switch note.EventType {
	case events.EventBookingCreated, events.EventBookingStatusChanged:
		var p events.BookingEventPayload
		if err := json.Unmarshal(note.Payload, &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedTask, err)
		}
		if note.EventType == events.EventBookingCreated {
			fmt.Fprintf(&sb, "📅 New booking #%d\n", p.BookingID)
		} else {
			fmt.Fprintf(&sb, "🔄 Booking #%d: %s → %s\n", p.BookingID, p.PreviousStatus, p.Status)
		}
		fmt.Fprintf(&sb, "Client: %s\n", p.ClientName)
		if !p.Date.IsZero() {
			fmt.Fprintf(&sb, "When: %s %s, room %s\n", p.Date.Format(models.DateLayout), p.StartTime, p.RoomID)
		}
		for _, task := range p.AddedTasks {
			fmt.Fprintf(&sb, "• %s\n", task)
		}
	case events.EventPaymentRecorded, events.EventRefundRecorded, events.EventPayoutRecorded:
		var p events.LedgerEventPayload
		if err := json.Unmarshal(note.Payload, &p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedTask, err)
		}
		switch note.EventType {
		case events.EventPaymentRecorded:
			fmt.Fprintf(&sb, "💰 Payment %d for booking #%d (paid %d)\n", p.Amount, p.BookingID, p.PaidAmount)
		case events.EventRefundRecorded:
			fmt.Fprintf(&sb, "↩️ Refund %d for booking #%d (paid %d)\n", p.Amount, p.BookingID, p.PaidAmount)
		default:
			fmt.Fprintf(&sb, "🧾 Payout %d to staff #%d\n", p.Amount, p.RecipientID)
		}
		fmt.Fprintf(&sb, "Account #%d balance: %d\nRef: %s\n", p.AccountID, p.Balance, p.Reference)
	default:
		fmt.Fprintf(&sb, "%s\n%s\n", note.EventType, string(note.Payload))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// FanOutNotifier delivers every task to all notifiers. Any failure fails the
// attempt and the whole set is retried.
type FanOutNotifier struct {
	notifiers []domain.Notifier
}

func NewFanOutNotifier(notifiers ...domain.Notifier) *FanOutNotifier {
	return &FanOutNotifier{notifiers: notifiers}
}

func (f *FanOutNotifier) Notify(ctx context.Context, task models.OutboxTask) error {
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, task); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeadLetter forwards to every notifier that keeps a dead letter queue.
func (f *FanOutNotifier) DeadLetter(ctx context.Context, task models.OutboxTask) error {
	var errs []error
	for _, n := range f.notifiers {
		if dl, ok := n.(deadLetterer); ok {
			if err := dl.DeadLetter(ctx, task); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
