package bot

import (
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

// Sender is the part of *tele.Bot the notifier uses.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier pushes job failures to admin chats.
type Notifier struct {
	sender Sender
	chats  []int64
}

// NewNotifier creates a notifier for the given admin chat ids.
func NewNotifier(sender Sender, chats []int64) *Notifier {
	return &Notifier{sender: sender, chats: chats}
}

// NewOfflineNotifier creates a send-only bot for processes that do not poll
// for updates.
func NewOfflineNotifier(token string, chats []int64) (*Notifier, error) {
	b, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier bot: %w", err)
	}
	return NewNotifier(b, chats), nil
}

// JobFailed reports a failed background job. It matches scheduler.FailureFunc.
func (n *Notifier) JobFailed(job string, err error) {
	n.Notify(fmt.Sprintf("⚠️ Job %s failed: %v", job, err))
}

// Notify sends text to every admin chat. Delivery errors are logged only.
func (n *Notifier) Notify(text string) {
	for _, id := range n.chats {
		if _, err := n.sender.Send(tele.ChatID(id), text); err != nil {
			log.Warn().Err(err).Int64("chat_id", id).Msg("Failed to deliver admin notification")
		}
	}
}
