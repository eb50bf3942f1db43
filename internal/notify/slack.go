// Package notify pushes dispatch alerts to Slack: a message per missed
// call and per new ribbon deadline, so staff see them even with no
// dashboard open.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"

	"github.com/QueueDeck/QueueDeck/internal/feed"
	"github.com/QueueDeck/QueueDeck/internal/store"
)

type SlackNotifier struct {
	api     *slack.Client
	channel string
	subs    []*feed.Subscription
}

func NewSlackNotifier(token, channel string) *SlackNotifier {
	return &SlackNotifier{
		api:     slack.New(token),
		channel: channel,
	}
}

// Start subscribes to missed-call and deadline-task inserts. Posts happen
// on their own goroutine; a slow Slack API must not stall feed dispatch.
func (n *SlackNotifier) Start(f *feed.Feed) {
	n.subs = append(n.subs,
		f.Subscribe(store.TableMissedCalls, feed.OpInsert, nil, func(e feed.Event) {
			call, ok := e.Payload.(store.MissedCall)
			if !ok {
				return
			}
			go n.post(fmt.Sprintf(":telephone_receiver: Missed call from client %s at %s",
				shortID(call.ClientID), call.CreatedAt.Format("15:04")))
		}),
		f.Subscribe(store.TableDeadlineTasks, feed.OpInsert, nil, func(e feed.Event) {
			task, ok := e.Payload.(store.DeadlineTask)
			if !ok {
				return
			}
			go n.post(fmt.Sprintf(":calendar: Deadline %s for client %s: %s",
				task.Deadline.Format("2006-01-02"), shortID(task.ClientID), task.Note))
		}),
	)
}

func (n *SlackNotifier) post(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false)); err != nil {
		slog.Error("slack: post failed", "error", err)
	}
}

func (n *SlackNotifier) Stop() {
	for _, sub := range n.subs {
		sub.Cancel()
	}
	n.subs = nil
}

func shortID(id string) string {
	if len(id) > 6 {
		return id[:6]
	}
	return id
}
