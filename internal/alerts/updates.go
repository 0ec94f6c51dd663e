package alerts

import (
	"context"
	"strconv"
	"time"
)

// Update is one entry from the Telegram getUpdates long poll.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      *Chat  `json:"chat"`
	From      *User  `json:"from"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// GetUpdates long-polls for operator messages newer than offset. The poll
// duration is passed to Telegram so an idle call blocks server-side instead
// of spinning; the request context gets extra headroom on top of it.
func (t *Telegram) GetUpdates(ctx context.Context, offset int64, poll time.Duration) ([]Update, error) {
	if !t.enabled {
		return nil, nil
	}
	seconds := int(poll / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	params := map[string]any{
		"offset":  offset,
		"timeout": seconds,
	}
	reqCtx, cancel := context.WithTimeout(ctx, poll+10*time.Second)
	defer cancel()
	var updates []Update
	if err := t.call(reqCtx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// ChatIDInt parses the configured chat id for comparing against incoming
// messages.
func (t *Telegram) ChatIDInt() (int64, error) {
	return strconv.ParseInt(t.chatID, 10, 64)
}
