package realtime

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/quickchat/internal/client/models"
	"github.com/dmitrijs2005/quickchat/internal/common"
	"github.com/dmitrijs2005/quickchat/internal/logging"
)

// OnOnlineUsers subscribes fn to the presence roster event. Payloads that do
// not decode to a list of ids are dropped.
func OnOnlineUsers(ch Channel, fn func(userIDs []string)) *Subscription {
	return ch.Subscribe(common.EventOnlineUsers, func(data json.RawMessage) {
		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			return
		}
		fn(ids)
	})
}

// OnNewMessage subscribes fn to pushed chat messages.
func OnNewMessage(ch Channel, fn func(msg models.Message)) *Subscription {
	return ch.Subscribe(common.EventNewMessage, func(data json.RawMessage) {
		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		fn(msg)
	})
}

// Dialer opens channels against a fixed server URL.
type Dialer struct {
	URL string
	Log logging.Logger
}

func (d Dialer) Dial(ctx context.Context, userID string) (Channel, error) {
	c, err := Dial(ctx, d.URL, userID, d.Log)
	if err != nil {
		return nil, err
	}
	return c, nil
}
