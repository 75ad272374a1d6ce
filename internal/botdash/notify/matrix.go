package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// MatrixConfig holds the credentials of the notice-posting account.
type MatrixConfig struct {
	Homeserver  string
	UserID      string
	AccessToken string
}

// MatrixClient is a send-only Matrix client. It never syncs, so it needs no
// sync store.
type MatrixClient struct {
	client *mautrix.Client
}

// NewMatrixClient builds a client for cfg.
func NewMatrixClient(cfg MatrixConfig) (*MatrixClient, error) {
	if cfg.Homeserver == "" || cfg.AccessToken == "" {
		return nil, fmt.Errorf("matrix: homeserver and access token are required")
	}
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}
	return &MatrixClient{client: client}, nil
}

// SendNotice posts message to roomID as an m.notice.
func (c *MatrixClient) SendNotice(ctx context.Context, roomID, message string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    message,
	}
	if _, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content); err != nil {
		return fmt.Errorf("matrix: send notice: %w", err)
	}
	return nil
}

// JoinRoom joins roomID so notices can be posted to it.
func (c *MatrixClient) JoinRoom(ctx context.Context, roomID string) error {
	if _, err := c.client.JoinRoomByID(ctx, id.RoomID(roomID)); err != nil {
		// Homeservers answer M_FORBIDDEN when the account is already a
		// member; posting still works then.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("matrix: join refused, continuing", "room", roomID)
			return nil
		}
		return fmt.Errorf("matrix: join %s: %w", roomID, err)
	}
	return nil
}
