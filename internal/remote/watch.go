package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
)

// wireNotification is the websocket message shape from the service.
type wireNotification struct {
	Type   string `json:"type"` // list_changed | list_deleted
	ListID string `json:"list_id"`
}

// WatchVisible implements Layer. It opens a websocket subscription scoped to
// the principal's visible lists and forwards change notifications until ctx
// is cancelled or the connection drops, then closes the channel. The engine
// owns reconnection; this layer never retries on its own.
func (c *Client) WatchVisible(ctx context.Context, principalID string) (<-chan Notification, error) {
	wsURL, err := c.watchURL(principalID)
	if err != nil {
		return nil, err
	}

	// A client-level timeout would tear down the long-lived stream, so the
	// handshake reuses the transport but not the timeout.
	handshake := &http.Client{Transport: c.HTTP.Transport}
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: handshake,
		HTTPHeader: map[string][]string{
			"Authorization": {"Bearer " + c.APIKey},
			"X-Device-ID":   {c.DeviceID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: watch dial: %v", ErrUnavailable, err)
	}

	ch := make(chan Notification)
	go func() {
		defer close(ch)
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Debug("remote watch closed", "err", err)
				}
				return
			}
			var wire wireNotification
			if err := json.Unmarshal(data, &wire); err != nil {
				slog.Warn("remote watch: bad notification", "err", err)
				continue
			}
			if wire.ListID == "" {
				continue
			}
			select {
			case ch <- Notification{ListID: wire.ListID, Deleted: wire.Type == "list_deleted"}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (c *Client) watchURL(principalID string) (string, error) {
	base := c.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "", fmt.Errorf("watch: unsupported base URL %q", c.BaseURL)
	}
	params := url.Values{}
	params.Set("member", principalID)
	return base + "/v1/lists/watch?" + params.Encode(), nil
}
