package notify

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/just-nadir/justpos-sync/internal/config"
	"github.com/just-nadir/justpos-sync/internal/logger"
)

// Listener maintains the store's subscription to the cloud notifier and
// invokes onWake for every data_update. It also wakes once per successful
// (re)connect, since notifications may have been missed while offline.
type Listener struct {
	apiURL  string
	storeID string
	token   string
	onWake  func()

	backoffMin time.Duration
	backoffMax time.Duration
}

func NewListener(storeCfg config.StoreConfig, syncCfg config.SyncConfig, onWake func()) *Listener {
	return &Listener{
		apiURL:     storeCfg.APIURL,
		storeID:    storeCfg.ID,
		token:      storeCfg.APIToken,
		onWake:     onWake,
		backoffMin: syncCfg.GetReconnectMin(),
		backoffMax: syncCfg.GetReconnectMax(),
	}
}

// Run blocks until ctx is cancelled, reconnecting with bounded exponential
// backoff. Connection failures are quiet by design: offline stores are the
// normal case, not an error.
func (l *Listener) Run(ctx context.Context) {
	wsURL, err := l.endpoint()
	if err != nil {
		logger.Log.Error("Invalid notifier endpoint", zap.Error(err))
		return
	}

	backoff := l.backoffMin
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
			HTTPHeader: http.Header{"Authorization": []string{"Bearer " + l.token}},
		})
		if err != nil {
			logger.Log.Debug("Notifier connect failed", zap.Error(err))
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, l.backoffMax)
			continue
		}

		logger.Log.Info("Connected to cloud notifier", zap.String("store_id", l.storeID))
		backoff = l.backoffMin
		l.onWake()

		l.readLoop(ctx, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "")

		if !sleep(ctx, backoff) {
			return
		}
	}
}

func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			logger.Log.Debug("Notifier connection lost", zap.Error(err))
			return
		}
		l.onWake()
	}
}

// endpoint converts the configured HTTP API URL to the websocket endpoint.
func (l *Listener) endpoint() (string, error) {
	u, err := url.Parse(l.apiURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = u.Path + "/api/v1/sync/ws"
	q := u.Query()
	q.Set("store_id", l.storeID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
