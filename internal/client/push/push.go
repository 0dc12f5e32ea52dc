// Package push keeps a WebSocket open to the backbone and reports every
// notification it receives, so an account can sync as soon as something
// new is waiting instead of polling.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/logging"
)

const (
	defaultMinBackoff  = 1 * time.Second
	defaultMaxBackoff  = 60 * time.Second
	defaultReadTimeout = 90 * time.Second
	writeTimeout       = 10 * time.Second
)

// Notification is one frame sent by the backbone.
type Notification struct {
	// Type is "ExternalEventCreated" or "DatawalletModificationsCreated".
	Type string `json:"type"`
	// Index is the new highest index of the announced stream, when known.
	Index int64 `json:"index,omitempty"`
}

// TokenSource provides the bearer token presented on connect.
type TokenSource interface {
	Token() (string, error)
}

type Options struct {
	// URL is the ws:// or wss:// address of the push endpoint.
	URL    string
	Tokens TokenSource
	Dialer *websocket.Dialer

	MinBackoff time.Duration
	MaxBackoff time.Duration
	// ReadTimeout bounds the silence tolerated on an open connection. The
	// backbone pings more often than that.
	ReadTimeout time.Duration

	Logger logging.Logger
}

type Listener struct {
	opts  Options
	log   logging.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

func New(opts Options) *Listener {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = defaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(defaultMaxBackoff, opts.MinBackoff)
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Listener{opts: opts, log: opts.Logger.With("module", "push"), sleep: sleepCtx}
}

// Run connects and calls notify for every notification until ctx is
// cancelled. Lost connections are re-established with exponential backoff,
// which resets once a connection delivered a frame. Run returns ctx.Err()
// on cancellation; a rejected token ends it with common.ErrorUnauthorized.
func (l *Listener) Run(ctx context.Context, notify func(Notification)) error {
	backoff := l.opts.MinBackoff
	for {
		delivered, err := l.session(ctx, notify)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, common.ErrorUnauthorized) {
			return err
		}
		if delivered {
			backoff = l.opts.MinBackoff
		}
		l.log.Warn(ctx, "push connection lost", "error", err, "retry_in", backoff)
		if err := l.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = min(backoff*2, l.opts.MaxBackoff)
	}
}

// session runs one connection. delivered reports whether at least one frame
// arrived on it.
func (l *Listener) session(ctx context.Context, notify func(Notification)) (delivered bool, err error) {
	header := http.Header{}
	if l.opts.Tokens != nil {
		tok, err := l.opts.Tokens.Token()
		if err != nil {
			return false, fmt.Errorf("push token: %w", err)
		}
		header.Set(common.AuthorizationHeader, common.BearerPrefix+tok)
	}

	ws, resp, err := l.opts.Dialer.DialContext(ctx, l.opts.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return false, fmt.Errorf("push dial: %w", common.ErrorUnauthorized)
		}
		return false, fmt.Errorf("push dial: %w", err)
	}
	defer ws.Close()
	l.log.Debug(ctx, "push connected", "url", l.opts.URL)

	// Closing the socket is the only way to interrupt a blocked read.
	stop := context.AfterFunc(ctx, func() {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
		_ = ws.Close()
	})
	defer stop()

	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(l.opts.ReadTimeout))
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
	})

	for {
		_ = ws.SetReadDeadline(time.Now().Add(l.opts.ReadTimeout))
		kind, msg, err := ws.ReadMessage()
		if err != nil {
			return delivered, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		var n Notification
		if err := json.Unmarshal(msg, &n); err != nil {
			l.log.Warn(ctx, "malformed push frame", "error", err)
			continue
		}
		delivered = true
		notify(n)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
