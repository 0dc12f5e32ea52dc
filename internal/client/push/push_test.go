package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/datawallet/internal/common"
)

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRun_DeliversAndReconnects(t *testing.T) {
	var conns atomic.Int32
	var authHeaders sync.Map
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := conns.Add(1)
		authHeaders.Store(n, r.Header.Get("Authorization"))
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		if n == 1 {
			_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ExternalEventCreated","index":7}`))
			_ = ws.WriteMessage(websocket.TextMessage, []byte(`not json`))
			_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"DatawalletModificationsCreated"}`))
			return
		}
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ExternalEventCreated","index":8}`))
		// Hold the connection until the client goes away.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	l := New(Options{URL: wsURL(srv), Tokens: staticToken("tok"), MinBackoff: time.Millisecond})
	var slept []time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []Notification
	err := l.Run(ctx, func(n Notification) {
		got = append(got, n)
		if len(got) == 3 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []Notification{
		{Type: "ExternalEventCreated", Index: 7},
		{Type: "DatawalletModificationsCreated"},
		{Type: "ExternalEventCreated", Index: 8},
	}, got)
	assert.Equal(t, []time.Duration{time.Millisecond}, slept)

	h, _ := authHeaders.Load(int32(1))
	assert.Equal(t, "Bearer tok", h)
}

func TestRun_BackoffGrowsWithoutDeliveries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	l := New(Options{URL: wsURL(srv), MinBackoff: time.Second, MaxBackoff: 3 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var slept []time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		if len(slept) == 4 {
			cancel()
		}
		return ctx.Err()
	}

	err := l.Run(ctx, func(Notification) {})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}, slept)
}

func TestRun_UnauthorizedStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	l := New(Options{URL: wsURL(srv)})
	err := l.Run(context.Background(), func(Notification) {})
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestNew_Defaults(t *testing.T) {
	l := New(Options{URL: "ws://example"})
	assert.Equal(t, defaultMinBackoff, l.opts.MinBackoff)
	assert.Equal(t, defaultMaxBackoff, l.opts.MaxBackoff)
	assert.Equal(t, defaultReadTimeout, l.opts.ReadTimeout)
	assert.NotNil(t, l.opts.Dialer)
}
