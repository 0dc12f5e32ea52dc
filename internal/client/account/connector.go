package account

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/datawallet/internal/client/backbone"
	"github.com/dmitrijs2005/datawallet/internal/client/controllers"
	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/client/push"
	"github.com/dmitrijs2005/datawallet/internal/client/syncer"
	"github.com/dmitrijs2005/datawallet/internal/logging"
)

// API is the backbone surface an open account talks to.
type API interface {
	syncer.Backbone
	controllers.FileUploader
}

// Connection is a signed-in session with the backbone.
type Connection struct {
	API     API
	Address string
	// Listen streams push notifications until ctx ends. Nil when the
	// backbone offers no push channel.
	Listen func(ctx context.Context, notify func(push.Notification)) error
}

// Connector signs accounts in to a backbone.
type Connector interface {
	Salt(ctx context.Context, username string) ([]byte, error)
	Register(ctx context.Context, username string, salt, verifier []byte) (address string, err error)
	Connect(ctx context.Context, username string, verifier []byte, deviceID string) (*Connection, error)
}

// BackboneConnector is the Connector of a real backbone.
type BackboneConnector struct {
	BaseURL           string
	Credentials       backbone.ClientCredentials
	HTTPClient        *http.Client
	RequestsPerSecond float64
	Push              bool
	Logger            logging.Logger
}

func (b *BackboneConnector) client(tokens backbone.TokenSource, deviceID string) *backbone.Client {
	return backbone.New(backbone.Options{
		BaseURL:           b.BaseURL,
		HTTPClient:        b.HTTPClient,
		Tokens:            tokens,
		DeviceID:          deviceID,
		RequestsPerSecond: b.RequestsPerSecond,
		Logger:            b.Logger,
	})
}

func (b *BackboneConnector) Salt(ctx context.Context, username string) ([]byte, error) {
	return b.client(nil, "").GetSalt(ctx, username)
}

func (b *BackboneConnector) Register(ctx context.Context, username string, salt, verifier []byte) (string, error) {
	resp, err := b.client(nil, "").CreateIdentity(ctx, backbone.CreateIdentityRequest{
		Username: username,
		Salt:     salt,
		Verifier: verifier,
	})
	if err != nil {
		return "", err
	}
	return resp.Address, nil
}

// Connect logs in with the password grant. The token source refreshes in
// the background for as long as the account stays open, so it must not be
// bound to the caller's ctx.
func (b *BackboneConnector) Connect(ctx context.Context, username string, verifier []byte, deviceID string) (*Connection, error) {
	sess, err := b.client(nil, deviceID).Login(context.WithoutCancel(ctx), b.Credentials, username, verifier)
	if err != nil {
		return nil, err
	}
	if sess.Address == "" {
		return nil, fmt.Errorf("backbone: login of %s returned no address", username)
	}

	conn := &Connection{API: b.client(sess.Tokens, deviceID), Address: sess.Address}
	if b.Push {
		l := push.New(push.Options{URL: pushURL(b.BaseURL), Tokens: sess.Tokens, Logger: b.Logger})
		conn.Listen = l.Run
	}
	return conn, nil
}

func pushURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/v1/Push"
}

var errOffline = fmt.Errorf("%w: account opened offline", backbone.ErrUnavailable)

// offlineAPI stands in for the backbone when it could not be reached at
// open time. Local work continues; every sync reports the backbone as
// unavailable until the account is reopened.
type offlineAPI struct{}

func (offlineAPI) GetExternalEvents(context.Context, int64, int) ([]models.ExternalEvent, error) {
	return nil, errOffline
}

func (offlineAPI) GetModifications(context.Context, int64, int) ([]models.RemoteModification, error) {
	return nil, errOffline
}

func (offlineAPI) PushModifications(context.Context, []backbone.PushItem) ([]backbone.PushResult, error) {
	return nil, errOffline
}

func (offlineAPI) ReportSyncErrors(context.Context, []backbone.SyncErrorItem) error {
	return errOffline
}

func (offlineAPI) UploadFileContent(context.Context, string, []byte) error {
	return errOffline
}
