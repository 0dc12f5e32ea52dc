// Package httpapi exposes the backbone over HTTP: the OAuth2 token
// endpoint, the REST API used by clients under /api/v1, the push
// WebSocket and an optional admin surface for injecting external events.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/datawallet/internal/logging"
	"github.com/dmitrijs2005/datawallet/internal/server/auth"
	"github.com/dmitrijs2005/datawallet/internal/server/models"
	"github.com/dmitrijs2005/datawallet/internal/server/services"
)

type IdentityService interface {
	Register(ctx context.Context, username string, salt, verifier []byte) (*models.Identity, error)
	GetSalt(ctx context.Context, username string) ([]byte, error)
	Login(ctx context.Context, clientID, clientSecret, username, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, clientID, clientSecret, refreshToken string) (*services.TokenPair, error)
	Authenticate(token string) (*auth.Claims, error)
}

type DatawalletService interface {
	Push(ctx context.Context, identityID, deviceID string, items []services.PushItem) ([]services.PushResult, error)
	List(ctx context.Context, identityID string, localIndex int64, pageSize int) ([]*models.Modification, error)
}

type EventService interface {
	List(ctx context.Context, identityID string, cursor int64, pageSize int) ([]*models.ExternalEvent, error)
	ReportSyncErrors(ctx context.Context, identityID string, items []services.SyncError) error
	Inject(ctx context.Context, username, eventType string, payload json.RawMessage) (*models.ExternalEvent, error)
}

type FileService interface {
	PresignUpload(ctx context.Context, identityID, fileID string, size int64) (string, error)
	PresignDownload(ctx context.Context, identityID, fileID string) (string, error)
}

// PushServer holds a WebSocket open for an authenticated identity.
type PushServer interface {
	Serve(w http.ResponseWriter, r *http.Request, identityID string)
}

type Options struct {
	Identities IdentityService
	Datawallet DatawalletService
	Events     EventService
	Files      FileService
	Push       PushServer
	// AdminSecret enables the admin routes when not empty.
	AdminSecret string
	Logger      logging.Logger
}

type handler struct {
	opts Options
	log  logging.Logger
}

// NewRouter builds the gin engine serving every route of the backbone.
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	h := &handler{opts: opts, log: opts.Logger.With("module", "http")}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(h.log))

	r.POST("/connect/token", h.token)

	api := r.Group("/api/v1")
	api.GET("/Ping", h.ping)
	api.GET("/Identities/:username/Salt", h.getSalt)
	api.POST("/Identities", h.createIdentity)

	authed := api.Group("", authRequired(opts.Identities))
	authed.GET("/ExternalEvents", h.listEvents)
	authed.PUT("/ExternalEvents/SyncErrors", h.reportSyncErrors)
	authed.GET("/Datawallet/Modifications", h.listModifications)
	authed.PUT("/Datawallet/Modifications", h.pushModifications)
	authed.PUT("/Files/:id/Content", h.uploadFileContent)
	authed.GET("/Files/:id/Content", h.downloadFileContent)
	if opts.Push != nil {
		authed.GET("/Push", h.push)
	}

	if opts.AdminSecret != "" {
		admin := r.Group("/admin/v1", adminRequired(opts.AdminSecret))
		admin.POST("/Identities/:username/ExternalEvents", h.injectEvent)
	}

	return r
}

func (h *handler) ping(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (h *handler) push(c *gin.Context) {
	h.opts.Push.Serve(c.Writer, c.Request, c.GetString(ctxIdentityID))
}
