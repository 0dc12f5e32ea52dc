package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/datawallet/internal/common"
	"github.com/dmitrijs2005/datawallet/internal/server/services"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Address      string `json:"address"`
}

type oauthErrorResponse struct {
	Error string `json:"error"`
}

// token serves the password and refresh_token grants. Client credentials
// may come as form parameters or as HTTP basic auth.
func (h *handler) token(c *gin.Context) {
	clientID, clientSecret, ok := c.Request.BasicAuth()
	if !ok {
		clientID, clientSecret = c.PostForm("client_id"), c.PostForm("client_secret")
	}

	var (
		pair *services.TokenPair
		err  error
	)
	switch grant := c.PostForm("grant_type"); grant {
	case "password":
		pair, err = h.opts.Identities.Login(c.Request.Context(), clientID, clientSecret,
			c.PostForm("username"), c.PostForm("password"))
	case "refresh_token":
		pair, err = h.opts.Identities.Refresh(c.Request.Context(), clientID, clientSecret,
			c.PostForm("refresh_token"))
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, oauthErrorResponse{Error: "unsupported_grant_type"})
		return
	}

	c.Header("Cache-Control", "no-store")
	switch {
	case err == nil:
	case errors.Is(err, common.ErrInvalidCredentials):
		c.AbortWithStatusJSON(http.StatusUnauthorized, oauthErrorResponse{Error: "invalid_client"})
		return
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrTokenExpired):
		c.AbortWithStatusJSON(http.StatusBadRequest, oauthErrorResponse{Error: "invalid_grant"})
		return
	default:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, oauthErrorResponse{Error: "server_error"})
		return
	}

	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(pair.ExpiresIn.Seconds()),
		RefreshToken: pair.RefreshToken,
		Address:      pair.Address,
	})
}
