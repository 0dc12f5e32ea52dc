package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type saltResponse struct {
	Salt []byte `json:"salt"`
}

type createIdentityRequest struct {
	Username string `json:"username"`
	Salt     []byte `json:"salt"`
	Verifier []byte `json:"verifier"`
}

type createIdentityResponse struct {
	Address string `json:"address"`
}

func (h *handler) getSalt(c *gin.Context) {
	salt, err := h.opts.Identities.GetSalt(c.Request.Context(), c.Param("username"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, saltResponse{Salt: salt})
}

func (h *handler) createIdentity(c *gin.Context) {
	var req createIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}
	identity, err := h.opts.Identities.Register(c.Request.Context(), req.Username, req.Salt, req.Verifier)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createIdentityResponse{Address: identity.Address})
}
