package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type uploadRequest struct {
	Size int64 `json:"size"`
}

type uploadResponse struct {
	UploadURL string `json:"uploadUrl"`
}

type downloadResponse struct {
	DownloadURL string `json:"downloadUrl"`
}

func (h *handler) uploadFileContent(c *gin.Context) {
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}
	url, err := h.opts.Files.PresignUpload(c.Request.Context(), c.GetString(ctxIdentityID), c.Param("id"), req.Size)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, uploadResponse{UploadURL: url})
}

func (h *handler) downloadFileContent(c *gin.Context) {
	url, err := h.opts.Files.PresignDownload(c.Request.Context(), c.GetString(ctxIdentityID), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, downloadResponse{DownloadURL: url})
}
