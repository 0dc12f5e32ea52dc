package backbone

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dmitrijs2005/datawallet/internal/client/models"
	"github.com/dmitrijs2005/datawallet/internal/netx"
)

func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/Ping", nil, nil, nil)
}

// GetSalt returns the key derivation salt of username. Unknown users get a
// random salt, so the call does not reveal which usernames exist.
func (c *Client) GetSalt(ctx context.Context, username string) ([]byte, error) {
	var out saltResponse
	if err := c.do(ctx, http.MethodGet, "/Identities/"+url.PathEscape(username)+"/Salt", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Salt, nil
}

func (c *Client) CreateIdentity(ctx context.Context, req CreateIdentityRequest) (*CreateIdentityResponse, error) {
	var out CreateIdentityResponse
	if err := c.do(ctx, http.MethodPost, "/Identities", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetExternalEvents returns up to pageSize events with index greater than
// cursor, in the order the backbone sent them.
func (c *Client) GetExternalEvents(ctx context.Context, cursor int64, pageSize int) ([]models.ExternalEvent, error) {
	q := url.Values{}
	q.Set("cursor", strconv.FormatInt(cursor, 10))
	q.Set("pageSize", strconv.Itoa(pageSize))

	var out externalEventsResponse
	if err := c.do(ctx, http.MethodGet, "/ExternalEvents", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// PushModifications uploads one batch and returns a result per item.
func (c *Client) PushModifications(ctx context.Context, items []PushItem) ([]PushResult, error) {
	var out pushResponse
	if err := c.do(ctx, http.MethodPut, "/Datawallet/Modifications", nil, pushRequest{Items: items}, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// GetModifications returns modifications of the identity with index greater
// than localIndex, including those created by this device.
func (c *Client) GetModifications(ctx context.Context, localIndex int64, pageSize int) ([]models.RemoteModification, error) {
	q := url.Values{}
	q.Set("localIndex", strconv.FormatInt(localIndex, 10))
	q.Set("pageSize", strconv.Itoa(pageSize))

	var out modificationsResponse
	if err := c.do(ctx, http.MethodGet, "/Datawallet/Modifications", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

func (c *Client) ReportSyncErrors(ctx context.Context, items []SyncErrorItem) error {
	if len(items) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPut, "/ExternalEvents/SyncErrors", nil, syncErrorsRequest{Items: items}, nil)
}

// UploadFileContent asks the backbone for a presigned upload URL for fileID
// and PUTs the encrypted content there.
func (c *Client) UploadFileContent(ctx context.Context, fileID string, ciphertext []byte) error {
	var out fileUploadResponse
	err := c.do(ctx, http.MethodPut, "/Files/"+url.PathEscape(fileID)+"/Content", nil,
		fileUploadRequest{Size: int64(len(ciphertext))}, &out)
	if err != nil {
		return err
	}
	if out.UploadURL == "" {
		return fmt.Errorf("backbone: no upload url for file %s", fileID)
	}
	if err := netx.UploadToPresignedURL(ctx, c.httpClient, out.UploadURL, ciphertext); err != nil {
		return fmt.Errorf("upload content of file %s: %w", fileID, err)
	}
	return nil
}
