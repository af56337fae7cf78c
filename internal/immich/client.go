// Package immich is a read-only client for the slice of the Immich API the
// notifier consumes: memories, people, asset search, asset detail, albums,
// and thumbnails.
package immich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

const (
	requestTimeout   = 10 * time.Second
	thumbnailTimeout = 30 * time.Second
)

// StatusError reports a non-2xx reply from the photo service.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("immich: %s %s: unexpected status %d", e.Method, e.Path, e.Code)
}

// Client issues requests on behalf of one user (one API key). Every call
// carries the x-api-key header and a bounded per-request timeout.
type Client struct {
	base  string
	key   string
	http  *http.Client
	thumb *http.Client
	log   logx.Logger
}

func NewClient(baseURL, apiKey string, log logx.Logger) *Client {
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		key:   apiKey,
		http:  &http.Client{Timeout: requestTimeout},
		thumb: &http.Client{Timeout: thumbnailTimeout},
		log:   log,
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("immich: encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("immich: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("immich: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	}
	return data, nil
}

// Memories fetches every memory the server has curated for this user.
func (c *Client) Memories(ctx context.Context) ([]Memory, error) {
	b, err := c.do(ctx, http.MethodGet, "/api/memories", nil, nil)
	if err != nil {
		return nil, err
	}
	var mems []Memory
	if err := json.Unmarshal(b, &mems); err != nil {
		return nil, fmt.Errorf("immich: decode memories: %w", err)
	}
	return mems, nil
}

// People lists all recognized people. The endpoint has shipped both a bare
// array and a wrapped {"people": [...]} object; both shapes are accepted
// here so callers never see the difference.
func (c *Client) People(ctx context.Context) ([]Person, error) {
	b, err := c.do(ctx, http.MethodGet, "/api/people", nil, nil)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		People []Person `json:"people"`
	}
	if err := json.Unmarshal(b, &wrapped); err == nil {
		return wrapped.People, nil
	}
	var bare []Person
	if err := json.Unmarshal(b, &bare); err == nil {
		return bare, nil
	}
	return nil, fmt.Errorf("immich: decode people: unrecognized response shape")
}

type searchPage struct {
	Items []Asset
	Total int
}

// searchByPerson runs a metadata search restricted to one person. The
// assets field arrives either as {items, total} or as a bare array.
func (c *Client) searchByPerson(ctx context.Context, personID string, size int) (searchPage, error) {
	body := map[string]any{
		"personIds": []string{personID},
		"size":      size,
	}
	b, err := c.do(ctx, http.MethodPost, "/api/search/metadata", nil, body)
	if err != nil {
		return searchPage{}, err
	}

	var envelope struct {
		Assets json.RawMessage `json:"assets"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return searchPage{}, fmt.Errorf("immich: decode search: %w", err)
	}
	if len(envelope.Assets) == 0 {
		return searchPage{}, nil
	}

	var paged struct {
		Items []Asset `json:"items"`
		Total int     `json:"total"`
	}
	if err := json.Unmarshal(envelope.Assets, &paged); err == nil {
		return searchPage{Items: paged.Items, Total: paged.Total}, nil
	}
	var bare []Asset
	if err := json.Unmarshal(envelope.Assets, &bare); err == nil {
		return searchPage{Items: bare, Total: len(bare)}, nil
	}
	return searchPage{}, fmt.Errorf("immich: decode search: unrecognized assets shape")
}

// PersonAssets returns up to size assets featuring the person.
func (c *Client) PersonAssets(ctx context.Context, personID string, size int) ([]Asset, error) {
	page, err := c.searchByPerson(ctx, personID, size)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// PersonAssetCount approximates how many assets feature the person, using
// a size-1 search and reading the reported total.
func (c *Client) PersonAssetCount(ctx context.Context, personID string) (int, error) {
	page, err := c.searchByPerson(ctx, personID, 1)
	if err != nil {
		return 0, err
	}
	return page.Total, nil
}

// AssetDetail fetches one asset's record: recognized faces and EXIF.
func (c *Client) AssetDetail(ctx context.Context, assetID string) (AssetDetail, error) {
	b, err := c.do(ctx, http.MethodGet, "/api/assets/"+assetID, nil, nil)
	if err != nil {
		return AssetDetail{}, err
	}
	var detail AssetDetail
	if err := json.Unmarshal(b, &detail); err != nil {
		return AssetDetail{}, fmt.Errorf("immich: decode asset %s: %w", assetID, err)
	}
	return detail, nil
}

// AssetAlbums lists the albums containing an asset.
func (c *Client) AssetAlbums(ctx context.Context, assetID string) ([]Album, error) {
	q := url.Values{"assetId": []string{assetID}}
	b, err := c.do(ctx, http.MethodGet, "/api/albums", q, nil)
	if err != nil {
		return nil, err
	}
	var albums []Album
	if err := json.Unmarshal(b, &albums); err != nil {
		return nil, fmt.Errorf("immich: decode albums: %w", err)
	}
	return albums, nil
}

// Thumbnail downloads the preview bytes for an asset. Thumbnails get a
// longer timeout than metadata calls.
func (c *Client) Thumbnail(ctx context.Context, assetID string) ([]byte, error) {
	u := fmt.Sprintf("%s/api/assets/%s/thumbnail?size=thumbnail", c.base, assetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.key)

	resp, err := c.thumb.Do(req)
	if err != nil {
		return nil, fmt.Errorf("immich: thumbnail %s: %w", assetID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: http.MethodGet, Path: "/api/assets/" + assetID + "/thumbnail", Code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}
