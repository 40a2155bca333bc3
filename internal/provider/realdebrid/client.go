// SPDX-License-Identifier: MIT

// Package realdebrid resolves torrents through the Real-Debrid API.
package realdebrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.real-debrid.com/rest/1.0"

// Torrent status values reported by the API.
const (
	StatusMagnetError           = "magnet_error"
	StatusMagnetConversion      = "magnet_conversion"
	StatusWaitingFilesSelection = "waiting_files_selection"
	StatusQueued                = "queued"
	StatusDownloading           = "downloading"
	StatusDownloaded            = "downloaded"
	StatusError                 = "error"
	StatusVirus                 = "virus"
	StatusCompressing           = "compressing"
	StatusUploading             = "uploading"
	StatusDead                  = "dead"
)

// TorrentFile is one file inside a torrent.
type TorrentFile struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Selected int    `json:"selected"`
}

// TorrentInfo describes a torrent known to the account.
type TorrentInfo struct {
	ID       string        `json:"id"`
	Filename string        `json:"filename"`
	Hash     string        `json:"hash"`
	Status   string        `json:"status"`
	Files    []TorrentFile `json:"files"`
	Links    []string      `json:"links"`
}

// ActiveCount reports the account's in-flight torrent slots.
type ActiveCount struct {
	Nb    int      `json:"nb"`
	Limit int      `json:"limit"`
	List  []string `json:"list"`
}

type addTorrentResponse struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

type unrestrictedLink struct {
	Download string `json:"download"`
}

type apiError struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

// Client is a thin Real-Debrid REST client bound to one account token.
type Client struct {
	base   string
	token  string
	userIP string
	http   *http.Client
}

// NewClient creates a client for the given account token. userIP, when set, is
// forwarded so downloads are bound to the requesting client.
func NewClient(token, userIP string) *Client {
	return &Client{
		base:   defaultBaseURL,
		token:  token,
		userIP: userIP,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		if c.userIP != "" {
			form.Set("ip", c.userIP)
		}
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(res.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("realdebrid: %s %s: %s (code %d)", method, path, apiErr.Error, apiErr.ErrorCode)
		}
		return fmt.Errorf("realdebrid: %s %s: unexpected status %d", method, path, res.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// Torrents lists the account's torrents.
func (c *Client) Torrents(ctx context.Context) ([]TorrentInfo, error) {
	var list []TorrentInfo
	if err := c.do(ctx, http.MethodGet, "/torrents", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// FindTorrent returns the account torrent matching infoHash, or nil.
func (c *Client) FindTorrent(ctx context.Context, infoHash string) (*TorrentInfo, error) {
	list, err := c.Torrents(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if strings.EqualFold(list[i].Hash, infoHash) {
			return &list[i], nil
		}
	}
	return nil, nil
}

// Active reports the in-flight torrent slots.
func (c *Client) Active(ctx context.Context) (ActiveCount, error) {
	var ac ActiveCount
	err := c.do(ctx, http.MethodGet, "/torrents/activeCount", nil, &ac)
	return ac, err
}

// AddMagnet queues a magnet link and returns the new torrent ID.
func (c *Client) AddMagnet(ctx context.Context, magnet string) (string, error) {
	var resp addTorrentResponse
	form := url.Values{"magnet": {magnet}}
	if err := c.do(ctx, http.MethodPost, "/torrents/addMagnet", form, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Info fetches a torrent's current state.
func (c *Client) Info(ctx context.Context, torrentID string) (TorrentInfo, error) {
	var info TorrentInfo
	err := c.do(ctx, http.MethodGet, "/torrents/info/"+url.PathEscape(torrentID), nil, &info)
	return info, err
}

// SelectAllFiles starts the download with every file selected.
func (c *Client) SelectAllFiles(ctx context.Context, torrentID string) error {
	form := url.Values{"files": {"all"}}
	return c.do(ctx, http.MethodPost, "/torrents/selectFiles/"+url.PathEscape(torrentID), form, nil)
}

// Delete removes a torrent from the account.
func (c *Client) Delete(ctx context.Context, torrentID string) error {
	return c.do(ctx, http.MethodDelete, "/torrents/delete/"+url.PathEscape(torrentID), nil, nil)
}

// Unrestrict converts a hoster link into a direct download URL.
func (c *Client) Unrestrict(ctx context.Context, link string) (string, error) {
	var resp unrestrictedLink
	form := url.Values{"link": {link}}
	if err := c.do(ctx, http.MethodPost, "/unrestrict/link", form, &resp); err != nil {
		return "", err
	}
	return resp.Download, nil
}

// WaitForStatus polls the torrent until it reaches want, up to maxRetries
// polls separated by interval.
func (c *Client) WaitForStatus(ctx context.Context, torrentID, want string, maxRetries int, interval time.Duration) (TorrentInfo, error) {
	var info TorrentInfo
	var err error
	for i := 0; i <= maxRetries; i++ {
		info, err = c.Info(ctx, torrentID)
		if err != nil {
			return info, err
		}
		if info.Status == want {
			return info, nil
		}
		if i == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return info, ctx.Err()
		case <-time.After(interval):
		}
	}
	return info, fmt.Errorf("realdebrid: torrent %s did not reach status %q (last %q)", torrentID, want, info.Status)
}

// setBaseURL points the client at a test server.
func (c *Client) setBaseURL(base string) {
	c.base = strings.TrimRight(base, "/")
}
