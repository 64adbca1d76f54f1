package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"lyrebird/internal/lyrics"

	"github.com/sirupsen/logrus"
)

const (
	neteaseSearchLimit = 5
	neteaseLyricTries  = 3
)

type neteaseSearchResponse struct {
	Code   int `json:"code"`
	Result struct {
		Songs []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"songs"`
	} `json:"result"`
}

type neteaseLyricResponse struct {
	Code int `json:"code"`
	Lrc  struct {
		Lyric string `json:"lyric"`
	} `json:"lrc"`
}

type neteaseDetailResponse struct {
	Code  int `json:"code"`
	Songs []struct {
		ID int64 `json:"id"`
		Al struct {
			PicURL string `json:"picUrl"`
		} `json:"al"`
	} `json:"songs"`
}

// NetEaseClient talks to a NetEase Cloud Music API server (the
// community "enhanced" API that exposes /search, /lyric and /song/detail).
type NetEaseClient struct {
	baseURL string
	req     *requester
	logger  *logrus.Logger
}

// NewNetEaseClient creates a client for the API server at baseURL
func NewNetEaseClient(baseURL string, opts Options, logger *logrus.Logger) *NetEaseClient {
	return &NetEaseClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		req:     newRequester("netease", opts, logger),
		logger:  logger,
	}
}

func (c *NetEaseClient) Name() string { return "netease" }

// SearchLyrics searches by "title artist" and returns the first of the top
// candidates whose lyric parses to at least one timed line.
func (c *NetEaseClient) SearchLyrics(ctx context.Context, title, artist string) (string, error) {
	ids, err := c.search(ctx, keywords(title, artist), neteaseSearchLimit)
	if err != nil {
		return "", err
	}

	for i, id := range ids {
		if i == neteaseLyricTries {
			break
		}

		body, err := c.req.get(ctx, c.baseURL+"/lyric?id="+strconv.FormatInt(id, 10))
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.WithError(err).WithField("song_id", id).Debug("NetEase lyric request failed")
			continue
		}

		var resp neteaseLyricResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			continue
		}
		if lyrics.Build(resp.Lrc.Lyric).Empty() {
			continue
		}
		return resp.Lrc.Lyric, nil
	}

	return "", ErrNotFound
}

// SearchCover resolves the best search hit's album picture and downloads it.
func (c *NetEaseClient) SearchCover(ctx context.Context, title, artist string) ([]byte, error) {
	ids, err := c.search(ctx, keywords(title, artist), 1)
	if err != nil {
		return nil, err
	}

	body, err := c.req.get(ctx, c.baseURL+"/song/detail?ids="+strconv.FormatInt(ids[0], 10))
	if err != nil {
		return nil, err
	}

	var detail neteaseDetailResponse
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("netease: failed to decode song detail: %w", err)
	}
	if len(detail.Songs) == 0 || detail.Songs[0].Al.PicURL == "" {
		return nil, ErrNotFound
	}

	image, err := c.req.get(ctx, detail.Songs[0].Al.PicURL)
	if err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, ErrNotFound
	}
	return image, nil
}

func (c *NetEaseClient) search(ctx context.Context, kw string, limit int) ([]int64, error) {
	params := url.Values{}
	params.Set("keywords", kw)
	params.Set("type", "1")
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.req.get(ctx, c.baseURL+"/search?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp neteaseSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("netease: failed to decode search: %w", err)
	}
	if resp.Code != 0 && resp.Code != 200 {
		return nil, fmt.Errorf("netease: search returned code %d", resp.Code)
	}

	ids := make([]int64, 0, len(resp.Result.Songs))
	for _, s := range resp.Result.Songs {
		ids = append(ids, s.ID)
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	return ids, nil
}

func keywords(title, artist string) string {
	return strings.TrimSpace(title + " " + artist)
}
