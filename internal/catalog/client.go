package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clipstash/clipstash/internal/model"
	"github.com/clipstash/clipstash/utils"
)

// ErrCatalogUnreachable wraps any connectivity or server failure while
// fetching the remote catalog. Callers degrade to their cached list.
var ErrCatalogUnreachable = errors.New("catalog unreachable")

// Client fetches the remote catalog for an access code. Results are all
// or nothing; a partial list is never returned.
type Client struct {
	baseURL string
	client  utils.HTTPDoer
	log     zerolog.Logger
}

func NewClient(baseURL string, client utils.HTTPDoer) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		log:     utils.GetLogger("catalog"),
	}
}

type catalogResponse struct {
	Videos []model.RemoteVideo `json:"videos"`
}

func (c *Client) FetchCatalog(ctx context.Context, code string) ([]model.RemoteVideo, error) {
	url := fmt.Sprintf("%s/api/catalog/%s", c.baseURL, code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrCatalogUnreachable, resp.StatusCode)
	}
	var payload catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrCatalogUnreachable, err)
	}
	c.log.Debug().Int("videos", len(payload.Videos)).Str("code", code).Msg("Catalog fetched")
	return payload.Videos, nil
}

// MediaURL builds the fetch URL for a video's source locator.
func (c *Client) MediaURL(locator string) string {
	return c.baseURL + "/media/" + strings.TrimPrefix(locator, "/")
}
