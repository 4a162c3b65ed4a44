package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nkuznetsov/tgarchive/internal/core/domain"
)

const fetchTimeout = 10 * time.Second

// HTTPFetcher is the Fetcher implementation speaking to the archive's own
// HTTP API.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: fetchTimeout},
	}
}

func (f *HTTPFetcher) Messages(ctx context.Context, q Query) ([]*domain.Message, error) {
	params := url.Values{}
	params.Set("since", strconv.FormatInt(q.Since, 10))
	params.Set("date", q.Date)

	group := q.Group
	if group == "" {
		group = "allPrivate"
	}

	params.Set("group", group)

	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	if q.IncludeArchive {
		params.Set("include_archive", "true")
	}

	var out []*domain.Message
	if err := f.get(ctx, "/messages?"+params.Encode(), &out); err != nil {
		return nil, err
	}

	return out, nil
}

func (f *HTTPFetcher) Chats(ctx context.Context, force bool) ([]domain.Chat, error) {
	path := "/api/get-all-chats"
	if force {
		path += "?force=true"
	}

	var out []domain.Chat
	if err := f.get(ctx, path, &out); err != nil {
		return nil, err
	}

	return out, nil
}

func (f *HTTPFetcher) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
