package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const defaultGiphyBaseURL = "https://api.giphy.com"

type GifSearcher interface {
	SearchGif(ctx context.Context, query string) (string, error)
}

type GiphyClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type GiphyOption func(*GiphyClient)

func WithGiphyBaseURL(baseURL string) GiphyOption {
	return func(c *GiphyClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithGiphyHTTPClient(client *http.Client) GiphyOption {
	return func(c *GiphyClient) {
		c.httpClient = client
	}
}

func WithGiphyLogger(logger *slog.Logger) GiphyOption {
	return func(c *GiphyClient) {
		c.logger = logger
	}
}

func NewGiphyClient(apiKey string, opts ...GiphyOption) *GiphyClient {
	c := &GiphyClient{
		apiKey:     apiKey,
		baseURL:    defaultGiphyBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchGif returns the original-size url of the best match for query.
func (c *GiphyClient) SearchGif(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("q", query)
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/gifs/search?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build gif search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to search gifs: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read gif search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "meta.msg").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("gif search returned status %d: %s", resp.StatusCode, msg)
	}

	found := gjson.GetBytes(body, "data.0.images.original.url")
	if !found.Exists() || found.String() == "" {
		return "", fmt.Errorf("%w for query %q", ErrNoGifFound, query)
	}

	c.logger.Info("Found gif", "query", query, "url", found.String())
	return found.String(), nil
}

func searchGifExecutor(gifs GifSearcher) Executor {
	return func(ctx context.Context, call Call) (string, error) {
		args, ok := call.(SearchGifArgs)
		if !ok {
			return "", fmt.Errorf("%w: %s cannot execute %T", ErrInvalidArguments, SearchGif, call)
		}
		if gifs == nil {
			return "", ErrGifSearchUnavailable
		}
		return gifs.SearchGif(ctx, args.Query)
	}
}
