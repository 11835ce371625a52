package chatwatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// PageClient fetches a remote chat page and extracts its message container.
type PageClient struct {
	client    *LimitedHTTPClient
	url       string
	selectors []cascadia.Sel
}

// NewPageClient compiles the container selectors. Invalid selectors are an
// error.
func NewPageClient(url string, selectors []string, client *LimitedHTTPClient) (*PageClient, error) {
	if len(selectors) == 0 {
		selectors = DefaultContainerSelectors
	}
	c := &PageClient{client: client, url: url}
	for _, s := range selectors {
		sel, err := cascadia.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("bad container selector %q: %w", s, err)
		}
		c.selectors = append(c.selectors, sel)
	}
	return c, nil
}

// Fetch downloads the page and returns its container together with the
// number of bytes read.
func (c *PageClient) Fetch(ctx context.Context) (*html.Node, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, 0, err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("fetch %s: %s", c.url, res.Status)
	}
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, err
	}
	container, err := c.Parse(bytes.NewReader(b))
	return container, len(b), err
}

// Parse reads an HTML document and returns its container.
func (c *PageClient) Parse(r io.Reader) (*html.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("bad html: %w", err)
	}
	for _, sel := range c.selectors {
		if n := cascadia.Query(doc, sel); n != nil {
			return n, nil
		}
	}
	return nil, ErrContainerNotFound
}
