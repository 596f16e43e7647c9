// Package upstream implements the HTTP client the Finder stage uses to
// query upstream package indexes (PyPI-style and private "curdling"
// indexes alike), with automatic retry on transient failures.
package upstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/wheelhouse/wheelhouse/internal/werror"
	"github.com/wheelhouse/wheelhouse/internal/wlog"
)

// Index is one upstream index server the Finder queries in order.
type Index struct {
	BaseURL string
}

// Client queries a list of upstream indexes for a requirement's download URL.
type Client struct {
	indexes []Index
	http    *retryablehttp.Client
	log     wlog.Log
}

func NewClient(indexes []Index, log wlog.Log) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = cleanhttp.DefaultPooledClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil // wheelhouse logs at the Finder stage, not inside the HTTP client
	return &Client{indexes: indexes, http: retryClient, log: log}
}

// Resolve queries each configured index in order for requirementName,
// returning the first reported download URL and the server that reported
// it, plus every index consulted before the winner (or every index, on a
// total miss) that did not have the requirement — the "servers that failed
// to supply this package" state the Finder contract's get_servers_to_update
// needs for the upload phase. If no index has the requirement it fails with
// werror's NotFound code.
func (c *Client) Resolve(ctx context.Context, requirementName string) (url string, server string, missed []string, err error) {
	for _, idx := range c.indexes {
		candidateURL := fmt.Sprintf("%s/%s/", idx.BaseURL, requirementName)
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, candidateURL, nil)
		if err != nil {
			return "", "", missed, fmt.Errorf("error building request to %s: %w", idx.BaseURL, err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Debugf("index %s unreachable for %s: %v", idx.BaseURL, requirementName, err)
			missed = append(missed, idx.BaseURL)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return candidateURL, idx.BaseURL, missed, nil
		}
		missed = append(missed, idx.BaseURL)
	}
	return "", "", missed, werror.NewNotFound(fmt.Sprintf("no upstream index has %q", requirementName)).
		EDetail(werror.DetailPackageName, requirementName)
}
