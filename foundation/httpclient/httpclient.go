// Package httpclient provides basic http functions for retrieving upstream
// real-time feeds.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// RemoteFeedInfo contains the freshness headers of a remote feed.
type RemoteFeedInfo struct {
	ETag                  string
	LastModifiedTimestamp int64
	URL                   string
}

// GetRemoteFeedInfo retrieves ETag and last modified timestamp from url using
// a HEAD request.
func GetRemoteFeedInfo(ctx context.Context, client *http.Client, url string) (RemoteFeedInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return RemoteFeedInfo{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return RemoteFeedInfo{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return makeRemoteFeedInfo(url, resp), nil
}

func makeRemoteFeedInfo(url string, resp *http.Response) RemoteFeedInfo {
	result := RemoteFeedInfo{
		URL:  url,
		ETag: resp.Header.Get("ETag"),
	}
	lastModifiedString := resp.Header.Get("Last-Modified")
	if len(lastModifiedString) > 0 {
		parsedTime, err := time.Parse(time.RFC1123, lastModifiedString)
		if err == nil {
			result.LastModifiedTimestamp = parsedTime.Unix()
		}
	}
	return result
}

// Token reduces the freshness headers to one comparable string, preferring the
// ETag. Empty when the server exposes neither header.
func (fi *RemoteFeedInfo) Token() string {
	if len(fi.ETag) > 0 {
		return fi.ETag
	}
	if fi.LastModifiedTimestamp != 0 {
		return strconv.FormatInt(fi.LastModifiedTimestamp, 10)
	}
	return ""
}

// FetchRemoteFeed retrieves the raw bytes of a feed from url.
func FetchRemoteFeed(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building feed request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed at %s returned status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
