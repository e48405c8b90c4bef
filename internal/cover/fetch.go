package cover

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

const maxCoverBytes = 32 << 20

// Fetch reads the cover at href. Relative hrefs resolve against base, which may be an http(s)
// URL or a local directory given as a file URL. A nil base reads href from the working directory.
func Fetch(ctx context.Context, client *http.Client, base *url.URL, href string) ([]byte, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("parse cover href %q: %w", href, err)
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}

	switch ref.Scheme {
	case "http", "https":
		return fetchHTTP(ctx, client, ref.String())
	case "file", "":
		return readLocal(filepath.FromSlash(ref.Path))
	default:
		return nil, fmt.Errorf("unsupported cover scheme %q", ref.Scheme)
	}
}

func fetchHTTP(ctx context.Context, client *http.Client, target string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch cover: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch cover %s: %s", target, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes))
	if err != nil {
		return nil, fmt.Errorf("read cover: %w", err)
	}
	return data, nil
}

func readLocal(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cover: %w", err)
	}
	return data, nil
}
