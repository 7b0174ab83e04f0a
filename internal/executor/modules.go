package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ModuleLoader fetches the source of an imported module by URL.
type ModuleLoader interface {
	Load(ctx context.Context, url string) ([]byte, error)
}

// HTTPLoader fetches modules over HTTP and keeps them for the life of the
// process.
type HTTPLoader struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string][]byte
}

func NewHTTPLoader(timeout time.Duration) *HTTPLoader {
	return &HTTPLoader{
		client: &http.Client{Timeout: timeout},
		cache:  make(map[string][]byte),
	}
}

func (l *HTTPLoader) Load(ctx context.Context, url string) ([]byte, error) {
	l.mu.Lock()
	if src, ok := l.cache[url]; ok {
		l.mu.Unlock()
		return src, nil
	}
	l.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("load module %s: %w", url, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("load module %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("load module %s: %s", url, resp.Status)
	}
	src, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("load module %s: %w", url, err)
	}

	l.mu.Lock()
	l.cache[url] = src
	l.mu.Unlock()
	return src, nil
}

// MapLoader serves modules from memory.
type MapLoader map[string]string

func (m MapLoader) Load(_ context.Context, url string) ([]byte, error) {
	src, ok := m[url]
	if !ok {
		return nil, fmt.Errorf("load module %s: not found", url)
	}
	return []byte(src), nil
}
