package wakemeski

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/ski-report-service/internal/domain"
)

// maxBodyBytes bounds a single protocol document.
const maxBodyBytes = 1 << 20

// Client fetches line-protocol documents from report servers. Requests are
// throttled by a shared rate limiter.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a line-protocol client. rps and burst configure the
// request throttle.
func NewClient(timeout time.Duration, rps float64, burst int, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

// FetchLines GETs fullURL and returns the body split into lines.
func (c *Client) FetchLines(ctx context.Context, fullURL string) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", fullURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("report server error: status %d: %s", resp.StatusCode, body)
	}

	var lines []string
	scanner := bufio.NewScanner(io.LimitReader(resp.Body, maxBodyBytes))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("fetched document", "url", fullURL, "lines", len(lines))
	return lines, nil
}

// errorMessage turns a fetch failure into report error text. Failures to
// reach the server at all, including timeouts, map to domain.ErrNoConnection.
func errorMessage(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrNoConnection
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.ErrNoConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return domain.ErrNoConnection
	}
	return err.Error()
}
