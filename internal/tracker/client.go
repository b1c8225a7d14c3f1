package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brainless/shellargs/internal/log"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

var (
	DefaultField   = "RepoMos"
	DefaultTimeout = 30 * time.Second
	DefaultRate    = 10 // requests per second
)

var (
	ErrInvalidResponse = errors.New("tracker returned invalid JSON")
	ErrIssueNotFound   = errors.New("issue not found in tracker response")
	ErrFieldNotFound   = errors.New("custom field not found on issue")
)

// maximum accepted response body
const maxBodySize = 10 << 20

// Config configures a tracker Client
type Config struct {
	Field         string
	Timeout       time.Duration
	RatePerSecond int
}

// Client looks up issues in a Redmine-style tracker that exposes issues
// with custom fields over HTTP+JSON.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	field      string
}

// NewClient creates a tracker client, filling zero config values with
// defaults.
func NewClient(cfg Config) *Client {
	if cfg.Field == "" {
		cfg.Field = DefaultField
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultRate
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RatePerSecond),
		field:   cfg.Field,
	}
}

// Field returns the custom field name the client resolves
func (c *Client) Field() string {
	return c.field
}

// LookupLinkedIssue fetches the issue at issueURL and returns the last path
// segment of its configured custom field, e.g. "1234" for a field value of
// "https://tracker.example/issues/1234".
func (c *Client) LookupLinkedIssue(ctx context.Context, issueURL string) (string, error) {
	fields, err := c.CustomFields(ctx, issueURL)
	if err != nil {
		return "", err
	}

	value, ok := fields[c.field]
	value = strings.TrimRight(value, "/")
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrFieldNotFound, c.field)
	}

	return value[strings.LastIndex(value, "/")+1:], nil
}

// CustomFields returns the name/value pairs of the first issue in the
// response.
func (c *Client) CustomFields(ctx context.Context, issueURL string) (map[string]string, error) {
	body, err := c.get(ctx, issueURL)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidResponse
	}

	issue := gjson.GetBytes(body, "issues.0")
	if !issue.Exists() {
		return nil, ErrIssueNotFound
	}

	fields := make(map[string]string)
	issue.Get("custom_fields").ForEach(func(_, field gjson.Result) bool {
		name := field.Get("name").String()
		if name == "" {
			return true
		}
		if _, seen := fields[name]; !seen {
			fields[name] = field.Get("value").String()
		}
		return true
	})

	return fields, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	log.Logger.WithField("url", url).Debug("Fetching issue")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tracker returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
