package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/optionflow/gexd/internal/gex"
)

// Notifier is the interface for reporting computation outcomes.
type Notifier interface {
	SendSuccess(ctx context.Context, currency string, result *gex.Result, duration time.Duration) error
	SendFailure(ctx context.Context, currency string, duration time.Duration, err error) error
}

// Client implements the ntfy notification client.
type Client struct {
	httpClient *http.Client
	config     *Config
	logger     *zap.Logger
}

// NewClient creates a new ntfy client.
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
	}
}

// SendSuccess sends a computation summary notification.
func (c *Client) SendSuccess(ctx context.Context, currency string, result *gex.Result, duration time.Duration) error {
	if !c.config.Enabled {
		return nil
	}

	title := fmt.Sprintf("GEX Updated: %s", currency)
	message := FormatSuccessMessage(result, duration)
	tags := c.config.Tags + ",white_check_mark"

	return c.send(ctx, title, message, tags, c.config.Priority)
}

// SendFailure sends a failure notification.
func (c *Client) SendFailure(ctx context.Context, currency string, duration time.Duration, err error) error {
	if !c.config.Enabled {
		return nil
	}

	title := fmt.Sprintf("GEX Failed: %s", currency)
	message := FormatFailureMessage(duration, err)
	tags := c.config.Tags + ",x"

	return c.send(ctx, title, message, tags, "high")
}

func (c *Client) send(ctx context.Context, title, message, tags, priority string) error {
	url := strings.TrimRight(c.config.Server, "/") + "/" + c.config.Topic

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("creating notification request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Tags", tags)
	req.Header.Set("Priority", priority)
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notification rejected: %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Debug("notification sent", zap.String("title", title))
	return nil
}
