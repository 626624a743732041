package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/demonlist-history/internal/domain"
	"go.uber.org/zap"
)

const (
	movementPathFmt     = "/api/v2/demons/%d/audit/movement/"
	listInformationPath = "/api/v1/list_information/"

	defaultRetryAfter = time.Second
	maxResponseBytes  = 8 << 20
)

// PointercrateClient читает данные из REST API демонлиста (только GET).
type PointercrateClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewPointercrateClient(baseURL string, timeout time.Duration, logger *zap.Logger) *PointercrateClient {
	return &PointercrateClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Named("pointercrate"),
	}
}

// Movements возвращает журнал перемещений демона в хронологическом порядке.
func (c *PointercrateClient) Movements(ctx context.Context, demonID int) ([]domain.AuditEvent, error) {
	if demonID <= 0 {
		return nil, domain.ErrInvalidDemonID
	}

	var events []domain.AuditEvent
	if err := c.getJSON(ctx, fmt.Sprintf(movementPathFmt, demonID), &events); err != nil {
		return nil, err
	}

	c.logger.Debug("movement log fetched",
		zap.Int("demon_id", demonID),
		zap.Int("events", len(events)))

	if events == nil {
		return []domain.AuditEvent{}, nil
	}
	return events, nil
}

// ListInfo запрашивает размеры основного и расширенного списка.
func (c *PointercrateClient) ListInfo(ctx context.Context) (domain.ListInfo, error) {
	var info domain.ListInfo
	if err := c.getJSON(ctx, listInformationPath, &info); err != nil {
		return domain.ListInfo{}, err
	}
	return info, nil
}

func (c *PointercrateClient) getJSON(ctx context.Context, path string, dest any) error {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("pointercrate: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pointercrate: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("pointercrate: GET %s: %w", url, domain.ErrDemonNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Cause:      &StatusError{StatusCode: resp.StatusCode, URL: url},
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("pointercrate: read body: %w", err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("pointercrate: decode %s: %w", url, err)
	}
	return nil
}

// parseRetryAfter понимает оба формата заголовка: секунды и HTTP-дату.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}
