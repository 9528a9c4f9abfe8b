// Package content publishes verified credentials and uploaded files to a
// content-addressed store and resolves published documents back.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/windingtree/orgid-migrator/internal/domain"
)

// Store publishes bytes under a name and returns the content address.
type Store interface {
	Publish(ctx context.Context, data []byte, name string) (string, error)
}

// Resolver fetches a published document by URI, translating ipfs://
// references through the configured gateway.
type Resolver interface {
	Resolve(ctx context.Context, uri string) ([]byte, error)
}

// Web3Store talks to a web3.storage-compatible upload API.
type Web3Store struct {
	endpoint string
	gateway  string
	token    string
	client   *http.Client
	logger   *slog.Logger
}

func NewWeb3Store(endpoint, gateway, token string, timeout time.Duration, logger *slog.Logger) *Web3Store {
	return &Web3Store{
		endpoint: strings.TrimRight(endpoint, "/"),
		gateway:  strings.TrimRight(gateway, "/"),
		token:    token,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Publish uploads data and returns its CID. Store failures are transient.
func (s *Web3Store) Publish(ctx context.Context, data []byte, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/upload", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("X-NAME", url.QueryEscape(name))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", domain.NewRetryableError(fmt.Errorf("content store upload failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", domain.NewRetryableError(fmt.Errorf("content store upload returned %d: %s", resp.StatusCode, string(body)))
	}

	var out struct {
		CID string `json:"cid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", domain.NewRetryableError(fmt.Errorf("content store response malformed: %w", err))
	}
	if out.CID == "" {
		return "", domain.NewRetryableError(fmt.Errorf("content store returned empty cid"))
	}

	s.logger.Debug("Content published",
		slog.String("name", name),
		slog.String("cid", out.CID),
		slog.Int("size", len(data)),
	)

	return out.CID, nil
}

// GatewayURL returns the public gateway URL for a CID.
func (s *Web3Store) GatewayURL(cid string) string {
	return s.gateway + "/" + cid
}

// Resolve fetches a document by URI.
func (s *Web3Store) Resolve(ctx context.Context, uri string) ([]byte, error) {
	if cid, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		uri = s.GatewayURL(cid)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("content fetch failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("content fetch returned %d for %s", resp.StatusCode, uri)
	}

	return io.ReadAll(resp.Body)
}
