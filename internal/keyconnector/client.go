// Package keyconnector talks to an external key-connector service that holds
// a user's master key instead of password-based derivation. The client does
// not retry; transient failures are surfaced for the caller to retry.
package keyconnector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultTimeout = 15 * time.Second

// APIError is a non-2xx response from the key-connector service.
type APIError struct {
	Status int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("key connector returned status %d", e.Status)
}

// Client is a key-connector API client.
type Client struct {
	httpClient *http.Client
	log        *logrus.Entry
}

func New() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        logrus.WithField("component", "keyconnector"),
	}
}

// NewWithHTTPClient creates a client with a caller-supplied http.Client.
func NewWithHTTPClient(httpClient *http.Client) *Client {
	return &Client{
		httpClient: httpClient,
		log:        logrus.WithField("component", "keyconnector"),
	}
}

type userKeyResponse struct {
	Key string `json:"key"`
}

type userKeyRequest struct {
	Key string `json:"key"`
}

// GetMasterKey fetches the user's master key from the key-connector service.
func (c *Client) GetMasterKey(ctx context.Context, baseURL, accessToken string) ([]byte, error) {
	url := strings.TrimSuffix(baseURL, "/") + "/user-keys"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	c.log.WithField("url", url).Debug("fetching master key from key connector")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("key connector request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode}
	}

	var body userKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode key connector response: %w", err)
	}

	key, err := base64.StdEncoding.DecodeString(body.Key)
	if err != nil {
		return nil, fmt.Errorf("invalid master key encoding: %w", err)
	}

	return key, nil
}

// SetMasterKey uploads the user's master key, completing first-time
// key-connector enrollment.
func (c *Client) SetMasterKey(ctx context.Context, baseURL, accessToken string, masterKey []byte) error {
	url := strings.TrimSuffix(baseURL, "/") + "/user-keys"

	payload, err := json.Marshal(userKeyRequest{Key: base64.StdEncoding.EncodeToString(masterKey)})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	c.log.WithField("url", url).Debug("uploading master key to key connector")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("key connector request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return &APIError{Status: resp.StatusCode}
	}

	return nil
}
