package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peernode/crypto"
)

// RequestTimeout bounds every directory HTTPS call.
const RequestTimeout = 10 * time.Second

// Client is the HTTPS directory client. All operations authenticate with
// a static API key header; none ever sees or transmits a secret key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a directory client against baseURL, authenticating
// every request with apiKey.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: RequestTimeout,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, fmt.Errorf("read directory response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return resp, fmt.Errorf("directory returned %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp, fmt.Errorf("parse directory response: %w", err)
		}
	}

	return resp, nil
}

// Register upserts the node's own record: username, node_id, both
// published public keys, and current presence.
func (c *Client) Register(ctx context.Context, rec Record) error {
	resp, err := c.do(ctx, http.MethodPut, "/users/"+rec.Username, rec, nil)
	if resp != nil && resp.StatusCode == http.StatusConflict {
		err = fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Register",
			"username": rec.Username,
			"error":    err.Error(),
		}).Warn("directory register failed")
	}
	return err
}

// Heartbeat refreshes last_ip/last_seen for the node's own record.
// Failures here are warnings, never fatal.
func (c *Client) Heartbeat(ctx context.Context, username, currentIP string) error {
	body := struct {
		LastIP   string    `json:"last_ip"`
		LastSeen time.Time `json:"last_seen"`
	}{LastIP: currentIP, LastSeen: time.Now()}

	_, err := c.do(ctx, http.MethodPost, "/users/"+username+"/heartbeat", body, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Heartbeat",
			"username": username,
			"error":    err.Error(),
		}).Warn("directory heartbeat failed")
	}
	return err
}

// Lookup reads a single user's published keys and presence.
func (c *Client) Lookup(ctx context.Context, username string) (*Record, error) {
	var rec Record
	resp, err := c.do(ctx, http.MethodGet, "/users/"+username, nil, &rec)
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PushOffline stores a relayed envelope for recipient, attributed to
// sender.
func (c *Client) PushOffline(ctx context.Context, recipient, sender string, envelopeBytes []byte) error {
	body := struct {
		ToUser     string `json:"to_user"`
		FromUser   string `json:"from_user"`
		Ciphertext string `json:"ciphertext"`
	}{
		ToUser:     recipient,
		FromUser:   sender,
		Ciphertext: crypto.EncodeB64(envelopeBytes),
	}

	_, err := c.do(ctx, http.MethodPost, "/offline_messages", body, nil)
	return err
}

// FetchOffline returns every envelope relayed for recipient, ordered
// oldest-first.
func (c *Client) FetchOffline(ctx context.Context, recipient string) ([]OfflineMessage, error) {
	var msgs []OfflineMessage
	_, err := c.do(ctx, http.MethodGet, "/offline_messages?to_user="+recipient, nil, &msgs)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteOffline bulk-deletes specific relay entries by id. Callers must
// only invoke this after the local store has durably recorded each
// corresponding message.
func (c *Client) DeleteOffline(ctx context.Context, ids []string) error {
	body := struct {
		IDs []string `json:"ids"`
	}{IDs: ids}

	_, err := c.do(ctx, http.MethodPost, "/offline_messages/delete", body, nil)
	return err
}
