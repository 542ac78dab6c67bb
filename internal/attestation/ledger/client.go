package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ride-engagement/internal/attestation"
)

// Client posts signed statements to the ledger gateway over HTTP. One write,
// one receipt; retries are the caller's policy, not ours.
type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

type writeRequest struct {
	Token     string                `json:"token"`
	Statement attestation.Statement `json:"statement"`
}

func (c *Client) Write(ctx context.Context, token string, stmt attestation.Statement) (*attestation.Receipt, error) {
	body, err := json.Marshal(writeRequest{Token: token, Statement: stmt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ledger write: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/attestations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger write failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ledger write rejected: status %d: %s", resp.StatusCode, msg)
	}

	var receipt attestation.Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("failed to decode ledger receipt: %w", err)
	}
	return &receipt, nil
}
