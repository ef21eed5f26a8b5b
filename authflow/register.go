package authflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jrsteele09/go-mcp-auth/oauthmodel"
)

// Register posts this client's metadata to the resource server's /register relay. The
// returned record carries no client secret; the server keeps it.
func (c *Coordinator) Register(ctx context.Context, client *http.Client) (oauthmodel.Registration, error) {
	if client == nil {
		client = c.client
	}

	body, err := json.Marshal(c.Metadata())
	if err != nil {
		return nil, fmt.Errorf("[authflow Register] encode metadata: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/register", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("[authflow Register] %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[authflow Register] %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("[authflow Register] read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("[authflow Register] registration failed with HTTP %d: %s", resp.StatusCode, data)
	}

	var reg oauthmodel.Registration
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("[authflow Register] decode response: %w", err)
	}
	if reg.ClientID() == "" {
		return nil, fmt.Errorf("[authflow Register] %w", oauthmodel.ErrMissingClientID)
	}
	return reg, nil
}
