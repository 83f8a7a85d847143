package waba

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// Client talks to the outbound chat gateway. The gateway accepts one
// message per call and answers with an opaque message id; it is treated
// as unreliable and rate-limited by the caller.
type Client struct {
	APIKey   string
	SenderID string
	BaseURL  string
	HTTP     *http.Client
}

type SendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
	From string `json:"from,omitempty"`
}

type SendResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, req SendRequest) (SendResponse, int, []byte, error) {
	if req.From == "" {
		req.From = c.SenderID
	}
	payload, _ := json.Marshal(req)

	baseURL := strings.TrimRight(c.BaseURL, "/")
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(payload))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return SendResponse{}, 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	var out SendResponse
	_ = json.Unmarshal(b, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != "" {
			return out, resp.StatusCode, b, errors.New(out.Error)
		}
		return out, resp.StatusCode, b, errors.New("gateway send failed")
	}
	if out.MessageID == "" {
		return out, resp.StatusCode, b, errors.New("gateway returned no message id")
	}
	return out, resp.StatusCode, b, nil
}
