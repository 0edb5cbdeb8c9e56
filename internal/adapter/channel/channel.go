// Package channel holds the Channel Senders that hand rendered notifications
// to external providers over HTTP.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"storefront-notifier/internal/core/ports"
	"storefront-notifier/pkg/apperror"
)

// maxProviderResponse bounds the provider body kept on the Attempt row.
const maxProviderResponse = 4096

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// failure converts a send error into a SendResult.
func failure(appErr *apperror.AppError) ports.SendResult {
	msg := appErr.Message
	if appErr.Err != nil {
		msg = fmt.Sprintf("%s: %v", appErr.Message, appErr.Err)
	}
	return ports.SendResult{ErrorCode: appErr.Code, Error: msg}
}

// providerReply is the part of a provider response the senders understand.
type providerReply struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
}

// post sends body as JSON and returns the bounded response text. Any non-2xx
// status is a transport failure.
func post(ctx context.Context, client HTTPClient, url string, body []byte, headers map[string]string) ports.SendResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return failure(apperror.ErrTransport(err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return failure(apperror.ErrTransport(err))
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponse))
	text := string(raw)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res := failure(apperror.ErrTransport(fmt.Errorf("provider returned %d", resp.StatusCode)))
		res.ProviderResponse = text
		return res
	}
	if readErr != nil {
		res := failure(apperror.ErrTransport(fmt.Errorf("reading provider response: %w", readErr)))
		res.ProviderResponse = text
		return res
	}

	var reply providerReply
	_ = json.Unmarshal(raw, &reply)
	id := reply.ID
	if id == "" {
		id = reply.MessageID
	}
	return ports.SendResult{Success: true, ProviderMessageID: id, ProviderResponse: text}
}
