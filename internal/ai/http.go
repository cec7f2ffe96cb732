package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// postJSON sends body to url and returns the response when the status is
// 2xx. Otherwise the body is drained into a *StatusError.
func postJSON(ctx context.Context, client *http.Client, provider, url string, body any, headers map[string]string) (*http.Response, error) {
	if client == nil {
		return nil, fmt.Errorf("%s: http client is nil", provider)
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, &StatusError{Provider: provider, Status: resp.StatusCode, Message: errorMessage(raw, resp.StatusCode)}
	}
	return resp, nil
}

// errorMessage pulls a readable message out of a provider error body.
func errorMessage(raw []byte, status int) string {
	var decoded struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(raw, &decoded) == nil && len(decoded.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(decoded.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if json.Unmarshal(decoded.Error, &flat) == nil && flat != "" {
			return flat
		}
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = fmt.Sprintf("status %d", status)
	}
	return msg
}

// emit sends chunk unless ctx is done first.
func emit(ctx context.Context, chunks chan<- string, chunk string) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
