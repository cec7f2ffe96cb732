package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/suPer8Hu/prompt-playground/internal/ai"
)

const providerName = "gateway"

// Client calls a gateway served over HTTP. It satisfies the transport's
// Gateway interface.
type Client struct {
	BaseURL string
	// Token is sent as a bearer token when the gateway requires auth.
	Token string
	HTTP  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		// no timeout: streams last as long as generation does
		HTTP: &http.Client{},
	}
}

func (c *Client) post(ctx context.Context, req ai.ChatRequest, stream bool) (*http.Response, error) {
	body, err := json.Marshal(NewWireRequest(req, stream))
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		var decoded struct {
			Error string `json:"error"`
		}
		msg := ""
		if json.Unmarshal(raw, &decoded) == nil {
			msg = decoded.Error
		}
		if msg == "" {
			msg = fmt.Sprintf("HTTP error! status: %d", resp.StatusCode)
		}
		return nil, &ai.StatusError{Provider: providerName, Status: resp.StatusCode, Message: msg}
	}
	return resp, nil
}

func (c *Client) Complete(ctx context.Context, req ai.ChatRequest) (string, error) {
	resp, err := c.post(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("gateway: decode response: %w", err)
	}
	return out.Text, nil
}

// Stream reads the raw response body and emits it as UTF-8 text. A multi-byte
// sequence split across reads is held back until it is complete.
func (c *Client) Stream(ctx context.Context, req ai.ChatRequest) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		resp, err := c.post(ctx, req, true)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		var carry []byte
		buf := make([]byte, 4096)
		for {
			n, rerr := resp.Body.Read(buf)
			if n > 0 {
				data := append(carry, buf[:n]...)
				cut := completePrefix(data)
				if cut > 0 {
					if !send(ctx, chunks, string(data[:cut])) {
						errs <- ctx.Err()
						return
					}
				}
				carry = append([]byte(nil), data[cut:]...)
			}
			if errors.Is(rerr, io.EOF) {
				if len(carry) > 0 && !send(ctx, chunks, string(carry)) {
					errs <- ctx.Err()
				}
				return
			}
			if rerr != nil {
				if ctx.Err() != nil {
					errs <- ctx.Err()
					return
				}
				errs <- fmt.Errorf("gateway: read stream: %w", rerr)
				return
			}
		}
	}()

	return chunks, errs
}

// completePrefix returns the length of the longest prefix of b that does not
// end inside a multi-byte sequence.
func completePrefix(b []byte) int {
	// a rune is at most utf8.UTFMax bytes, so only the tail needs a look
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}

func send(ctx context.Context, ch chan<- string, s string) bool {
	select {
	case ch <- s:
		return true
	case <-ctx.Done():
		return false
	}
}
