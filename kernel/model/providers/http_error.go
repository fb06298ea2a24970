package providers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"google.golang.org/genai"
)

// HTTPError is returned when a provider answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("model: http status %d", e.StatusCode)
	}
	return fmt.Sprintf("model: http status %d body=%s", e.StatusCode, e.Body)
}

// StatusCode extracts the provider HTTP status from err, or 0. It
// understands the SDK error types of the Anthropic and Gemini gateways.
func StatusCode(err error) int {
	var target *HTTPError
	if errors.As(err, &target) {
		return target.StatusCode
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code
	}
	return 0
}

func statusError(resp *http.Response) error {
	if resp == nil {
		return fmt.Errorf("model: empty http response")
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
}
