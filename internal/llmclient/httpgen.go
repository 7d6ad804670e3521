package llmclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// doGenerateRequest executes req, classifies transport/HTTP failures the
// same way across every provider, and hands a successful 2xx body to parse
// to extract the generated text.
func doGenerateRequest(client *http.Client, req *http.Request, providerName string, parse func(body []byte) (string, error)) (string, *LLMError) {
	resp, err := client.Do(req)
	if err != nil {
		cause := ErrCauseTransport
		retryable := true
		if errors.Is(req.Context().Err(), context.DeadlineExceeded) {
			cause = ErrCauseTimeout
		}
		return "", &LLMError{Provider: providerName, Message: err.Error(), Cause: cause, Retryable: retryable}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return "", &LLMError{Provider: providerName, Message: readErr.Error(), Cause: ErrCauseTransport, Retryable: true}
	}

	if resp.StatusCode >= 500 {
		return "", &LLMError{Provider: providerName, Message: fmt.Sprintf("server error: %d", resp.StatusCode), Cause: ErrCauseHTTPStatus, Retryable: true}
	}
	if resp.StatusCode >= 400 {
		return "", &LLMError{Provider: providerName, Message: fmt.Sprintf("client error: %d: %s", resp.StatusCode, string(body)), Cause: ErrCauseHTTPStatus, Retryable: false}
	}

	text, parseErr := parse(body)
	if parseErr != nil {
		return "", &LLMError{Provider: providerName, Message: parseErr.Error(), Cause: ErrCauseMalformedReply, Retryable: false}
	}
	return text, nil
}
