package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
)

// ErrorKind classifies generation failures.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindQuota     ErrorKind = "quota"
	KindUpstream  ErrorKind = "upstream"
	KindMalformed ErrorKind = "malformed"
	KindConfig    ErrorKind = "config"
)

// Error is a generation failure. The recipe cache absorbs it into a fallback entry.
type Error struct {
	Kind       ErrorKind
	Provider   string
	Model      string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	parts := []string{string(e.Kind)}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Provider != "" {
		parts = append(parts, "provider="+e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind of a generation error, upstream for foreign errors.
func KindOf(err error) ErrorKind {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUpstream
}

func malformed(provider, model, msg string) *Error {
	return &Error{Kind: KindMalformed, Provider: provider, Model: model, Message: msg}
}

// classify переводит ошибки SDK в *Error.
func classify(err error, provider, model string) *Error {
	if err == nil {
		return nil
	}
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr
	}

	out := &Error{Kind: KindUpstream, Provider: provider, Model: model, Cause: err}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		out.Kind = KindTimeout
		return out
	}

	var oaAPI *openai.APIError
	var oaReq *openai.RequestError
	var anReq *anthropic.RequestError
	var anAPI *anthropic.APIError
	var gErr *googleapi.Error
	switch {
	case errors.As(err, &oaAPI):
		out.StatusCode = oaAPI.HTTPStatusCode
	case errors.As(err, &oaReq):
		out.StatusCode = oaReq.HTTPStatusCode
	case errors.As(err, &anReq):
		out.StatusCode = anReq.StatusCode
	case errors.As(err, &anAPI):
		if t := string(anAPI.Type); t == "rate_limit_error" || t == "overloaded_error" {
			out.Kind = KindQuota
			return out
		}
	case errors.As(err, &gErr):
		out.StatusCode = gErr.Code
	}

	lower := strings.ToLower(err.Error())
	switch {
	case out.StatusCode == http.StatusTooManyRequests || out.StatusCode == http.StatusPaymentRequired,
		strings.Contains(lower, "rate limit"), strings.Contains(lower, "quota"):
		out.Kind = KindQuota
	case out.StatusCode == http.StatusUnauthorized || out.StatusCode == http.StatusForbidden:
		out.Kind = KindConfig
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		out.Kind = KindTimeout
	}
	return out
}
