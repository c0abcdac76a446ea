// Package tools exposes the wallet operations as named tools with string
// parameters and structured results, for use by a language-model agent.
//
// A tool never returns a Go error to its caller. Every failure is logged with
// the operation and the id it targeted, then converted into a Result whose
// Error carries the classified code and a readable message.
package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/better-wallet/wallet-agent/internal/logger"
	apperrors "github.com/better-wallet/wallet-agent/pkg/errors"
)

// Parameter describes one string argument of a tool.
type Parameter struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     string `json:"default,omitempty"`
}

// Tool is one callable wallet operation.
type Tool interface {
	Name() string
	Description() string
	Parameters() []Parameter
	Invoke(ctx context.Context, args map[string]string) Result
}

// Result is the structured outcome handed back to the agent.
type Result struct {
	OK    bool          `json:"ok"`
	Data  any           `json:"data,omitempty"`
	Error *ErrorPayload `json:"error,omitempty"`
}

// ErrorPayload describes a failed invocation.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Success wraps data in an OK result.
func Success(data any) Result {
	return Result{OK: true, Data: data}
}

// Failure converts err into an error result. Errors that are not AppErrors are
// reported as internal errors.
func Failure(err error) Result {
	appErr, ok := apperrors.IsAppError(err)
	if !ok {
		return Result{Error: &ErrorPayload{
			Code:    apperrors.ErrCodeInternalError,
			Message: err.Error(),
		}}
	}

	payload := &ErrorPayload{
		Code:    appErr.Code,
		Message: appErr.Message,
		Status:  appErr.StatusCode,
		Detail:  appErr.Detail,
	}
	if appErr.Code == apperrors.ErrCodeRemote && appErr.Body != "" {
		payload.Detail = appErr.Body
	}
	return Result{Error: payload}
}

// JSON renders the result for a model context.
func (r Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		data, _ = json.Marshal(Failure(apperrors.Wrap(apperrors.ErrCodeInternalError, "Result is not serializable", err)))
	}
	return string(data)
}

// String is a one-line human summary.
func (r Result) String() string {
	if r.OK {
		return "ok"
	}
	if r.Error == nil {
		return "failed"
	}
	msg := r.Error.Code + ": " + r.Error.Message
	if r.Error.Detail != "" {
		msg += " (" + r.Error.Detail + ")"
	}
	return msg
}

// fail logs err with the operation's target and converts it.
func fail(ctx context.Context, targetKey, target string, err error) Result {
	logger.Error(ctx, "tool invocation failed", targetKey, target, "error", err)
	return Failure(err)
}

// arg returns the first non-empty trimmed value among names.
func arg(args map[string]string, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(args[name]); v != "" {
			return v
		}
	}
	return ""
}

func invalid(param string, err error) error {
	return apperrors.InvalidArgument(param, err)
}
