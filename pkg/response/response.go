package response

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/mbeoliero/trato/pkg/errcode"
)

// Response represents a standard API response
type Response struct {
	Code int         `json:"code"`
	Kind string      `json:"kind,omitempty"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

// Success sends a success response
func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: 0,
		Msg:  "success",
		Data: data,
	})
}

// Error sends an error response. Errors that are not business errors are
// reported as internal errors without leaking their text.
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithCode(ctx, c, errcode.From(err))
}

// ErrorWithCode sends an error response with specific error code
func ErrorWithCode(ctx context.Context, c *app.RequestContext, e *errcode.Error) {
	status := http.StatusOK
	if e.Code == errcode.ErrServiceUnavailable.Code {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, Response{
		Code: e.Code,
		Kind: e.Kind,
		Msg:  e.Msg,
	})
}

// Unauthorized sends a 401 unauthorized response
func Unauthorized(ctx context.Context, c *app.RequestContext, e *errcode.Error) {
	c.JSON(http.StatusUnauthorized, Response{
		Code: e.Code,
		Kind: e.Kind,
		Msg:  e.Msg,
	})
}
