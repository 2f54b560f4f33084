// Package jsonapi renders the application/vnd.api+json envelope used by the HTTP surface.
package jsonapi

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

const ContentType = "application/vnd.api+json"

// version is the fixed jsonapi.version reported on every success document; error
// documents do not carry it.
var version = map[string]string{"version": "1.1"}

// Resource is a single {type, id, attributes, relationships?} member of a data array/object.
type Resource struct {
	Type          string         `json:"type"`
	ID            string         `json:"id"`
	Attributes    any            `json:"attributes,omitempty"`
	Relationships map[string]any `json:"relationships,omitempty"`
}

// Document is the top-level {data, meta, jsonapi} success envelope.
type Document struct {
	Data    any            `json:"data"`
	Meta    map[string]any `json:"meta,omitempty"`
	JSONAPI map[string]string `json:"jsonapi"`
}

// ErrorObject is a single {status, title, detail, source?} member of an error document.
type ErrorObject struct {
	Status string         `json:"status"`
	Title  string         `json:"title"`
	Detail string         `json:"detail,omitempty"`
	Source map[string]any `json:"source,omitempty"`
}

// ErrorDocument is the top-level {errors: [...]} failure envelope.
type ErrorDocument struct {
	Errors []ErrorObject `json:"errors"`
}

// Render writes a single-resource JSON:API success document.
func Render(c echo.Context, status int, data any, meta map[string]any) error {
	c.Response().Header().Set(echo.HeaderContentType, ContentType)
	return c.JSON(status, Document{Data: data, Meta: meta, JSONAPI: version})
}

// RenderError translates err into a JSON:API error document and writes it.
// apperror.Error values translate 1:1 per their HTTPStatus/Code/Message; an
// echo.HTTPError keeps its status code and string message; anything else becomes a 500
// with a generic title so internals never leak to callers.
func RenderError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	obj := ErrorObject{Status: "500", Title: "internal_error", Detail: "An internal error occurred"}

	if appErr, ok := err.(*apperror.Error); ok {
		status = appErr.HTTPStatus
		obj = ErrorObject{
			Status: itoa(status),
			Title:  appErr.Code,
			Detail: appErr.Message,
		}
		if len(appErr.Details) > 0 {
			obj.Source = appErr.Details
		}
	} else if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		obj.Status = itoa(status)
		obj.Title = http.StatusText(status)
		if msg, ok := he.Message.(string); ok {
			obj.Detail = msg
		}
	}

	c.Response().Header().Set(echo.HeaderContentType, ContentType)
	return c.JSON(status, ErrorDocument{Errors: []ErrorObject{obj}})
}

// HTTPErrorHandler returns the echo.HTTPErrorHandler used across the HTTP surface. It
// renders every error as a JSON:API error document and logs 5xx responses at error level.
func HTTPErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		if appErr, ok := err.(*apperror.Error); ok {
			status = appErr.HTTPStatus
		} else if he, ok := err.(*echo.HTTPError); ok {
			status = he.Code
		}

		if status >= 500 {
			log.Error("request error",
				slog.Int("status", status),
				logger.Error(err),
			)
		}

		if c.Request().Method == http.MethodHead {
			c.NoContent(status)
			return
		}
		_ = RenderError(c, err)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
