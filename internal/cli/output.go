package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/smallbiznis/hera/pkg/heraclient"
)

// Response is the JSON shape printed with --format json.
type Response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type printer struct {
	format string
	out    io.Writer
}

func newPrinter(opts *RootOptions, out io.Writer) *printer {
	return &printer{format: opts.Format, out: out}
}

// success prints data as JSON, or calls text for the human form.
func (p *printer) success(data any, text func(io.Writer)) error {
	if p.format == "json" {
		return p.encode(Response{Status: "ok", Data: data})
	}
	text(p.out)
	return nil
}

// failure prints the error and returns it wrapped with an exit code.
func (p *printer) failure(code int, err error) error {
	payload := &Error{Code: "COMMAND_ERROR", Message: err.Error()}
	var apiErr *heraclient.APIError
	if errors.As(err, &apiErr) {
		payload.Code = apiErr.Code
		payload.Message = apiErr.Message
		if apiErr.Summary != nil {
			payload.Details = apiErr.Summary
		}
	}
	if p.format == "json" {
		if encErr := p.encode(Response{Status: "error", Error: payload}); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintf(p.out, "error: %s: %s\n", payload.Code, payload.Message)
	}
	return &ExitError{Code: code, Err: err}
}

func (p *printer) encode(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
