package mcp

import (
	"errors"

	ragerr "github.com/ragmill/ragmill/internal/errors"
)

// Envelope is the common response wrapper. Operation failures are carried
// here rather than as protocol errors; the process never dies on one.
type Envelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}

func okEnvelope() Envelope {
	return Envelope{Success: true}
}

func failEnvelope(err error) Envelope {
	var re *ragerr.RagError
	if errors.As(err, &re) {
		return Envelope{Error: re.Error(), ErrorType: re.ErrorType()}
	}
	return Envelope{Error: err.Error(), ErrorType: "internal_error"}
}
