package ai

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/siegecorps/siegebot/internal/models"
)

// Provider performs one completion call against a generation backend
type Provider interface {
	Name() string
	Complete(ctx context.Context, req models.GenerationRequest) (string, error)
}

// ProviderError is the normalized shape of a backend failure
type ProviderError struct {
	Provider   string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError classifies a failure by HTTP status. Status 0 means the
// request never got a response and is treated as a transport failure.
func NewProviderError(provider string, status int, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Transient:  status == 0 || status == 429 || status >= 500,
		Err:        err,
	}
}

// errEmptyReply is returned by providers when the backend answered with no text
var errEmptyReply = errors.New("empty completion")

// IsTransient reports whether a retry may succeed
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, errEmptyReply) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	var ne net.Error
	return errors.As(err, &ne)
}
