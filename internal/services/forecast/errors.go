package forecast

import (
	"errors"
	"fmt"

	"github.com/j-veylop/spendlens/internal/models"
)

var (
	// ErrInsufficientHistory matches any InsufficientHistoryError.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrUnknownMethod matches any UnknownMethodError.
	ErrUnknownMethod = errors.New("unknown forecast method")
	// ErrInvalidHorizon is returned for a horizon below one period.
	ErrInvalidHorizon = errors.New("horizon must be at least 1")
)

// InsufficientHistoryError reports a series too short to forecast.
type InsufficientHistoryError struct {
	Method models.ForecastMethod
	Have   int
	Need   int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("%s needs at least %d periods of history, got %d", e.Method, e.Need, e.Have)
}

// Is lets errors.Is match ErrInsufficientHistory.
func (e *InsufficientHistoryError) Is(target error) bool {
	return target == ErrInsufficientHistory
}

// UnknownMethodError reports a method name with no registered model.
type UnknownMethodError struct {
	Method string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("unknown forecast method %q", e.Method)
}

// Is lets errors.Is match ErrUnknownMethod.
func (e *UnknownMethodError) Is(target error) bool {
	return target == ErrUnknownMethod
}
