// Package types provides typed failure values shared across the engine.
package types

import "fmt"

// InsufficientHistoryError reports that an input window is shorter than the
// minimum a computation requires.
type InsufficientHistoryError struct {
	Required int
	Got      int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: need %d snapshots, got %d", e.Required, e.Got)
}

// InvalidInstrumentParametersError reports non-physical pricing inputs.
type InvalidInstrumentParametersError struct {
	Reason string
}

func (e *InvalidInstrumentParametersError) Error() string {
	return fmt.Sprintf("invalid instrument parameters: %s", e.Reason)
}

// ModelNotLoadedError reports that classifier parameters are unavailable.
// The classifier never substitutes a default regime.
type ModelNotLoadedError struct {
	Detail string
}

func (e *ModelNotLoadedError) Error() string {
	if e.Detail == "" {
		return "regime model not loaded"
	}
	return fmt.Sprintf("regime model not loaded: %s", e.Detail)
}

// UnsupportedStrategyTypeError reports a request for a template that is not
// in the catalog.
type UnsupportedStrategyTypeError struct {
	StrategyType string
}

func (e *UnsupportedStrategyTypeError) Error() string {
	return fmt.Sprintf("unsupported strategy type: %q", e.StrategyType)
}
