package simulation

import "fmt"

// NetworkError is a failure produced by the condition model. It is always
// retryable from the caller's perspective.
type NetworkError struct {
	Condition string
	Reason    string
}

func (e *NetworkError) Error() string {
	if e.Condition == "" {
		return fmt.Sprintf("simulated network failure: %s", e.Reason)
	}
	return fmt.Sprintf("simulated network failure (%s): %s", e.Condition, e.Reason)
}

// Retryable always reports true for network failures.
func (e *NetworkError) Retryable() bool { return true }

// ScenarioError is a fault synthesized by the injector for scenarios that do
// not carry a status code.
type ScenarioError struct {
	Scenario  string
	Type      ErrorType
	Message   string
	retryable bool
}

func (e *ScenarioError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("simulated %s error (scenario %q)", e.Type, e.Scenario)
}

// Retryable reports the scenario's configured retryability.
func (e *ScenarioError) Retryable() bool { return e.retryable }
