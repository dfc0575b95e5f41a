// Package errors provides structured, actionable error messages for the
// optimist CLI and internals.
//
// Each error carries a stable code (e.g., "E020") that maps to a short
// message and a detailed explanation, plus an optional per-instance detail
// and fix suggestion. Codes are organized by category:
//   - state: cache binding and update-loop errors
//   - config: optimist.json loading and validation errors
//   - persist: snapshot backend errors
//   - cli: command-level errors
//
// # Usage
//
//	err := errors.New("E020").
//	    WithDetail("No optimist.json found in /srv/ideas").
//	    WithSuggestion("Run 'optimist init' to create one")
//
//	fmt.Print(err.Format())
//	// Output:
//	// ERROR E020: No optimist.json found
//	//
//	//   No optimist.json found in /srv/ideas
//	//
//	//   Hint: Run 'optimist init' to create one
//
// Errors support the standard errors.Is and errors.As chains: Is matches
// any *Error with the same code, and Wrap records an underlying cause.
package errors
