package backend

import "fmt"

// AuthError reports rejected credentials, a duplicate account, or a
// credential policy violation.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "auth: " + e.Reason
}

// ValidationError reports malformed user input. Screens raise it locally
// before any network call; the backend raises it for server-side checks
// such as the deposit minimum.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// AuthzError reports a failed capability check, such as publishing a tip
// without verified-provider status.
type AuthzError struct {
	Reason string
}

func (e *AuthzError) Error() string {
	return "authorization: " + e.Reason
}

// NetworkError wraps a transport failure or a backend outage.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
