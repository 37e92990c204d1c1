// Package errors provides structured error handling for the SSO proxy.
//
// Every failure surfaced to a handler carries an ErrorCode so the HTTP
// layer can map it to a status without string matching. Errors that
// originate at the identity backend keep the backend's original status via
// WithStatus, so the proxy relays what the backend decided rather than
// re-deriving it locally.
//
// Creating errors:
//
//	err := errors.New(errors.ErrCodeInvalidCredentials, "invalid credentials")
//	err := errors.Wrap(dbErr, errors.ErrCodeInternal, "failed to record device")
//	err := errors.ValidationFailed("email", "invalid email format")
//
// Inspecting errors:
//
//	if errors.IsCode(err, errors.ErrCodeUnauthenticated) {
//		// re-authenticate
//	}
//
//	var appErr *errors.Error
//	if stderrors.As(err, &appErr) {
//		status := appErr.HTTPStatusCode()
//	}
package errors
