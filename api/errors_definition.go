//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400 or 404 (or even 204), whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX
// If you notice there's a gap (say, error code 4010, 4011 and 4013 exist, 4012 is missing) DON'T fill in the gap,
// that code was used in the past for some error (not anymore) and shouldn't be reused.
// There's no correlation between Code and HTTP Status.
//
// Do note that HTTPstatus 204 No Content implies the response body will be empty,
// so the Code and Message will actually be discarded, never sent to the client
var (
	ErrResourceNotFound            = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody               = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedIdentityCommitment = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed identity commitment")}
	ErrIncompleteProof             = Error{Code: 40009, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("incomplete proof")}
	ErrMissingEpoch                = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("missing epoch")}
	ErrSecretNotRecoverable        = Error{Code: 40011, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("breaching proof does not allow to recover the secret")}
	ErrInvalidEpoch                = Error{Code: 40012, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("epoch is not a canonical field element")}
	ErrMethodNotAllowed            = Error{Code: 40013, HTTPstatus: http.StatusMethodNotAllowed, Err: fmt.Errorf("method not allowed")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrVerificationUnavailable    = Error{Code: 50003, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("verification key not available")}
	ErrRegistryUnavailable        = Error{Code: 50004, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("registry not available")}
)
