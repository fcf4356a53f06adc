// Package errors provides custom error types and definitions for the application.
//
//nolint:lll
package errors

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the caller's fault,
// and they return HTTP Status 400, 404 or 409, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 502, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the
// current last 4XXX or 5XXX. If you notice there's a gap, DON'T fill it in, that
// code was used in the past for some error and shouldn't be reused.
var (
	// Validation errors (400). These mean the caller can fix the input and retry.
	ErrMalformedBody     = Error{Code: 40001, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid JSON request body")}
	ErrEmailMalformed    = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid email format")}
	ErrMalformedURLParam = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid URL parameter")}
	ErrInvalidAmount     = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid payment amount")}
	ErrInvalidCurrency   = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid or unsupported currency")}
	ErrInvalidCountry    = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid country code")}
	ErrPlanNotActive     = Error{Code: 40007, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("plan is not active")}

	// Not found errors (404). Also fix-input-and-retry from the client's perspective.
	ErrPlanNotFound         = Error{Code: 40401, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("plan not found")}
	ErrCustomerNotFound     = Error{Code: 40402, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("customer not found")}
	ErrSubscriptionNotFound = Error{Code: 40403, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("subscription not found")}
	ErrOrderNotFound        = Error{Code: 40404, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("order not found")}

	// Webhook authenticity failure (400). The event is rejected, never processed.
	ErrInvalidSignature = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("webhook signature verification failed"), LogLevel: "warn"}

	// Conflict errors (409). Resolved internally by re-reading the existing row;
	// only surfaced if the re-read itself fails.
	ErrDuplicateConflict = Error{Code: 40901, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("resource already exists")}

	// Server errors (500/502). "System problem, do not resubmit blindly."
	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: failed to process response"), LogLevel: "error"}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: operation failed"), LogLevel: "error"}
	// ErrGatewayError covers remote payment-gateway failures: declined cards,
	// network failures, malformed remote responses. The remote-supplied message
	// is appended where available. Retry decisions belong to the caller.
	ErrGatewayError = Error{Code: 50003, HTTPstatus: http.StatusBadGateway, Err: fmt.Errorf("payment gateway request failed"), LogLevel: "error"}
	// ErrPersistenceError means a remote call succeeded but the local mirror
	// write failed, so the mirror may have drifted from remote truth.
	ErrPersistenceError     = Error{Code: 50004, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: mirror persistence failed after gateway call"), LogLevel: "error"}
	ErrInternalStorageError = Error{Code: 50005, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: storage operation failed"), LogLevel: "error"}
	ErrWebhookProcessing    = Error{Code: 50006, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("server error: webhook processing failed"), LogLevel: "error"}
)
