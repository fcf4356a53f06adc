package api

import (
	"encoding/json"
	"net/http"

	"github.com/veloshop/billing-backend/errors"
	"go.vocdoni.io/dvote/log"
)

// httpWriteJSON helper function allows to write a JSON response. The payload
// is marshaled before any byte hits the wire so a marshal failure can still
// change the response status.
func httpWriteJSON(w http.ResponseWriter, data any) {
	msg, err := json.Marshal(data)
	if err != nil {
		errors.ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(msg); err != nil {
		log.Warnw("failed to write on response", "error", err)
		return
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// writeError serializes a service error, falling back to the generic
// catalog entry when the error is not one of ours.
func writeError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(errors.Error); ok {
		apiErr.Write(w)
		return
	}
	errors.ErrGenericInternalServerError.WithErr(err).Write(w)
}
