// Package responders holds the success-path response writers the HTTP
// handlers share. Error responses live in the errors package, next to the
// codes that shape them.
package responders

import (
	"encoding/json"
	"net/http"
)

// JSON writes payload as an application/json response with the given
// status. A nil payload sends the status line and headers only.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	// The status line is already on the wire; an encode failure here has
	// nowhere to report but the connection itself.
	_ = enc.Encode(payload)
}
