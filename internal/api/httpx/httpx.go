package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
)

// Envelope is the flat body every API response carries. Status mirrors an
// HTTP code but is reported in-band.
type Envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteEnvelope writes {status, message} on a 200 transport.
func WriteEnvelope(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, http.StatusOK, Envelope{Status: status, Message: msg})
}

func WriteInternal(w http.ResponseWriter) {
	WriteJSON(w, http.StatusInternalServerError, Envelope{
		Status:  http.StatusInternalServerError,
		Message: "internal error",
	})
}

// Param accepts a JSON string or number and keeps its text form. Any other
// value (bool, object, array) decodes as empty so callers fall back to
// their defaults.
type Param string

func (p *Param) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*p = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = Param(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		*p = ""
		return nil
	}
	*p = Param(n.String())
	return nil
}

func (p Param) String() string { return string(p) }

// Int parses the param, falling back to def when it is empty or not a number.
func (p Param) Int(def int) int {
	n, err := strconv.Atoi(string(p))
	if err != nil {
		return def
	}
	return n
}
