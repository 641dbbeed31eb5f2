package util

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"blogclient/internal/models"
)

const maxBody = 1 << 20

// JSON writes env with the given status.
func JSON(w http.ResponseWriter, status int, env models.Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Printf("util.JSON: encode: %v", err)
	}
}

// OK writes a success envelope carrying data.
func OK(w http.ResponseWriter, status int, message string, data any) {
	env := models.Envelope{Success: true, Message: message}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			log.Printf("util.OK: marshal data: %v", err)
			Fail(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
			return
		}
		env.Data = raw
	}
	JSON(w, status, env)
}

// Fail writes a failure envelope.
func Fail(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, models.Envelope{Success: false, Code: code, Message: message})
}

// Decode reads a JSON request body into v. An empty body leaves v untouched.
func Decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
