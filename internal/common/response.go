package common

import (
	"encoding/json"
	"net/http"
)

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Error: message})
}

// RespondWithErrorDetail adds the optional human-readable detail to the error envelope.
func RespondWithErrorDetail(w http.ResponseWriter, code int, message, detail string) {
	RespondWithJSON(w, code, ErrorResponse{Error: message, Message: detail})
}

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success": false, "error": "Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Envelope is the success body shape: {"success": true, ...fields}.
type Envelope map[string]interface{}

func RespondWithSuccess(w http.ResponseWriter, code int, fields Envelope) {
	body := Envelope{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	RespondWithJSON(w, code, body)
}
