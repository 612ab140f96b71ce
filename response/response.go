package response

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Success  bool        `json:"success"`
	Error    string      `json:"error"`
	Messages []string    `json:"messages"`
	Result   interface{} `json:"result"`
}

// WriteError renders e as JSON with its status code
func WriteError(w http.ResponseWriter, r *http.Request, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	json.NewEncoder(w).Encode(errorBody{
		Success:  false,
		Error:    e.Message,
		Messages: e.Messages,
		Result:   e.Result,
	})
}

// WriteResponse renders v as JSON with 200 OK
func WriteResponse(w http.ResponseWriter, r *http.Request, v interface{}) {
	WriteResponseWithStatus(w, r, http.StatusOK, v)
}

// WriteResponseWithStatus renders v as JSON with the given status code
func WriteResponseWithStatus(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
