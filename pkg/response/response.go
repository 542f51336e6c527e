package response

import (
	"encoding/json"
	"net/http"
	"strconv"

	"lootcase-api/pkg/apierror"
)

// Page wraps a paginated listing.
type Page struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Page    int         `json:"page"`
	Limit   int         `json:"limit"`
	Total   int64       `json:"total"`
}

// JSON sends data as-is with the given status code. Result types carry
// their own success flag so the client sees a flat object.
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	_ = json.NewEncoder(w).Encode(data)
}

// Paginated sends a listing with pagination metadata.
func Paginated(w http.ResponseWriter, data interface{}, page, limit int, total int64) {
	JSON(w, http.StatusOK, Page{
		Success: true,
		Data:    data,
		Page:    page,
		Limit:   limit,
		Total:   total,
	})
}

// Error sends an error response. Anything that is not an *apierror.Error
// becomes a generic 500 so internals never reach the client.
func Error(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*apierror.Error)
	if !ok {
		apiErr = apierror.InternalError("an unexpected error occurred")
	}

	w.Header().Set("Content-Type", "application/json")
	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}
	w.WriteHeader(apiErr.StatusCode)
	w.Write(apiErr.ToJSON())
}

// OK sends a 200 OK response.
func OK(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}
