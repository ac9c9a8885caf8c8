package http

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/caresync/internal/database"
	"github.com/mrlokans/caresync/internal/records"
)

// --- Response Types ---

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`    // machine-readable error code
	Details any    `json:"details,omitempty"` // additional context (validation errors, etc.)
}

// SuccessResponse is a standard success response with optional data.
type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// PaginatedResponse wraps paginated data with metadata.
type PaginatedResponse struct {
	Data    any   `json:"data"`
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
}

// --- Error Response Helpers ---

// respondBadRequest sends a 400 Bad Request response.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

// respondNotFound sends a 404 Not Found response.
func respondNotFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: resource + " not found"})
}

// respondInternalError logs the error and sends a 500 Internal Server Error response.
// The actual error is logged but not exposed to the client.
func respondInternalError(c *gin.Context, err error, context string) {
	log.Printf("Internal error (%s): %v", context, err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

// respondError sends an error response with the given status code.
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

// respondRecordError maps records service failures onto status codes.
func respondRecordError(c *gin.Context, err error, resource string) {
	var vErr *records.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   vErr.Error(),
			Code:    "validation_failed",
			Details: gin.H{"field": vErr.Field, "reason": vErr.Reason},
		})
	case errors.Is(err, database.ErrNotFound):
		respondNotFound(c, resource)
	default:
		respondInternalError(c, err, resource)
	}
}

// --- Success Response Helpers ---

// respondSuccess sends a 200 OK response with a message.
func respondSuccess(c *gin.Context, message string) {
	c.JSON(http.StatusOK, SuccessResponse{Message: message})
}

// respondCreated sends a 201 Created response with data.
func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// respondAccepted sends a 202 Accepted response (for async operations).
func respondAccepted(c *gin.Context, message string, data any) {
	c.JSON(http.StatusAccepted, SuccessResponse{Message: message, Data: data})
}

// --- Parameter Parsing ---

// parseLocalIDParam extracts a local id from URL parameters.
// Responds with a 400 error and returns "", false when it is empty.
func parseLocalIDParam(c *gin.Context, paramName string) (string, bool) {
	id := c.Param(paramName)
	if id == "" {
		respondBadRequest(c, paramName+" is required")
		return "", false
	}
	return id, true
}

// parsePagination reads limit and offset query parameters with defaults.
func parsePagination(c *gin.Context, defaultLimit, maxLimit int) (limit, offset int, ok bool) {
	limit = defaultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondBadRequest(c, "invalid limit")
			return 0, 0, false
		}
		limit = min(n, maxLimit)
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondBadRequest(c, "invalid offset")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

// dateLayout is the format of calendar dates in request bodies.
const dateLayout = "2006-01-02"

// parseDate parses an optional date field. A nil or empty value yields nil.
func parseDate(field string, v *string) (*time.Time, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *v)
	if err != nil {
		return nil, &records.ValidationError{Field: field, Reason: "must be a date in YYYY-MM-DD format"}
	}
	return &t, nil
}
