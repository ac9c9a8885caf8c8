package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/caresync/internal/database"
)

type HealthResponse struct {
	Status  string            `json:"status"`
	Time    string            `json:"time"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

type OnlineChecker interface {
	Online() bool
}

type HealthController struct {
	db      *database.Database
	online  OnlineChecker
	version string
}

func NewHealthController(db *database.Database, online OnlineChecker, version string) *HealthController {
	return &HealthController{
		db:      db,
		online:  online,
		version: version,
	}
}

// Status reports local health. Being offline is not unhealthy: the store keeps
// accepting writes and queues them.
func (h *HealthController) Status(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"

	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			checks["database"] = "error: " + err.Error()
			status = "unhealthy"
		} else {
			checks["database"] = "ok"
		}
		if version, err := h.db.SchemaVersion(); err == nil {
			checks["schema_version"] = strconv.Itoa(version)
		}
	} else {
		checks["database"] = "not configured"
	}

	if h.online != nil {
		if h.online.Online() {
			checks["remote"] = "online"
		} else {
			checks["remote"] = "offline"
		}
	}

	health := HealthResponse{
		Status:  status,
		Time:    time.Now().Format(time.RFC3339),
		Version: h.version,
		Checks:  checks,
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.IndentedJSON(statusCode, health)
}
