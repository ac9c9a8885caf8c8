package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SessionController stores and clears the bearer token used for remote calls.
type SessionController struct {
	session SessionState
	onLogin func()
}

func NewSessionController(session SessionState, onLogin func()) *SessionController {
	return &SessionController{session: session, onLogin: onLogin}
}

type loginRequest struct {
	Token string `json:"token" binding:"required"`
}

func (sc *SessionController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "token is required")
		return
	}
	if err := sc.session.SetToken(req.Token); err != nil {
		respondInternalError(c, err, "store session token")
		return
	}
	if sc.onLogin != nil {
		sc.onLogin()
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true})
}

func (sc *SessionController) Logout(c *gin.Context) {
	sc.session.ClearToken()
	c.JSON(http.StatusOK, gin.H{"authenticated": false})
}
