package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func orgIDParam(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param("org_id"))
	if err != nil {
		AbortWithError(c, newValidationError("org_id", "invalid_org_id", "invalid organization id"))
		return 0, false
	}
	return id, true
}

func (s *Server) CreateConnectAccount(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}

	resp, err := s.connectSvc.CreateAccount(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Existing {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (s *Server) CreateOnboardingLink(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}

	resp, err := s.connectSvc.OnboardingLink(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetConnectStatus(c *gin.Context) {
	orgID, ok := orgIDParam(c)
	if !ok {
		return
	}

	status, err := s.connectSvc.GetStatus(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
