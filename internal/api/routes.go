// Package api exposes the voice-call engine over HTTP: call lifecycle
// endpoints plus a websocket feed of live call state.
package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/memory-postcard/voicecall/internal/auth"
	"github.com/memory-postcard/voicecall/internal/store"
	"github.com/memory-postcard/voicecall/usecase"
)

// InitRoutes initializes all API routes.
func InitRoutes(e *echo.Echo, svc *usecase.CallService, st *store.Store, jwtAuth *auth.JWT, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "voicecall-engine",
		})
	})

	v1 := e.Group("/api/v1")

	v1.POST("/calls", func(c echo.Context) error {
		return startCall(c, svc, jwtAuth, logger)
	})
	v1.POST("/calls/:channel/stop", func(c echo.Context) error {
		return stopCall(c, svc, jwtAuth, logger)
	})
	v1.POST("/calls/:channel/mute", func(c echo.Context) error {
		return muteCall(c, svc, jwtAuth, logger)
	})
	v1.POST("/calls/:channel/agent/retry", func(c echo.Context) error {
		return retryAgent(c, svc, jwtAuth, logger)
	})
	v1.GET("/calls/:channel/transcript", func(c echo.Context) error {
		return getTranscript(c, svc, st, jwtAuth)
	})

	// WebSocket feed of store updates for the active call
	e.GET("/ws/calls/:channel", func(c echo.Context) error {
		return callFeed(c, svc, st, jwtAuth, logger)
	})
}

func startCall(c echo.Context, svc *usecase.CallService, jwtAuth *auth.JWT, logger *zap.Logger) error {
	claims, err := userClaims(c, jwtAuth)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req StartCallRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind start call request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.CharacterID == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "character_id is required",
		})
	}

	channel, err := svc.StartCall(c.Request().Context(), req.CharacterID, claims.UserID)
	if err != nil {
		logger.Error("Failed to start call",
			zap.Uint("characterID", req.CharacterID), zap.Error(err))
		if channel != "" {
			// Transport is up but the agent is not; the caller may retry.
			return c.JSON(http.StatusBadGateway, ErrorResponse{
				Error:   "agent_unavailable",
				Message: err.Error(),
			})
		}
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "call_failed",
			Message: err.Error(),
		})
	}

	return c.JSON(http.StatusOK, StartCallResponse{Channel: channel})
}

func stopCall(c echo.Context, svc *usecase.CallService, jwtAuth *auth.JWT, logger *zap.Logger) error {
	if _, err := userClaims(c, jwtAuth); err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	if !channelMatches(c, svc) {
		return unknownChannel(c)
	}

	svc.EndCall()
	logger.Info("Call stop requested", zap.String("channel", c.Param("channel")))
	return c.NoContent(http.StatusAccepted)
}

func muteCall(c echo.Context, svc *usecase.CallService, jwtAuth *auth.JWT, logger *zap.Logger) error {
	if _, err := userClaims(c, jwtAuth); err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	if !channelMatches(c, svc) {
		return unknownChannel(c)
	}

	var req MuteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if err := svc.SetMuted(req.Muted); err != nil {
		logger.Error("Failed to toggle mute", zap.Error(err))
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "mute_failed",
			Message: err.Error(),
		})
	}
	return c.NoContent(http.StatusNoContent)
}

func retryAgent(c echo.Context, svc *usecase.CallService, jwtAuth *auth.JWT, logger *zap.Logger) error {
	if _, err := userClaims(c, jwtAuth); err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	if !channelMatches(c, svc) {
		return unknownChannel(c)
	}

	if err := svc.RetryAgent(c.Request().Context()); err != nil {
		logger.Error("Agent retry failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "agent_unavailable",
			Message: err.Error(),
		})
	}
	return c.NoContent(http.StatusNoContent)
}

func getTranscript(c echo.Context, svc *usecase.CallService, st *store.Store, jwtAuth *auth.JWT) error {
	if _, err := userClaims(c, jwtAuth); err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	if !channelMatches(c, svc) {
		return unknownChannel(c)
	}

	return c.JSON(http.StatusOK, TranscriptResponse{
		Channel: c.Param("channel"),
		Entries: st.Transcript(),
	})
}

// channelMatches reports whether the request names the active channel.
func channelMatches(c echo.Context, svc *usecase.CallService) bool {
	channel := c.Param("channel")
	return channel != "" && channel == svc.ActiveChannel()
}

func unknownChannel(c echo.Context) error {
	return c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   "unknown_channel",
		Message: "No active call on this channel",
	})
}

// userClaims validates the bearer token from the Authorization header,
// falling back to the token query parameter for websocket clients.
func userClaims(c echo.Context, jwtAuth *auth.JWT) (*auth.Claims, error) {
	token := c.QueryParam("token")
	if header := c.Request().Header.Get("Authorization"); header != "" {
		token = strings.TrimPrefix(header, "Bearer ")
	}
	return jwtAuth.ValidateToken(token)
}
