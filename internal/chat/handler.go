package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ibtisamdev/reva-sub001/pkg/logging"
)

const (
	maxMessageRunes    = 10000
	defaultTurnTimeout = 60 * time.Second
)

// TurnRunner is satisfied by *Executor.
type TurnRunner interface {
	Run(ctx context.Context, req TurnRequest) (TurnResult, error)
}

// TurnObserver is told about every finished turn, aborted ones included.
type TurnObserver interface {
	ObserveTurn(ctx context.Context, req TurnRequest, result TurnResult, turnErr error)
}

type TurnHandler struct {
	Runner      TurnRunner
	Observer    TurnObserver
	Logger      logging.Logger
	TurnTimeout time.Duration
}

func NewTurnHandler(runner TurnRunner, observer TurnObserver, logger logging.Logger, turnTimeout time.Duration) *TurnHandler {
	if turnTimeout <= 0 {
		turnTimeout = defaultTurnTimeout
	}
	return &TurnHandler{Runner: runner, Observer: observer, Logger: logger, TurnTimeout: turnTimeout}
}

func RegisterRoutes(router gin.IRoutes, handler *TurnHandler) {
	router.POST("/turn", handler.HandleTurn)
}

func (h *TurnHandler) HandleTurn(c *gin.Context) {
	if h == nil || h.Runner == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "executor unavailable"})
		return
	}

	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	req.StoreID = strings.TrimSpace(req.StoreID)
	switch {
	case req.StoreID == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "store_id is required"})
		return
	case req.Message == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	case len([]rune(req.Message)) > maxMessageRunes:
		c.JSON(http.StatusBadRequest, gin.H{"error": "message too long"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.TurnTimeout)
	defer cancel()

	result, err := h.Runner.Run(ctx, req)
	if h.Observer != nil {
		// Publish even when the client has gone away.
		h.Observer.ObserveTurn(context.WithoutCancel(c.Request.Context()), req, result, err)
	}
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case errors.Is(err, ErrTurnAborted):
		c.JSON(http.StatusGatewayTimeout, result)
	default:
		if h.Logger != nil {
			h.Logger.WithError(err).WithField("store_id", req.StoreID).Error("Turn failed")
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "turn failed"})
	}
}
