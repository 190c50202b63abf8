package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mpesaapp "github.com/makao/backend/internal/application/mpesa"
	"github.com/makao/backend/internal/infrastructure/daraja"
)

// MpesaCallbackHandler handles the provider's callback endpoints. These are
// called by the gateway, not by our clients, so they sit outside
// authentication and always acknowledge with HTTP 200: a non-200 makes the
// provider retry a payload that will never parse any better, and a failure
// on our side is recovered by the sweep rather than by provider retries.
type MpesaCallbackHandler struct {
	callbacks *mpesaapp.CallbackService
	logger    *zap.Logger
}

// NewMpesaCallbackHandler creates a new MpesaCallbackHandler
func NewMpesaCallbackHandler(callbacks *mpesaapp.CallbackService, logger *zap.Logger) *MpesaCallbackHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MpesaCallbackHandler{
		callbacks: callbacks,
		logger:    logger,
	}
}

// RegisterPublicRoutes wires the callback endpoints directly on the engine
// at the exact paths the provider was configured with
func (h *MpesaCallbackHandler) RegisterPublicRoutes(engine *gin.Engine) {
	engine.POST(daraja.StkCallbackPath, h.HandleStkCallback)
	engine.POST(daraja.C2BConfirmationPath, h.HandleC2BConfirmation)
	engine.POST(daraja.B2CResultPath, h.HandleB2CResult)
	engine.POST(daraja.B2CTimeoutPath, h.HandleB2CTimeout)
}

// gatewayAck is the acknowledgement body the provider expects
type gatewayAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

func (h *MpesaCallbackHandler) ack(c *gin.Context) {
	c.JSON(http.StatusOK, gatewayAck{ResultCode: 0, ResultDesc: "Accepted"})
}

func (h *MpesaCallbackHandler) readBody(c *gin.Context, kind string) ([]byte, bool) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("failed to read callback body",
			zap.String("kind", kind),
			zap.Error(err))
		h.ack(c)
		return nil, false
	}
	return payload, true
}

// HandleStkCallback processes the result of a push prompt
func (h *MpesaCallbackHandler) HandleStkCallback(c *gin.Context) {
	payload, ok := h.readBody(c, "stk")
	if !ok {
		return
	}

	result, err := daraja.ParseStkCallback(payload)
	if err != nil {
		h.logger.Warn("unparseable stk callback", zap.Error(err))
		h.ack(c)
		return
	}

	if err := h.callbacks.HandleStkCallback(c.Request.Context(), result); err != nil {
		h.logger.Error("stk callback processing failed",
			zap.String("checkout_id", result.CheckoutID),
			zap.Error(err))
	}
	h.ack(c)
}

// HandleC2BConfirmation processes a tenant-initiated paybill deposit
func (h *MpesaCallbackHandler) HandleC2BConfirmation(c *gin.Context) {
	payload, ok := h.readBody(c, "c2b")
	if !ok {
		return
	}

	conf, err := daraja.ParseC2BConfirmation(payload)
	if err != nil {
		h.logger.Warn("unparseable c2b confirmation", zap.Error(err))
		h.ack(c)
		return
	}

	if err := h.callbacks.HandleC2BConfirmation(c.Request.Context(), conf); err != nil {
		h.logger.Error("c2b confirmation processing failed",
			zap.String("provider_reference", conf.ProviderReference),
			zap.Error(err))
	}
	h.ack(c)
}

// HandleB2CResult processes the result of a payout
func (h *MpesaCallbackHandler) HandleB2CResult(c *gin.Context) {
	payload, ok := h.readBody(c, "b2c_result")
	if !ok {
		return
	}

	result, err := daraja.ParseB2CResult(payload)
	if err != nil {
		h.logger.Warn("unparseable b2c result", zap.Error(err))
		h.ack(c)
		return
	}

	if err := h.callbacks.HandleB2CResult(c.Request.Context(), result); err != nil {
		h.logger.Error("b2c result processing failed",
			zap.String("conversation_id", result.ConversationID),
			zap.Error(err))
	}
	h.ack(c)
}

// HandleB2CTimeout processes the provider's notice that a payout request
// sat in their queue past its deadline. The transaction stays pending; the
// sweep decides later whether it completed or failed.
func (h *MpesaCallbackHandler) HandleB2CTimeout(c *gin.Context) {
	payload, ok := h.readBody(c, "b2c_timeout")
	if !ok {
		return
	}

	h.logger.Warn("b2c request timed out at the provider",
		zap.Int("payload_bytes", len(payload)))
	h.ack(c)
}
