package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/pkg/logging"
	"github.com/sharesphere/spherecore/pkg/telemetry"
)

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC error
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MethodHandler is a function that handles a JSON-RPC method
type MethodHandler func(ctx *gin.Context, params json.RawMessage) (interface{}, error)

// JSONRPCHandler handles JSON-RPC requests
type JSONRPCHandler struct {
	methods map[string]MethodHandler
	logger  *zap.Logger
}

// NewJSONRPCHandler creates a new JSON-RPC handler
func NewJSONRPCHandler() *JSONRPCHandler {
	return &JSONRPCHandler{
		methods: make(map[string]MethodHandler),
		logger:  logging.WithComponent("jsonrpc"),
	}
}

// RegisterMethod registers a method handler
func (h *JSONRPCHandler) RegisterMethod(method string, handler MethodHandler) {
	h.methods[method] = handler
}

// Methods returns the number of registered methods
func (h *JSONRPCHandler) Methods() int {
	return len(h.methods)
}

// maxBatch bounds the number of calls in one batch request
const maxBatch = 50

// Handle handles a JSON-RPC request. A JSON array is served as a batch and
// answered with an array of responses in request order.
func (h *JSONRPCHandler) Handle(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "jsonrpc.handle")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, errorResponse(nil, ErrParseError, "Parse error", err))
		return
	}
	body = bytes.TrimSpace(body)

	if len(body) == 0 || body[0] != '[' {
		var req JSONRPCRequest
		if err := json.Unmarshal(body, &req); err != nil {
			c.JSON(http.StatusOK, errorResponse(nil, ErrParseError, "Parse error", err))
			return
		}
		c.JSON(http.StatusOK, h.dispatch(c, &req))
		return
	}

	var batch []json.RawMessage
	if err := json.Unmarshal(body, &batch); err != nil {
		c.JSON(http.StatusOK, errorResponse(nil, ErrParseError, "Parse error", err))
		return
	}
	if len(batch) == 0 || len(batch) > maxBatch {
		c.JSON(http.StatusOK, errorResponse(nil, ErrInvalidRequest, "Invalid Request",
			fmt.Errorf("batch must hold 1 to %d calls, got %d", maxBatch, len(batch))))
		return
	}
	span.SetAttributes(attribute.Int("jsonrpc.batch_size", len(batch)))

	responses := make([]*JSONRPCResponse, 0, len(batch))
	for _, raw := range batch {
		var req JSONRPCRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			responses = append(responses, errorResponse(nil, ErrInvalidRequest, "Invalid Request", err))
			continue
		}
		responses = append(responses, h.dispatch(c, &req))
	}
	c.JSON(http.StatusOK, responses)
}

// dispatch runs one call under its own span
func (h *JSONRPCHandler) dispatch(c *gin.Context, req *JSONRPCRequest) *JSONRPCResponse {
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, ErrInvalidRequest, "Invalid Request", fmt.Errorf("invalid jsonrpc version"))
	}

	handler, ok := h.methods[req.Method]
	if !ok {
		return errorResponse(req.ID, ErrMethodNotFound, "Method not found", fmt.Errorf("method %s not found", req.Method))
	}

	ctx, span := telemetry.StartSpan(c.Request.Context(), req.Method,
		trace.WithAttributes(attribute.String("rpc.method", req.Method)))
	parent := c.Request
	c.Request = parent.WithContext(ctx)
	result, err := handler(c, req.Params)
	c.Request = parent
	telemetry.EndSpan(span, err)

	if err != nil {
		code, message := codeFor(err)
		h.logFailure(req.Method, err)
		if apperr.KindOf(err) == apperr.KindInternal {
			// driver and broker errors stay in the log
			err = nil
		}
		return errorResponse(req.ID, code, message, err)
	}

	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
	}
}

func (h *JSONRPCHandler) logFailure(method string, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.logger.Error("JSON-RPC method failed", zap.String("method", method), zap.Error(err))
		return
	}
	h.logger.Debug("JSON-RPC method rejected", zap.String("method", method), zap.Error(err))
}

// errorResponse builds an error JSON-RPC response. The error text, if any, goes in data.
func errorResponse(id interface{}, code int, message string, err error) *JSONRPCResponse {
	resp := &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
		},
	}
	if err != nil {
		resp.Error.Data = err.Error()
	}
	return resp
}

// Standard JSON-RPC error codes
const (
	ErrParseError     = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternalError  = -32603
)
