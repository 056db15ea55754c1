// Package mcp implements the JSON-RPC 2.0 dispatch core of the MCP
// server: envelope parsing, the four served methods (initialize, ping,
// tools/list, tools/call), schema-checked tool invocation, and the
// error taxonomy. Access control runs in front of this package; by the
// time a request reaches the dispatcher its project scope is settled.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/producthelper/producthelper/pkg/models"
)

// ProtocolVersion is the MCP protocol revision this server speaks.
const ProtocolVersion = "2025-06-18"

// Server dispatches MCP JSON-RPC requests against a tool registry.
type Server struct {
	registry *Registry
	name     string
	version  string
}

// NewServer builds a Server advertising name and version in the
// initialize handshake.
func NewServer(registry *Registry, name, version string) *Server {
	return &Server{
		registry: registry,
		name:     name,
		version:  version,
	}
}

// HandleRaw parses body as a JSON-RPC request and dispatches it. Every
// outcome is a well-formed response, except notifications, which return
// nil. An unparseable body yields a parse error with a null id.
func (s *Server) HandleRaw(ctx context.Context, projectID int64, body []byte) *models.MCPResponse {
	var req models.MCPRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ErrorResponse(nil, ParseError(err.Error()))
	}
	return s.Handle(ctx, projectID, &req)
}

// Handle dispatches a parsed request. Responses echo the request id;
// notifications get nil.
func (s *Server) Handle(ctx context.Context, projectID int64, req *models.MCPRequest) *models.MCPResponse {
	switch req.ID.(type) {
	case nil, string, float64:
	default:
		return ErrorResponse(nil, InvalidRequestError("id must be a string or a number"))
	}
	if req.Jsonrpc != "2.0" {
		return ErrorResponse(req.ID, InvalidRequestError(`jsonrpc must be "2.0"`))
	}
	if req.Method == "" {
		return ErrorResponse(req.ID, InvalidRequestError("method is required"))
	}

	// Notifications are never answered, whatever their method.
	if req.IsNotification() {
		log.Debug().
			Str("method", req.Method).
			Int64("project_id", projectID).
			Msg("MCP notification")
		return nil
	}

	switch req.Method {

	// ── Handshake and liveness ───────────────────────
	case "initialize":
		return s.handleInitialize(req)

	case "ping":
		return SuccessResponse(req.ID, map[string]bool{"pong": true})

	// ── Tools ────────────────────────────────────────
	case "tools/list":
		return SuccessResponse(req.ID, map[string]interface{}{
			"tools": s.registry.List(),
		})

	case "tools/call":
		return s.handleToolsCall(ctx, projectID, req)

	default:
		return ErrorResponse(req.ID, MethodNotFoundError(req.Method))
	}
}

// handleInitialize answers the MCP handshake.
func (s *Server) handleInitialize(req *models.MCPRequest) *models.MCPResponse {
	return SuccessResponse(req.ID, map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]string{
			"name":    s.name,
			"version": s.version,
		},
	})
}

// handleToolsCall validates the call params, checks the arguments
// against the tool's input schema, and runs the handler.
func (s *Server) handleToolsCall(ctx context.Context, projectID int64, req *models.MCPRequest) *models.MCPResponse {
	if len(req.Params) == 0 {
		return ErrorResponse(req.ID, InvalidParamsError("params are required"))
	}
	var params models.MCPToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return ErrorResponse(req.ID, InvalidParamsError(err.Error()))
	}
	if params.Name == "" {
		return ErrorResponse(req.ID, InvalidParamsError("name is required"))
	}

	rt, ok := s.registry.Get(params.Name)
	if !ok {
		return ErrorResponse(req.ID, NotFoundError(params.Name))
	}
	if err := rt.CheckArgs(params.Arguments); err != nil {
		return ErrorResponse(req.ID, InvalidParamsError(err.Error()))
	}

	tc := &ToolContext{
		ProjectID: projectID,
		RequestID: req.ID,
		StartTime: time.Now(),
	}
	result, err := s.invoke(ctx, rt, params.Arguments, tc)
	if err != nil {
		log.Warn().
			Err(err).
			Str("tool", params.Name).
			Int64("project_id", projectID).
			Msg("Tool call failed")
		return ErrorResponse(req.ID, ToolExecutionError(params.Name, err))
	}
	return SuccessResponse(req.ID, result)
}

// invoke runs the handler, converting panics into errors so no tool can
// take down the dispatch loop.
func (s *Server) invoke(ctx context.Context, rt *Registered, args map[string]interface{}, tc *ToolContext) (result *models.MCPToolResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return rt.Handler(ctx, args, tc)
}
