package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ServerInfo is returned from the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Server owns the tool registry and answers the three MCP methods this
// service supports: initialize, tools/list, tools/call.
type Server struct {
	info  ServerInfo
	tools ToolRegistry
	log   *zap.Logger
}

// NewServer constructs a Server bound to a tool registry.
func NewServer(info ServerInfo, tools ToolRegistry, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{info: info, tools: tools, log: log}
}

// Protocol adapts a Server to the MessageHandler interface a Transport
// expects.
type Protocol struct {
	server *Server
}

// NewProtocol builds a Protocol bound to server.
func NewProtocol(server *Server) *Protocol {
	return &Protocol{server: server}
}

// HandleMessage parses and routes one JSON-RPC request.
func (p *Protocol) HandleMessage(ctx context.Context, message []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(message, &req); err != nil {
		return p.errorResponse(nil, ParseError, "parse error", err.Error())
	}
	if req.Jsonrpc != "2.0" {
		return p.errorResponse(req.ID, InvalidRequest, "invalid JSON-RPC version", nil)
	}

	switch req.Method {
	case "initialize":
		return p.handleInitialize(req)
	case "tools/list":
		return p.handleToolsList(req)
	case "tools/call":
		return p.handleToolCall(ctx, req)
	default:
		return p.errorResponse(req.ID, MethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
	}
}

// OnError logs transport-level errors (malformed frames, I/O failures).
func (p *Protocol) OnError(err error) {
	p.server.log.Error("mcp transport error", zap.Error(err))
}

func (p *Protocol) handleInitialize(req Request) ([]byte, error) {
	result := map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{"listChanged": false},
		},
		"serverInfo": p.server.info,
	}
	return p.successResponse(req.ID, result)
}

func (p *Protocol) handleToolsList(req Request) ([]byte, error) {
	tools := p.server.tools.List()
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	schemas := make([]map[string]interface{}, len(tools))
	for i, tool := range tools {
		schemas[i] = map[string]interface{}{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": map[string]interface{}{
				"type":       tool.Parameters.Type,
				"properties": tool.Parameters.Properties,
				"required":   tool.Parameters.Required,
			},
		}
	}
	return p.successResponse(req.ID, map[string]interface{}{"tools": schemas})
}

func (p *Protocol) handleToolCall(ctx context.Context, req Request) ([]byte, error) {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return p.errorResponse(req.ID, InvalidParams, "invalid parameters", err.Error())
	}

	tool, exists := p.server.tools.Get(params.Name)
	if !exists {
		return p.errorResponse(req.ID, MethodNotFound, fmt.Sprintf("tool %q not found", params.Name), nil)
	}

	result, err := tool.Handler(ctx, params.Arguments)
	if err != nil {
		return p.errorResponse(req.ID, InternalError, fmt.Sprintf("tool execution failed: %v", err), nil)
	}

	return p.successResponse(req.ID, map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": formatToolResult(result)},
		},
	})
}

func (p *Protocol) successResponse(id interface{}, result interface{}) ([]byte, error) {
	return json.Marshal(Response{Jsonrpc: "2.0", Result: result, ID: id})
}

func (p *Protocol) errorResponse(id interface{}, code int, message string, data interface{}) ([]byte, error) {
	return json.Marshal(Response{Jsonrpc: "2.0", Error: &Error{Code: code, Message: message, Data: data}, ID: id})
}

func formatToolResult(result interface{}) string {
	if str, ok := result.(string); ok {
		return str
	}
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(b)
}
