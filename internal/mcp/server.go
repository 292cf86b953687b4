package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/email"
	"github.com/brandon/mailsync/internal/tools"
)

// JSON-RPC error codes; the -320xx range is reserved for the server
const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeSettings       = -32001
	codeConnection     = -32002
)

const protocolVersion = "2024-11-05"

// Server represents the MCP server
type Server struct {
	logger  *logrus.Logger
	tools   *tools.Registry
	version string
}

// NewServer creates a new MCP server instance
func NewServer(registry *tools.Registry, version string, logger *logrus.Logger) *Server {
	return &Server{
		logger:  logger,
		tools:   registry,
		version: version,
	}
}

// Run starts the MCP server with stdio transport
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting MCP server with stdio transport")
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve answers newline delimited JSON-RPC requests from r on w until r ends or ctx is done
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	decoder := json.NewDecoder(r)
	encoder := json.NewEncoder(w)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var req map[string]interface{}
		if err := decoder.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			s.logger.WithError(err).Error("Failed to decode request")
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				// The decoder cannot resynchronize after malformed input
				return fmt.Errorf("malformed request stream: %w", err)
			}
			continue
		}

		resp := s.handleRequest(ctx, req)
		if resp == nil {
			continue
		}
		if err := encoder.Encode(resp); err != nil {
			s.logger.WithError(err).Error("Failed to encode response")
			continue
		}
	}
}

// handleRequest processes an MCP request; notifications get no response
func (s *Server) handleRequest(ctx context.Context, req map[string]interface{}) map[string]interface{} {
	method, _ := req["method"].(string)
	id, hasID := req["id"]
	if !hasID {
		s.logger.WithField("method", method).Debug("Received notification")
		return nil
	}

	switch method {
	case "initialize":
		return result(id, map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "mailsync",
				"version": s.version,
			},
		})

	case "ping":
		return result(id, map[string]interface{}{})

	case "tools/list":
		return result(id, map[string]interface{}{
			"tools": s.tools.GetToolDefinitions(),
		})

	case "tools/call":
		return s.callTool(ctx, id, req)
	}

	return errorResponse(id, codeMethodNotFound, fmt.Sprintf("Method not found: %s", method), nil)
}

func (s *Server) callTool(ctx context.Context, id interface{}, req map[string]interface{}) map[string]interface{} {
	params, _ := req["params"].(map[string]interface{})
	toolName, _ := params["name"].(string)
	arguments, _ := params["arguments"].(map[string]interface{})
	if arguments == nil {
		arguments = map[string]interface{}{}
	}

	tool, exists := s.tools.GetTool(toolName)
	if !exists {
		return errorResponse(id, codeMethodNotFound, fmt.Sprintf("Tool not found: %s", toolName), nil)
	}

	log := s.logger.WithField("tool", toolName)
	res, err := tool.Execute(ctx, arguments)
	if err != nil {
		code, data := classifyError(err)
		log.WithError(err).WithField("code", code).Warn("Tool call failed")
		return errorResponse(id, code, err.Error(), data)
	}

	// Serialize result to JSON string for text content
	resultJSON, err := json.Marshal(res)
	if err != nil {
		resultJSON = []byte(fmt.Sprintf("%v", res))
	}

	return result(id, map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": string(resultJSON),
			},
		},
	})
}

// classifyError maps engine errors to JSON-RPC error codes and data
func classifyError(err error) (int, map[string]interface{}) {
	var settingsErr *email.SettingsError
	if errors.As(err, &settingsErr) {
		return codeSettings, map[string]interface{}{"account": settingsErr.Account}
	}

	var connErr *email.ConnectionError
	if errors.As(err, &connErr) {
		return codeConnection, map[string]interface{}{
			"account":  connErr.Account,
			"attempts": connErr.Attempts,
		}
	}

	if errors.Is(err, email.ErrAccountNotFound) || errors.Is(err, email.ErrFolderNotFound) {
		return codeInvalidParams, nil
	}
	return codeInternal, nil
}

func result(id interface{}, res interface{}) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  res,
	}
}

func errorResponse(id interface{}, code int, message string, data map[string]interface{}) map[string]interface{} {
	body := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if data != nil {
		body["data"] = data
	}
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   body,
	}
}
