package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/autopilot/internal/logging"
	"github.com/aretw0/autopilot/internal/runtime"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/state"
)

// Pilot is the control surface exposed as MCP tools.
type Pilot interface {
	Start(ctx context.Context) error
	Stop() error
	Status(ctx context.Context) runtime.Status
	State() *state.Store
}

// StateResponse is the structured result of the state tools.
type StateResponse struct {
	Key    string            `json:"key,omitempty" jsonschema_description:"The state key"`
	Value  string            `json:"value,omitempty" jsonschema_description:"The stored value"`
	Found  bool              `json:"found" jsonschema_description:"Whether the key holds a value"`
	States map[string]string `json:"states,omitempty" jsonschema_description:"Full snapshot when no key was given"`
}

type stateArgs struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Server exposes a Pilot as an MCP server.
type Server struct {
	pilot     Pilot
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(pilot Pilot, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		pilot:     pilot,
		mcpServer: server.NewMCPServer("autopilot-mcp", version),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP endpoints on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("start",
		mcp.WithDescription("Start the autonomous loop. The state is cleared first."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := s.pilot.Start(context.WithoutCancel(ctx)); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("start failed: %v", err)), nil
		}
		return s.statusResult(ctx)
	})

	s.mcpServer.AddTool(mcp.NewTool("stop",
		mcp.WithDescription("Ask the loop to stop once the current iteration completes."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := s.pilot.Stop(); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stop failed: %v", err)), nil
		}
		return mcp.NewToolResultText("stopping"), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Report the loop phase, iteration count and the active task."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.statusResult(ctx)
	})

	s.mcpServer.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Read one state key, or the whole state when key is omitted."),
		mcp.WithString("key", mcp.Description("State key, for example current_task")),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetState))

	s.mcpServer.AddTool(mcp.NewTool("set_state",
		mcp.WithDescription("Write one state key."),
		mcp.WithString("key", mcp.Required(), mcp.Description("State key")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Value to store")),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleSetState))

	s.mcpServer.AddTool(mcp.NewTool("clear_state",
		mcp.WithDescription("Delete one state key, or every key when key is omitted."),
		mcp.WithString("key", mcp.Description("State key to delete")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key := request.GetString("key", "")
		var err error
		if key == "" {
			err = s.pilot.State().Clear(ctx)
		} else {
			err = s.pilot.State().Remove(ctx, key)
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("cleared"), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("complete_task",
		mcp.WithDescription("Force-complete the active task. The next iteration picks a new one."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		task, ok := s.pilot.State().CurrentTask(ctx)
		if !ok {
			return mcp.NewToolResultError(domain.ErrNoTask.Error()), nil
		}
		if err := s.pilot.State().CompleteTask(ctx); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("completed: %s", task)), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("token_status",
		mcp.WithDescription("Report which login credentials are held."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, _ := json.Marshal(s.pilot.State().TokenStatus(ctx))
		return mcp.NewToolResultText(string(b)), nil
	})
}

func (s *Server) statusResult(ctx context.Context) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(s.pilot.Status(ctx))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) handleGetState(ctx context.Context, request mcp.CallToolRequest, args stateArgs) (StateResponse, error) {
	if args.Key == "" {
		snap, err := s.pilot.State().Snapshot(ctx)
		if err != nil {
			return StateResponse{}, err
		}
		return StateResponse{Found: len(snap) > 0, States: snap}, nil
	}
	val, err := s.pilot.State().Get(ctx, args.Key)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return StateResponse{Key: args.Key}, nil
	}
	if err != nil {
		return StateResponse{}, err
	}
	return StateResponse{Key: args.Key, Value: val, Found: true}, nil
}

func (s *Server) handleSetState(ctx context.Context, request mcp.CallToolRequest, args stateArgs) (StateResponse, error) {
	if args.Key == "" {
		return StateResponse{}, fmt.Errorf("key is required")
	}
	if err := s.pilot.State().Set(ctx, args.Key, args.Value); err != nil {
		return StateResponse{}, err
	}
	s.logger.Info("state set over MCP", "key", args.Key)
	return StateResponse{Key: args.Key, Value: args.Value, Found: true}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("autopilot://state", "Current execution state",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		snap, err := s.pilot.State().Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read state: %w", err)
		}
		jsonBytes, _ := json.Marshal(snap)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "autopilot://state",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
