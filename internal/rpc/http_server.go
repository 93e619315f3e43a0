package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/revledger/revledger/internal/types"
)

// ServicePath is the URL prefix of the lifecycle service.
const ServicePath = "/rl.v1.LifecycleService/"

// Headers carried by RPC requests.
const (
	HeaderActor     = "X-RL-Actor"
	HeaderRequestID = "X-RL-Request-ID"
)

const maxBodyBytes = 10 * 1024 * 1024

// HTTPServer serves the RPC Server over HTTP.
type HTTPServer struct {
	rpcServer  *Server
	router     chi.Router
	httpServer *http.Server
	listener   net.Listener
	addr       string
	token      string // Bearer token for authentication
	mu         sync.RWMutex
}

// NewHTTPServer creates a new HTTP wrapper around an RPC server
func NewHTTPServer(rpcServer *Server, addr string, token string) *HTTPServer {
	h := &HTTPServer{
		rpcServer: rpcServer,
		router:    chi.NewRouter(),
		addr:      addr,
		token:     token,
	}
	h.routes()
	return h
}

func (h *HTTPServer) routes() {
	// Health endpoints (no auth required)
	h.router.Get("/healthz", h.handleHealth)
	h.router.Get("/metrics", h.handleMetrics)

	h.router.Group(func(r chi.Router) {
		r.Use(h.authenticate)
		r.Post(ServicePath+"{method}", h.handleRPC)
	})
}

// Handler returns the HTTP handler, for tests and embedding.
func (h *HTTPServer) Handler() http.Handler {
	return h.router
}

// Start listens and serves until ctx is cancelled.
func (h *HTTPServer) Start(ctx context.Context) error {
	h.mu.Lock()
	h.httpServer = &http.Server{
		Handler:      h.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		h.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}
	h.listener = ln
	srv := h.httpServer
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Addr returns the address the HTTP server is listening on
func (h *HTTPServer) Addr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.addr
}

func (h *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		authHeader := r.Header.Get("Authorization")
		switch {
		case authHeader == "":
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing Authorization header"})
		case !strings.HasPrefix(authHeader, "Bearer "):
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid Authorization header format"})
		case strings.TrimPrefix(authHeader, "Bearer ") != h.token:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// handleHealth handles GET /healthz
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := h.rpcServer.Handle(r.Context(), &Request{Operation: OpPing})
	var ping PingResponse
	if resp.Success {
		_ = json.Unmarshal(resp.Data, &ping)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": ping.Version})
}

// handleMetrics handles GET /metrics
func (h *HTTPServer) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.rpcServer.Metrics().Snapshot())
}

// handleRPC handles POST /rl.v1.LifecycleService/{method}
func (h *HTTPServer) handleRPC(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	operation := httpMethodToOperation(method)
	if operation == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("unknown method: %s", method)})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	resp := h.rpcServer.Handle(r.Context(), &Request{
		Operation: operation,
		Args:      body,
		Actor:     r.Header.Get(HeaderActor),
		RequestID: r.Header.Get(HeaderRequestID),
	})

	if !resp.Success {
		writeJSON(w, statusForCode(resp.Code), resp)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if len(resp.Data) > 0 {
		_, _ = w.Write(resp.Data)
	} else {
		_, _ = w.Write([]byte("{}"))
	}
}

func statusForCode(code string) int {
	switch code {
	case types.CodeValidationFailed:
		return http.StatusUnprocessableEntity
	case types.CodeEditLocked, types.CodeActionTerminal, types.CodeInvalidTransition:
		return http.StatusConflict
	case types.CodePermissionDenied:
		return http.StatusForbidden
	case types.CodeNotFound, codeUnknownOperation:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// methodMap maps Connect-RPC style method names to RPC operations
var methodMap = map[string]string{
	"Ping":    OpPing,
	"Metrics": OpMetrics,

	// Documents
	"CreateDocument": OpCreateDocument,
	"Edit":           OpEdit,
	"SetModule":      OpSetModule,
	"RemoveModule":   OpRemoveModule,
	"Show":           OpShow,
	"Lineage":        OpLineage,
	"Modules":        OpModules,
	"Published":      OpPublished,
	"ListDocuments":  OpList,

	// Issuance
	"Preflight":      OpPreflight,
	"Issue":          OpIssue,
	"CreateRevision": OpCreateRevision,
	"RecordArtifact": OpRecordArtifact,

	// Actions
	"AddAction":       OpAddAction,
	"CloseAction":     OpCloseAction,
	"ReopenAction":    OpReopenAction,
	"SetActionStatus": OpSetActionStatus,
	"ListActions":     OpListActions,

	// Approval
	"RequestApproval":     OpRequestApproval,
	"Approve":             OpApprove,
	"Reject":              OpReject,
	"ResetApproval":       OpResetApproval,
	"SetApprovalRequired": OpSetApprovalRequired,
	"Settings":            OpSettings,

	// Integrity
	"GetLifecycleHealth": OpLifecycleHealth,
	"HealthSweep":        OpHealthSweep,
	"AuditHistory":       OpAuditHistory,
}

func httpMethodToOperation(method string) string {
	return methodMap[method]
}
