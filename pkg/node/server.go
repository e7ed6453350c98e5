package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

/*
Server exposes the fee update registry over HTTP.

	POST /fee_info
	  Body: the fee update wire record (JSON object, signature required).
	  200: {"type": "FeeInfo", "signer": "0x..", "nonce": n}
	  400 malformed record or signature, 401 unrecoverable signature,
	  409 nonce not newer than the stored one, 422 wrong chain,
	  429 rate limited, 500 storage failure.

	GET /fee_info?token_network_address=0x..[&channel_identifier=n&signer=0x..]
	  With channel and signer: the stored record or 404.
	  Without channel: every record of the token network.

	GET /fee_info/schema
	  The JSON schema of the wire record.

	GET /health
	  200 when the store is reachable, 503 otherwise.

Every response carries an X-Request-Id header. A request id supplied by the
caller is kept, otherwise a new one is generated.
*/

const (
	RequestIDHeader = "X-Request-Id"

	maxRequestBodyBytes = 64 * 1024
	readHeaderTimeout   = 10 * time.Second
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Server handles HTTP requests for the node
type Server struct {
	node       *Node
	httpServer *http.Server
}

// NewServer creates a new server instance
func NewServer(node *Node, port int) *Server {
	s := &Server{
		node: node,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/fee_info", s.handleFeeInfo)
	mux.HandleFunc("/fee_info/schema", s.handleSchema)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.withRequestID(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

// Start starts the HTTP server in the background
func (s *Server) Start() error {
	go func() {
		s.node.logger.Sugar().Infow("Starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.node.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the HTTP server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger returns the node logger annotated with the request id.
func (s *Server) requestLogger(r *http.Request) *zap.SugaredLogger {
	requestID, _ := r.Context().Value(requestIDKey).(string)
	return s.node.logger.Sugar().With("request_id", requestID, "path", r.URL.Path)
}
