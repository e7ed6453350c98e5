package node

import (
	"context"
	"fmt"

	"github.com/Layr-Labs/feeinfo-go/pkg/feeRegistry"
	"github.com/Layr-Labs/feeinfo-go/pkg/logger"
	"go.uber.org/zap"
)

// Node is a path-finding service endpoint that receives fee updates from
// channel participants and serves the newest accepted ones.
type Node struct {
	Port int

	registry *feeRegistry.Registry
	server   *Server
	logger   *zap.Logger
}

// Config holds node configuration
type Config struct {
	Port   int
	Logger *zap.Logger // Optional logger, will create default if nil
}

// NewNode creates a node serving registry over HTTP.
func NewNode(cfg Config, registry *feeRegistry.Registry) (*Node, error) {
	if registry == nil {
		return nil, fmt.Errorf("fee registry is required")
	}

	nodeLogger := cfg.Logger
	if nodeLogger == nil {
		var err error
		nodeLogger, err = logger.NewLogger(&logger.LoggerConfig{Debug: false})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	n := &Node{
		Port:     cfg.Port,
		registry: registry,
		logger:   nodeLogger,
	}
	n.server = NewServer(n, cfg.Port)

	return n, nil
}

// Start starts the node's HTTP server
func (n *Node) Start() error {
	n.logger.Sugar().Infow("Starting PFS node",
		"port", n.Port,
		"chain_id", n.registry.ChainID().String(),
	)
	return n.server.Start()
}

// Stop gracefully shuts down the HTTP server, waiting for in-flight requests until ctx expires.
func (n *Node) Stop(ctx context.Context) error {
	n.logger.Sugar().Infow("Stopping PFS node", "port", n.Port)
	return n.server.Stop(ctx)
}

// GetServer returns the HTTP server (for testing)
func (n *Node) GetServer() *Server {
	return n.server
}
