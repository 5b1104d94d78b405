package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"feedcraft/internal/config"
	"feedcraft/internal/engine"
)

type Server struct {
	schema *config.Schema
	feed   *engine.Engine
	mcp    *sdk.Server
}

func NewServer(schema *config.Schema, feed *engine.Engine, version string) *Server {
	s := &Server{
		schema: schema,
		feed:   feed,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "feedcraft",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
