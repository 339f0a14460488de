// Package graph projects investigations and their connections into a
// property graph so analysts can traverse entity relationships across
// investigations.
package graph

import (
	"context"
	"errors"
)

// Client is the subset of a graph database the projector needs.
type Client interface {
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (Result, error)
	ExecuteRead(ctx context.Context, cypher string, params map[string]any) (Result, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

type Result struct {
	Records []Record
}

// Record maps returned column names to values.
type Record map[string]any

type Options struct {
	URI            string
	Database       string
	Username       string
	Password       string
	MaxConnections int
}

var ErrMissingURI = errors.New("graph URI is required")
