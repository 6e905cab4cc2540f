package protocol

import (
	"context"
	"fmt"
	"io"

	"go.lsp.dev/jsonrpc2"

	"github.com/hupe1980/segdag/codec"
	"github.com/hupe1980/segdag/model"
)

// JSON-RPC method names.
const (
	MethodResolveNamesToPaths = "segdag/resolveNamesToPaths"
	MethodResolvePathsToNames = "segdag/resolvePathsToNames"
	MethodCloneData           = "segdag/cloneData"
)

type cloneBlob struct {
	Data []byte `json:"data"`
}

// Serve answers protocol requests on rwc until the peer disconnects or
// ctx is canceled. The clone method is served when svc also implements
// CloneSource. Wait on the returned connection's Done channel.
func Serve(ctx context.Context, rwc io.ReadWriteCloser, svc RemoteService) jsonrpc2.Conn {
	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))
	conn.Go(ctx, serviceHandler(svc))
	return conn
}

func serviceHandler(svc RemoteService) jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		switch req.Method() {
		case MethodResolveNamesToPaths:
			var params RequestNameToLocation
			if err := codec.Default.Unmarshal(req.Params(), &params); err != nil {
				return reply(ctx, nil, fmt.Errorf("%w: %s", jsonrpc2.ErrInvalidParams, err))
			}

			pathNames, err := svc.ResolveNamesToPaths(ctx, params.Heads, params.Names)
			if err != nil {
				return reply(ctx, nil, err)
			}

			return reply(ctx, ResponseIDNamePair{PathNames: pathNames}, nil)

		case MethodResolvePathsToNames:
			var params RequestLocationToName
			if err := codec.Default.Unmarshal(req.Params(), &params); err != nil {
				return reply(ctx, nil, fmt.Errorf("%w: %s", jsonrpc2.ErrInvalidParams, err))
			}

			pathNames, err := svc.ResolvePathsToNames(ctx, params.Paths)
			if err != nil {
				return reply(ctx, nil, err)
			}

			return reply(ctx, ResponseIDNamePair{PathNames: pathNames}, nil)

		case MethodCloneData:
			source, ok := svc.(CloneSource)
			if !ok {
				return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
			}

			data, err := source.ExportCloneData(ctx)
			if err != nil {
				return reply(ctx, nil, err)
			}

			blob, err := EncodeCloneData(data)
			if err != nil {
				return reply(ctx, nil, err)
			}

			return reply(ctx, cloneBlob{Data: blob}, nil)

		default:
			return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
		}
	}
}

// Compile time check to ensure JSONRPC2Client satisfies the RemoteService interface.
var _ RemoteService = (*JSONRPC2Client)(nil)

// JSONRPC2Client is the dialing side of the protocol: a RemoteService
// backed by a jsonrpc2 connection.
type JSONRPC2Client struct {
	conn jsonrpc2.Conn
}

// NewJSONRPC2Client starts a client on rwc. Close releases the
// connection.
func NewJSONRPC2Client(ctx context.Context, rwc io.ReadWriteCloser) *JSONRPC2Client {
	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))
	conn.Go(ctx, jsonrpc2.MethodNotFoundHandler)
	return &JSONRPC2Client{conn: conn}
}

// ResolveNamesToPaths implements RemoteService.
func (c *JSONRPC2Client) ResolveNamesToPaths(ctx context.Context, heads []model.Vertex, names []model.Vertex) ([]PathNames, error) {
	var resp ResponseIDNamePair

	if _, err := c.conn.Call(ctx, MethodResolveNamesToPaths, RequestNameToLocation{Names: names, Heads: heads}, &resp); err != nil {
		return nil, fmt.Errorf("failed to resolve names to paths: %w", err)
	}

	return resp.PathNames, nil
}

// ResolvePathsToNames implements RemoteService.
func (c *JSONRPC2Client) ResolvePathsToNames(ctx context.Context, paths []AncestorPath) ([]PathNames, error) {
	var resp ResponseIDNamePair

	if _, err := c.conn.Call(ctx, MethodResolvePathsToNames, RequestLocationToName{Paths: paths}, &resp); err != nil {
		return nil, fmt.Errorf("failed to resolve paths to names: %w", err)
	}

	return resp.PathNames, nil
}

// CloneData fetches the server's complete master graph payload.
func (c *JSONRPC2Client) CloneData(ctx context.Context) (*CloneData, error) {
	var resp cloneBlob

	if _, err := c.conn.Call(ctx, MethodCloneData, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch clone data: %w", err)
	}

	return DecodeCloneData(resp.Data)
}

// Close shuts the connection down.
func (c *JSONRPC2Client) Close() error {
	return c.conn.Close()
}
