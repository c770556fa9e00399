package transport

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/KevoDB/filestats/pkg/grpc/service"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	TLSEnabled bool
	TLS        TLSConfig

	// RequestTimeout bounds each call when the caller's context has no deadline
	RequestTimeout time.Duration

	// DialOptions are appended after the defaults
	DialOptions []grpc.DialOption
}

// DefaultClientOptions returns insecure options with a 5s request timeout.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		RequestTimeout: 5 * time.Second,
	}
}

// Client talks to a remote statistics service.
type Client struct {
	endpoint string
	options  ClientOptions
	conn     *grpc.ClientConn
	api      service.FileStatisticsClient
}

// NewClient creates a client for endpoint. The connection is established lazily.
func NewClient(endpoint string, options ClientOptions) (*Client, error) {
	dialOptions := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                15 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	if options.TLSEnabled {
		tlsConfig, err := LoadClientTLSConfig(options.TLS)
		if err != nil {
			return nil, err
		}
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	} else {
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	dialOptions = append(dialOptions, options.DialOptions...)

	conn, err := grpc.NewClient(endpoint, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", endpoint, err)
	}

	return &Client{
		endpoint: endpoint,
		options:  options,
		conn:     conn,
		api:      service.NewFileStatisticsClient(conn),
	}, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.options.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.options.RequestTimeout)
}

// TracksFile reports whether the server keeps statistics for name.
func (c *Client) TracksFile(ctx context.Context, name string) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.api.TracksFile(ctx, wrapperspb.String(name))
	if err != nil {
		return false, err
	}
	return resp.GetValue(), nil
}

// Enable starts collecting for name on the server.
func (c *Client) Enable(ctx context.Context, name string) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.api.Enable(ctx, wrapperspb.String(name))
	if err != nil {
		return false, err
	}
	return resp.GetValue(), nil
}

// Disable pauses collecting for name. It returns false for untracked files.
func (c *Client) Disable(ctx context.Context, name string) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.api.Disable(ctx, wrapperspb.String(name))
	if err != nil {
		return false, err
	}
	return resp.GetValue(), nil
}

// Export fetches the binary export of name. ok is false when the server
// does not track the file.
func (c *Client) Export(ctx context.Context, name string) ([]byte, bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.api.Export(ctx, wrapperspb.String(name))
	if status.Code(err) == codes.NotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return resp.GetValue(), true, nil
}

// ListFiles returns the names tracked by the server.
func (c *Client) ListFiles(ctx context.Context) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.api.ListFiles(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(resp.GetValues()))
	for _, v := range resp.GetValues() {
		names = append(names, v.GetStringValue())
	}
	return names, nil
}

// Endpoint returns the server address.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
