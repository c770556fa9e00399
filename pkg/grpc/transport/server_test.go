package transport

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/KevoDB/filestats/pkg/common/log"
	"github.com/KevoDB/filestats/pkg/filestats"
	"github.com/KevoDB/filestats/pkg/grpc/service"
	"github.com/KevoDB/filestats/pkg/telemetry"
)

const bufSize = 1024 * 1024

func startTestServer(t *testing.T, tel telemetry.Telemetry) (*filestats.Registry, *Client) {
	t.Helper()

	logger := log.NewStandardLogger(log.WithOutput(&bytes.Buffer{}))
	registry := filestats.NewRegistry(
		filestats.WithLogger(logger),
		filestats.WithCollectorOptions(filestats.WithRangeShift(6), filestats.WithMaxRangeCount(64)),
	)

	server, err := NewGRPCServer("bufnet", service.NewStatisticsService(registry, logger), ServerOptions{
		Logger:    logger,
		Telemetry: tel,
	})
	require.NoError(t, err)

	listener := bufconn.Listen(bufSize)
	go server.Serve(listener)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Stop(ctx)
	})

	client, err := NewClient("passthrough:///bufnet", ClientOptions{
		RequestTimeout: 5 * time.Second,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return listener.DialContext(ctx)
			}),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return registry, client
}

func TestClientServerRoundTrip(t *testing.T) {
	registry, client := startTestServer(t, nil)
	ctx := context.Background()

	tracked, err := client.TracksFile(ctx, "a.db")
	require.NoError(t, err)
	require.False(t, tracked)

	disabled, err := client.Disable(ctx, "a.db")
	require.NoError(t, err)
	require.False(t, disabled)

	enabled, err := client.Enable(ctx, "a.db")
	require.NoError(t, err)
	require.True(t, enabled)

	c, ok := registry.FindCollector("a.db")
	require.True(t, ok)
	c.Resize(1000)
	for i := 0; i < 7; i++ {
		c.RecordFileWrite(0, 10)
	}

	buf, ok, err := client.Export(ctx, "a.db")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, buf, filestats.ExportSize(16))
	require.Equal(t, byte(3), buf[filestats.ExportHeaderSize]&0x0f)

	_, ok, err = client.Export(ctx, "missing.db")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = client.Enable(ctx, "b.db")
	require.NoError(t, err)
	names, err := client.ListFiles(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a.db", "b.db"}, names)

	_, err = client.Enable(ctx, "")
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServerRecordsTelemetry(t *testing.T) {
	tel, reader, err := telemetry.NewInMemory()
	require.NoError(t, err)
	defer tel.Shutdown(context.Background())

	_, client := startTestServer(t, tel)
	ctx := context.Background()

	_, err = client.Enable(ctx, "a.db")
	require.NoError(t, err)
	_, _, err = client.Export(ctx, "missing.db")
	require.NoError(t, err)

	snap, err := telemetry.Collect(ctx, reader)
	require.NoError(t, err)
	require.Equal(t, int64(1), snap.Counter("filestats.grpc.requests.total",
		attribute.String("rpc.method", service.MethodEnable),
		attribute.String("rpc.code", codes.OK.String())))
	require.Equal(t, int64(1), snap.Counter("filestats.grpc.requests.total",
		attribute.String("rpc.method", service.MethodExport),
		attribute.String("rpc.code", codes.NotFound.String())))
	require.Equal(t, uint64(2), snap.HistogramCount("filestats.grpc.request.duration"))
}

func TestServerStartStop(t *testing.T) {
	logger := log.NewStandardLogger(log.WithOutput(&bytes.Buffer{}))
	registry := filestats.NewRegistry(filestats.WithLogger(logger))

	server, err := NewGRPCServer("127.0.0.1:0", service.NewStatisticsService(registry, logger), ServerOptions{Logger: logger})
	require.NoError(t, err)
	require.Nil(t, server.Addr())

	require.NoError(t, server.Start())
	require.Error(t, server.Start())
	require.NotNil(t, server.Addr())

	client, err := NewClient(server.Addr().String(), DefaultClientOptions())
	require.NoError(t, err)
	defer client.Close()

	enabled, err := client.Enable(context.Background(), "a.db")
	require.NoError(t, err)
	require.True(t, enabled)
	require.Equal(t, server.Addr().String(), client.Endpoint())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
	require.NoError(t, server.Stop(ctx))
}

func TestServerRequiresCertificatesForTLS(t *testing.T) {
	_, err := NewGRPCServer("127.0.0.1:0", service.NewStatisticsService(filestats.NewRegistry(), nil), ServerOptions{TLSEnabled: true})
	require.Error(t, err)

	_, err = LoadClientTLSConfig(TLSConfig{CAFile: "/nonexistent/ca.pem"})
	require.Error(t, err)

	cfg, err := LoadClientTLSConfig(TLSConfig{SkipVerify: true})
	require.NoError(t, err)
	require.True(t, cfg.InsecureSkipVerify)
}
