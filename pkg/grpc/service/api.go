package service

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "filestats.v1.FileStatistics"

// Full method names
const (
	MethodTracksFile = "/" + ServiceName + "/TracksFile"
	MethodEnable     = "/" + ServiceName + "/Enable"
	MethodDisable    = "/" + ServiceName + "/Disable"
	MethodExport     = "/" + ServiceName + "/Export"
	MethodListFiles  = "/" + ServiceName + "/ListFiles"
)

// FileStatisticsServer is the server API of the statistics service. The
// messages are protobuf well-known types, so no generated code is needed.
type FileStatisticsServer interface {
	// TracksFile reports whether statistics are kept for the file.
	TracksFile(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	// Enable starts collecting for the file, creating a collector if needed.
	Enable(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	// Disable pauses collecting; the result is false for untracked files.
	Disable(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	// Export returns the binary statistics export of the file.
	Export(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	// ListFiles returns the tracked file names in sorted order.
	ListFiles(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
}

// RegisterFileStatisticsServer registers srv with s.
func RegisterFileStatisticsServer(s grpc.ServiceRegistrar, srv FileStatisticsServer) {
	s.RegisterService(&FileStatisticsServiceDesc, srv)
}

// FileStatisticsServiceDesc describes the service to the gRPC runtime.
var FileStatisticsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FileStatisticsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "TracksFile", Handler: unaryHandler(MethodTracksFile, FileStatisticsServer.TracksFile)},
		{MethodName: "Enable", Handler: unaryHandler(MethodEnable, FileStatisticsServer.Enable)},
		{MethodName: "Disable", Handler: unaryHandler(MethodDisable, FileStatisticsServer.Disable)},
		{MethodName: "Export", Handler: unaryHandler(MethodExport, FileStatisticsServer.Export)},
		{MethodName: "ListFiles", Handler: unaryHandler(MethodListFiles, FileStatisticsServer.ListFiles)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "filestats/v1/filestats.proto",
}

// unaryHandler adapts a typed server method to a grpc.MethodHandler.
func unaryHandler[Req, Resp any](fullMethod string, call func(FileStatisticsServer, context.Context, *Req) (*Resp, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(FileStatisticsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(FileStatisticsServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// FileStatisticsClient is the client API of the statistics service.
type FileStatisticsClient interface {
	TracksFile(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	Enable(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	Disable(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	Export(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	ListFiles(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error)
}

type fileStatisticsClient struct {
	cc grpc.ClientConnInterface
}

// NewFileStatisticsClient creates a client on top of cc.
func NewFileStatisticsClient(cc grpc.ClientConnInterface) FileStatisticsClient {
	return &fileStatisticsClient{cc: cc}
}

func (c *fileStatisticsClient) TracksFile(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, MethodTracksFile, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fileStatisticsClient) Enable(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, MethodEnable, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fileStatisticsClient) Disable(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, MethodDisable, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fileStatisticsClient) Export(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, MethodExport, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fileStatisticsClient) ListFiles(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, MethodListFiles, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
