package service

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/KevoDB/filestats/pkg/common/log"
	"github.com/KevoDB/filestats/pkg/filestats"
)

const defaultMaxNameSize = 4096

// StatisticsService serves a filestats.Registry over gRPC.
type StatisticsService struct {
	registry    *filestats.Registry
	logger      log.Logger
	maxNameSize int
}

// NewStatisticsService creates the service for registry.
func NewStatisticsService(registry *filestats.Registry, logger log.Logger) *StatisticsService {
	if logger == nil {
		logger = log.GetDefaultLogger().WithField("component", "grpc")
	}
	return &StatisticsService{
		registry:    registry,
		logger:      logger,
		maxNameSize: defaultMaxNameSize,
	}
}

func (s *StatisticsService) fileName(req *wrapperspb.StringValue) (string, error) {
	name := req.GetValue()
	if len(name) == 0 || len(name) > s.maxNameSize {
		return "", status.Errorf(codes.InvalidArgument, "invalid file name size %d", len(name))
	}
	return name, nil
}

// TracksFile reports whether statistics are kept for a file
func (s *StatisticsService) TracksFile(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	name, err := s.fileName(req)
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bool(s.registry.TracksFile(name)), nil
}

// Enable starts collecting for a file
func (s *StatisticsService) Enable(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	name, err := s.fileName(req)
	if err != nil {
		return nil, err
	}
	c := s.registry.EnableCollector(name, true)
	return wrapperspb.Bool(c != nil && c.Active()), nil
}

// Disable pauses collecting for a file
func (s *StatisticsService) Disable(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	name, err := s.fileName(req)
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bool(s.registry.EnableCollector(name, false) != nil), nil
}

// Export returns the binary statistics export of a file
func (s *StatisticsService) Export(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	name, err := s.fileName(req)
	if err != nil {
		return nil, err
	}

	buf, ok, err := s.registry.ExportStatistics(name)
	switch {
	case errors.Is(err, filestats.ErrAllocationFailed):
		return nil, status.Errorf(codes.ResourceExhausted, "export of %s: %v", name, err)
	case err != nil:
		s.logger.Error("Export of %s failed: %v", name, err)
		return nil, status.Errorf(codes.Internal, "export of %s: %v", name, err)
	case !ok:
		return nil, status.Errorf(codes.NotFound, "file %s is not tracked", name)
	}

	return wrapperspb.Bytes(buf), nil
}

// ListFiles returns the tracked file names
func (s *StatisticsService) ListFiles(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	names := s.registry.Names()
	values := make([]*structpb.Value, len(names))
	for i, name := range names {
		values[i] = structpb.NewStringValue(name)
	}
	return &structpb.ListValue{Values: values}, nil
}

var _ FileStatisticsServer = (*StatisticsService)(nil)
