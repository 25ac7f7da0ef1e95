package metrics

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// UnaryServerInterceptor returns a gRPC interceptor that records metrics for each request.
func UnaryServerInterceptor(collector *Collector, exporter *PrometheusExporter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		recordCall(collector, exporter, info.FullMethod, start, err)
		return resp, err
	}
}

// StreamServerInterceptor returns a gRPC interceptor that records metrics for each stream.
// The duration covers the whole stream, so health watches report their lifetime.
func StreamServerInterceptor(collector *Collector, exporter *PrometheusExporter) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		recordCall(collector, exporter, info.FullMethod, start, err)
		return err
	}
}

func recordCall(collector *Collector, exporter *PrometheusExporter, method string, start time.Time, err error) {
	duration := time.Since(start).Seconds()

	collector.RecordRequest(method)
	collector.RecordDuration(method, duration)
	if err != nil {
		collector.RecordError(method)
	}

	if exporter == nil {
		return
	}
	exporter.RecordRequest(method)
	exporter.RecordDuration(method, duration)
	if err != nil {
		exporter.RecordError(method)
	}
}
