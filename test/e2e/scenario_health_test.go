package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// TestScenario_HealthAndMetrics checks the gRPC health service and the metrics every
// request leaves behind
func TestScenario_HealthAndMetrics(t *testing.T) {
	s := SetupE2ETest(t, 0)
	defer s.Teardown(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := s.HealthClient.Check(ctx, &healthpb.HealthCheckRequest{Service: "datagraph.GraphQL"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	_, err = s.HealthClient.Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown"})
	assert.Error(t, err)

	s.Health.SetServingStatus("datagraph.GraphQL", healthpb.HealthCheckResponse_NOT_SERVING)
	resp, err = s.HealthClient.Check(ctx, &healthpb.HealthCheckRequest{Service: "datagraph.GraphQL"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	out := &GraphQLResponse{}
	httpResp, err := s.Client.R().
		SetBody(map[string]any{"query": `query CountAll { countStudies }`, "operationName": "CountAll"}).
		SetResult(out).
		Post("/graphql")
	require.NoError(t, err)
	assert.NotEmpty(t, httpResp.Header().Get("X-Request-ID"))
	assert.Equal(t, float64(0), out.Data["countStudies"])

	api := s.Collector.GetAPIMetrics()
	assert.Equal(t, uint64(3), api.RequestCounts["/grpc.health.v1.Health/Check"])
	assert.Equal(t, uint64(1), api.ErrorCounts["/grpc.health.v1.Health/Check"])
	assert.Equal(t, uint64(1), api.RequestCounts["CountAll"])
	assert.Equal(t, uint64(1), api.RequestCounts["POST /graphql"])
}
