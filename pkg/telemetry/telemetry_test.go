package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func resetGlobals(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
}

func TestSetupWithoutEndpoint(t *testing.T) {
	resetGlobals(t)

	shutdown, err := Setup(context.Background(), Config{Service: "agridx-test"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "baggage")

	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.False(t, isSDK, "no endpoint must leave the no-op provider")
}

func TestSetupWithEndpointInstallsProvider(t *testing.T) {
	resetGlobals(t)

	for _, endpoint := range []string{"localhost:4318", "http://localhost:4318/v1/traces"} {
		t.Run(endpoint, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), Config{
				Service:     "agridx-test",
				Version:     "dev",
				Endpoint:    endpoint,
				SampleRatio: 1,
			})
			require.NoError(t, err)

			_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
			assert.True(t, isSDK)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			assert.NoError(t, shutdown(ctx))
		})
	}
}

func sampledParent(t *testing.T, flags trace.TraceFlags) context.Context {
	t.Helper()
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01},
		SpanID:     trace.SpanID{0x02},
		TraceFlags: flags,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(context.Background(), sc)
}

func TestSamplerRoots(t *testing.T) {
	cases := []struct {
		ratio float64
		want  sdktrace.SamplingDecision
	}{
		{ratio: 1, want: sdktrace.RecordAndSample},
		{ratio: 2, want: sdktrace.RecordAndSample},
		{ratio: 0, want: sdktrace.Drop},
		{ratio: -1, want: sdktrace.Drop},
	}
	for _, c := range cases {
		got := Sampler(c.ratio).ShouldSample(sdktrace.SamplingParameters{
			ParentContext: context.Background(),
			TraceID:       trace.TraceID{0xff},
			Name:          "rest.get",
		})
		assert.Equal(t, c.want, got.Decision, "ratio %v", c.ratio)
	}
}

func TestSamplerFollowsParent(t *testing.T) {
	never := Sampler(0)
	got := never.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: sampledParent(t, trace.FlagsSampled),
		TraceID:       trace.TraceID{0x01},
		Name:          "rest.get",
	})
	assert.Equal(t, sdktrace.RecordAndSample, got.Decision)

	always := Sampler(1)
	got = always.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: sampledParent(t, 0),
		TraceID:       trace.TraceID{0x01},
		Name:          "rest.get",
	})
	assert.Equal(t, sdktrace.Drop, got.Decision)
}

func TestSamplerRatioDescription(t *testing.T) {
	assert.Contains(t, Sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
