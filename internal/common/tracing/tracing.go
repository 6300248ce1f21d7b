package tracing

import (
	"fmt"
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

// InitTracer 初始化 Jaeger tracer 并设为 opentracing 全局实例。
// 业务层通过 opentracing.StartSpanFromContext 打点
// （move 流转、自助预订、结算提交等关键路径都带 span）。
//
// sampler 取 0.0-1.0 的常量采样率，越界时按全采样处理。
func InitTracer(serviceName, endpoint string, sampler float64) (opentracing.Tracer, io.Closer, error) {
	if serviceName == "" {
		return nil, nil, fmt.Errorf("tracing service name is empty")
	}
	if sampler < 0 || sampler > 1 {
		sampler = 1.0
	}

	cfg := &jaegercfg.Configuration{
		ServiceName: serviceName,
		Sampler: &jaegercfg.SamplerConfig{
			Type:  jaeger.SamplerTypeConst,
			Param: sampler,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans:           true,
			LocalAgentHostPort: endpoint,
		},
	}

	tracer, closer, err := cfg.NewTracer(jaegercfg.Logger(jaeger.StdLogger))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init jaeger tracer: %w", err)
	}

	opentracing.SetGlobalTracer(tracer)
	return tracer, closer, nil
}
