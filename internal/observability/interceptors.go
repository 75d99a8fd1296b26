// Package observability provides gRPC client interceptors and the metrics
// HTTP server.
package observability

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"wav-translate/internal/observability/metrics"
)

// UnaryClientInterceptor logs unary calls to the speech service and records
// their status codes.
func UnaryClientInterceptor(m *metrics.Metrics) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		start := time.Now()

		err := invoker(ctx, method, req, reply, cc, opts...)

		st, _ := status.FromError(err)
		m.RecordSTTStream(method, st.Code().String())

		log.Debug().
			Str("method", method).
			Str("code", st.Code().String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC unary call")

		return err
	}
}

// StreamClientInterceptor records the final status of every client stream
// once the stream ends.
func StreamClientInterceptor(m *metrics.Metrics) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		start := time.Now()

		cs, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			st, _ := status.FromError(err)
			m.RecordSTTStream(method, st.Code().String())
			log.Warn().
				Str("method", method).
				Str("code", st.Code().String()).
				Err(err).
				Msg("gRPC stream failed to open")
			return nil, err
		}

		return &observedStream{ClientStream: cs, method: method, start: start, metrics: m}, nil
	}
}

// observedStream reports the stream's terminal status once.
type observedStream struct {
	grpc.ClientStream
	method  string
	start   time.Time
	metrics *metrics.Metrics
	once    sync.Once
}

func (s *observedStream) RecvMsg(msg interface{}) error {
	err := s.ClientStream.RecvMsg(msg)
	if err != nil {
		s.finish(err)
	}
	return err
}

func (s *observedStream) finish(err error) {
	s.once.Do(func() {
		code := "OK"
		if !errors.Is(err, io.EOF) {
			st, _ := status.FromError(err)
			code = st.Code().String()
		}
		s.metrics.RecordSTTStream(s.method, code)

		log.Info().
			Str("method", s.method).
			Str("code", code).
			Dur("duration", time.Since(s.start)).
			Msg("gRPC stream completed")
	})
}
