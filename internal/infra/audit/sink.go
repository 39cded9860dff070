package audit

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	domain "github.com/bryanwahyu/sapiens-pipeline/internal/domain/audit"
)

// FileSink writes audit records as line-delimited JSON through a rotating
// file. A single writer goroutine drains a bounded channel, so records from
// one request are persisted in arrival order and callers never block: when
// the buffer is full the record is dropped and counted.
type FileSink struct {
	ch      chan domain.Record
	out     *lumberjack.Logger
	log     *zap.Logger
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

type Options struct {
	Path       string
	MaxSizeMB  int // rotation size boundary
	MaxAgeDays int // rotation time boundary
	BufferSize int
}

func NewFileSink(opts Options, log *zap.Logger) *FileSink {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &FileSink{
		ch: make(chan domain.Record, opts.BufferSize),
		out: &lumberjack.Logger{
			Filename: opts.Path,
			MaxSize:  opts.MaxSizeMB,
			MaxAge:   opts.MaxAgeDays,
		},
		log:  log,
		done: make(chan struct{}),
	}
	go s.loop()
	return s
}

// Record enqueues without blocking. Best effort: a full buffer drops the
// record rather than stalling the pipeline.
func (s *FileSink) Record(r domain.Record) {
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
		s.log.Warn("audit buffer full, record dropped",
			zap.String("request_id", r.RequestID),
			zap.String("kind", string(r.Kind)))
	}
}

// Dropped returns how many records were lost to backpressure.
func (s *FileSink) Dropped() int64 { return s.dropped.Load() }

func (s *FileSink) loop() {
	enc := json.NewEncoder(s.out)
	for r := range s.ch {
		if err := enc.Encode(r); err != nil {
			// Never propagate sink failures into pipeline logic.
			s.log.Error("audit write failed", zap.Error(err))
		}
	}
	if err := s.out.Close(); err != nil {
		s.log.Error("audit close failed", zap.Error(err))
	}
	close(s.done)
}

// Close drains buffered records and closes the underlying file.
func (s *FileSink) Close() {
	s.closeOnce.Do(func() {
		close(s.ch)
		<-s.done
	})
}
