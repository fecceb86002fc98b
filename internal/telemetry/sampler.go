package telemetry

import (
	"context"
	"sync"
	"time"
)

// DefaultSampleInterval is used when SamplerOptions.Interval is zero.
const DefaultSampleInterval = 5 * time.Second

// Source is read by the sampler. *machine.Machine implements it.
type Source interface {
	Get(ctx context.Context, key string) (any, error)
}

// Logger is the optional logger of the sampler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// SamplerOptions configures a Sampler.
type SamplerOptions struct {
	Source   Source
	Writer   Writer
	Keys     []string
	Interval time.Duration
	Logger   Logger
}

// Sampler records drive values at a fixed interval.
type Sampler struct {
	source   Source
	writer   Writer
	keys     []string
	interval time.Duration
	logger   Logger

	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSampler creates a stopped sampler.
func NewSampler(opts SamplerOptions) *Sampler {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Sampler{
		source:   opts.Source,
		writer:   opts.Writer,
		keys:     append([]string(nil), opts.Keys...),
		interval: interval,
		logger:   opts.Logger,
	}
}

// Start begins sampling until ctx ends or Stop is called.
func (s *Sampler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	if s.logger != nil {
		s.logger.Info("drive sampler started", "keys", len(s.keys), "interval", s.interval)
	}
}

// Stop ends sampling and waits for the loop.
func (s *Sampler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

func (s *Sampler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sample(ctx)
		}
	}
}

// Sample reads every key once and writes the numeric values.
func (s *Sampler) Sample(ctx context.Context) {
	for _, key := range s.keys {
		v, err := s.source.Get(ctx, key)
		if err != nil {
			if s.logger != nil {
				s.logger.Debug("sampling drive value failed", "key", key, "error", err)
			}
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			continue
		}
		s.writer.WriteDriveValue(key, f)
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
