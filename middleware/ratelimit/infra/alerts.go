package infra

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"route-limiter/middleware/ratelimit/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AlertDispatcher entrega alertas de estouro fora do caminho da requisição.
//
// Dispatch nunca bloqueia: se a fila estiver cheia ou o throttle estourar,
// o alerta é descartado (e contado). Geolocalização e envio acontecem no
// worker; erros viram NotificationError, são logados e descartados.
type AlertDispatcher struct {
	notifier domain.Notifier
	geo      domain.GeoLocator
	logger   *zap.Logger

	queue   chan domain.Alert
	limiter *rate.Limiter
	timeout time.Duration

	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

type AlertOption func(*AlertDispatcher)

func WithAlertGeoLocator(g domain.GeoLocator) AlertOption {
	return func(d *AlertDispatcher) { d.geo = g }
}

func WithAlertLogger(l *zap.Logger) AlertOption {
	return func(d *AlertDispatcher) { d.logger = l }
}

func WithAlertQueueSize(n int) AlertOption {
	return func(d *AlertDispatcher) {
		if n > 0 {
			d.queue = make(chan domain.Alert, n)
		}
	}
}

// WithAlertRate limita quantos alertas por segundo saem (token bucket do x/time/rate).
// Com rps <= 0 não há throttle.
func WithAlertRate(rps float64, burst int) AlertOption {
	return func(d *AlertDispatcher) {
		if rps <= 0 {
			d.limiter = nil
			return
		}
		d.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithAlertTimeout limita geolocalização + envio de cada alerta.
func WithAlertTimeout(t time.Duration) AlertOption {
	return func(d *AlertDispatcher) { d.timeout = t }
}

func NewAlertDispatcher(n domain.Notifier, opts ...AlertOption) *AlertDispatcher {
	d := &AlertDispatcher{
		notifier: n,
		logger:   zap.NewNop(),
		queue:    make(chan domain.Alert, 64),
		limiter:  rate.NewLimiter(rate.Limit(1), 5),
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch enfileira o alerta. Retorna false se foi descartado.
func (d *AlertDispatcher) Dispatch(a domain.Alert) bool {
	if d == nil || d.notifier == nil {
		return false
	}
	if d.limiter != nil && !d.limiter.Allow() {
		d.dropped.Add(1)
		return false
	}
	select {
	case d.queue <- a:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("alert queue full, dropping alert",
			zap.String("client", string(a.Client)),
			zap.String("route", string(a.Route)))
		return false
	}
}

// Run consome a fila até o ctx encerrar.
func (d *AlertDispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-d.queue:
			d.deliver(ctx, a)
		}
	}
}

// Start roda o worker em background. Pare cancelando o contexto.
func (d *AlertDispatcher) Start(ctx context.Context) {
	go func() { _ = d.Run(ctx) }()
}

func (d *AlertDispatcher) Sent() int64    { return d.sent.Load() }
func (d *AlertDispatcher) Dropped() int64 { return d.dropped.Load() }
func (d *AlertDispatcher) Failed() int64  { return d.failed.Load() }

func (d *AlertDispatcher) deliver(ctx context.Context, a domain.Alert) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if d.geo != nil {
		loc, err := d.geo.Locate(ctx, string(a.Client))
		if err != nil {
			// segue sem localização
			d.logger.Warn("geolocation failed",
				zap.String("client", string(a.Client)),
				zap.Error(&domain.NotificationError{Notifier: "geo", Err: err}))
		} else {
			a.Location = loc
		}
	}

	if err := d.notifier.Notify(ctx, a); err != nil {
		d.failed.Add(1)
		var nerr *domain.NotificationError
		if !errors.As(err, &nerr) {
			nerr = &domain.NotificationError{Notifier: "notifier", Err: err}
		}
		d.logger.Warn("alert notification failed",
			zap.String("client", string(a.Client)),
			zap.String("route", string(a.Route)),
			zap.Error(nerr))
		return
	}
	d.sent.Add(1)
}
