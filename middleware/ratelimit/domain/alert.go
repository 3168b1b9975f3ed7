package domain

import (
	"context"
	"time"
)

// Alert carrega o que um Notifier precisa para avisar sobre um estouro de limite.
type Alert struct {
	Client   ClientKey
	Route    RouteKey
	Policy   Policy
	Count    int
	At       time.Time
	History  AccessLog
	Location Location
}

// Location é o resultado (opcional) da geolocalização do cliente.
type Location struct {
	Country string
	City    string
}

// Notifier envia um alerta por algum canal (webhook, chat, etc).
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// GeoLocator resolve a localização aproximada de um IP.
type GeoLocator interface {
	Locate(ctx context.Context, ip string) (Location, error)
}
