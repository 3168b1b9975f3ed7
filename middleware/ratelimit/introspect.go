package ratelimit

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"route-limiter/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

type clientsResponse struct {
	Clients []domain.ClientKey `json:"clients"`
}

type clientResponse struct {
	Client domain.ClientKey                `json:"client"`
	Routes map[domain.RouteKey][]time.Time `json:"routes"`
}

// IntrospectionHandler expõe o estado guardado (somente leitura):
//
//	GET /            -> {"clients": [...]}
//	GET /?client=ip  -> {"client": "ip", "routes": {"/home": [...]}}
func IntrospectionHandler(inspector domain.AccessInspector, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		if client := r.URL.Query().Get("client"); client != "" {
			rec, ok, err := inspector.Get(r.Context(), domain.ClientKey(client))
			if err != nil {
				logger.Error("introspection get failed", zap.String("client", client), zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !ok {
				http.Error(w, "client not found", http.StatusNotFound)
				return
			}
			out := clientResponse{Client: domain.ClientKey(client), Routes: make(map[domain.RouteKey][]time.Time, len(rec))}
			for route, log := range rec {
				out.Routes[route] = []time.Time(log)
			}
			writeJSON(w, out)
			return
		}

		keys, err := inspector.Keys(r.Context())
		if err != nil {
			logger.Error("introspection keys failed", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		if keys == nil {
			keys = []domain.ClientKey{}
		}
		writeJSON(w, clientsResponse{Clients: keys})
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
