package infra

import (
	"encoding/json"
	"fmt"
	"time"

	"route-limiter/middleware/ratelimit/domain"
)

// Codec converte um AccessLog para o formato persistido e de volta.
// Encode seguido de Decode precisa devolver a mesma sequência (mesma ordem e precisão).
type Codec interface {
	Encode(domain.AccessLog) ([]byte, error)
	Decode([]byte) (domain.AccessLog, error)
}

// LegacyTimeFormat é o formato textual do arquivo original: precisão de segundo, sem fuso.
const LegacyTimeFormat = "01/02/2006, 15:04:05"

// JSONCodec grava uma lista JSON de timestamps RFC3339 com nanossegundos.
type JSONCodec struct{}

func (JSONCodec) Encode(log domain.AccessLog) ([]byte, error) {
	out := make([]string, len(log))
	for i, at := range log {
		out[i] = at.Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}

func (JSONCodec) Decode(b []byte) (domain.AccessLog, error) {
	return decodeStrings(b, func(s string) (time.Time, error) {
		return time.Parse(time.RFC3339Nano, s)
	})
}

// LegacyCodec grava no formato "MM/DD/YYYY, HH:MM:SS" do arquivo original.
// Trunca para segundos e usa o horário local de Location (padrão: time.Local).
type LegacyCodec struct {
	Location *time.Location
}

func (c LegacyCodec) loc() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

func (c LegacyCodec) Encode(log domain.AccessLog) ([]byte, error) {
	out := make([]string, len(log))
	for i, at := range log {
		out[i] = at.In(c.loc()).Format(LegacyTimeFormat)
	}
	return json.Marshal(out)
}

func (c LegacyCodec) Decode(b []byte) (domain.AccessLog, error) {
	return decodeStrings(b, func(s string) (time.Time, error) {
		return time.ParseInLocation(LegacyTimeFormat, s, c.loc())
	})
}

func decodeStrings(b []byte, parse func(string) (time.Time, error)) (domain.AccessLog, error) {
	var raw []string
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode access log: %w", err)
	}
	out := make(domain.AccessLog, 0, len(raw))
	for _, s := range raw {
		at, err := parse(s)
		if err != nil {
			return nil, fmt.Errorf("decode access log: %w", err)
		}
		out = append(out, at)
	}
	return out, nil
}
