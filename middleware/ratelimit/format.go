// utilitário pequeno para formatação rápida/consistente de valores numéricos em headers.
//    Evita puxar fmt só para formatação simples.

package ratelimit

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

// formatSeconds arredonda para cima: Retry-After: 0 faria o cliente tentar de novo na hora.
func formatSeconds(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	s := d / time.Second
	if d%time.Second != 0 {
		s++
	}
	return strconv.FormatInt(int64(s), 10)
}
