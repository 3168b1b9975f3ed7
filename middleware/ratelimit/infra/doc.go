// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryAccessStore / RedisAccessStore / SQLAccessStore: persistência dos logs de acesso
//   - KeyLocks: lock por chave sobre o ChanPool (semáforo de capacidade 1)
//   - MemoryStatsStore / RedisStatsStore / PrometheusStatsStore: estatísticas de decisão
//   - AlertDispatcher + WebhookNotifier + HTTPGeoLocator: alertas assíncronos de estouro
package infra
