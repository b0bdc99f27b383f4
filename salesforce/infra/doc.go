// Package infra contém implementações concretas dos contratos do pacote domain.
//
//   - Store: token bucket por chave usando golang.org/x/time/rate
//   - ChanPool: semáforo para chamadas em voo
//   - MemoryStatsStore / RedisStatsStore: contadores de chamadas
//   - SQLiteHistory: histórico local de jobs (modernc.org/sqlite)
package infra
