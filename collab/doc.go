// Package collab é o roteador HTTP do hub: resolve o shard da requisição e a
// entrega ao ator correspondente.
//
//   - GET /        documento atual do shard em JSON (leitura, sem efeitos)
//   - GET /todos   upgrade para WebSocket; frame inicial + broadcast
//   - GET /stats   gauges do registry e contadores de eventos
//   - GET /healthz liveness
//
// O rate limit (middleware/ratelimit) embrulha este handler e roda antes.
package collab
