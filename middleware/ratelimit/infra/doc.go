// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - FixedWindowStore: janela fixa por endereço, mapa particionado em shards
//   - ChanPool: semáforo simples para limite de concorrência
//   - FramePacer: token bucket (golang.org/x/time/rate) para frames de uma sessão
package infra
