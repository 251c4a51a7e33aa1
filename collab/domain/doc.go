// Package domain define os tipos do hub colaborativo: shard, documento, sessão
// e os contratos de armazenamento e transporte.
//
// Não depende de net/http, de WebSocket nem de banco de dados.
package domain
