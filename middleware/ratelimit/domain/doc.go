// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A chave (Key) é o endereço do cliente; o limite é global entre shards.
package domain
