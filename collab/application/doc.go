// Package application implementa o hub de sessões: um ator por shard, dono do
// documento em memória e do conjunto de sessões ao vivo.
//
// Cada Actor serializa connect/message/disconnect com um mutex próprio; shards
// diferentes nunca disputam o mesmo lock. O Registry cria atores sob demanda e
// os despeja quando ficam ociosos. O estado durável vive só no DocumentStore.
package application
