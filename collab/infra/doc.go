// Package infra contém os adapters concretos do hub: stores de blob (memória,
// SQLite, Redis) e o transporte WebSocket (gorilla/websocket).
package infra
