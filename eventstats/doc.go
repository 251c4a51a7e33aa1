// Package eventstats registra contadores de eventos do gateway e do hub.
//
// Os eventos vêm de duas fontes: o middleware de rate limit (allowed/denied) e os
// atores de shard (connect, message, malformed, persist_error...). A gravação é
// best-effort: quem chama loga o erro e segue, nenhuma requisição falha por causa
// de estatística.
package eventstats
