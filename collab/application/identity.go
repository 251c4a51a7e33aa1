package application

import (
	"net/url"
	"strings"

	"shardhub/collab/domain"

	"github.com/google/uuid"
)

const (
	DefaultIdentityParam = "user"
	AnonymousPrefix      = "anon-"
)

// IdentityInput são as partes da requisição que identificam o shard.
type IdentityInput struct {
	Query         url.Values
	Authorization string
	SessionCookie string
}

// Resolver deriva a ShardKey de uma requisição. Nunca falha.
//
// Ordem: parâmetro de query, token do header Authorization, cookie de sessão,
// identidade anônima nova.
//
// TODO: o token bearer é usado como identidade sem verificação nenhuma; trocar
// por credencial verificada antes de expor fora de ambiente de teste.
type Resolver struct {
	QueryParam string
	NewID      func() string
}

func (r Resolver) Resolve(in IdentityInput) domain.Identity {
	param := r.QueryParam
	if param == "" {
		param = DefaultIdentityParam
	}

	if v := strings.TrimSpace(in.Query.Get(param)); v != "" {
		return domain.Identity{Key: domain.ShardKey(v), Source: domain.SourceQuery}
	}
	if tok := bearerToken(in.Authorization); tok != "" {
		return domain.Identity{Key: domain.ShardKey(tok), Source: domain.SourceBearer}
	}
	if v := strings.TrimSpace(in.SessionCookie); v != "" {
		return domain.Identity{Key: domain.ShardKey(v), Source: domain.SourceCookie}
	}

	newID := r.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return domain.Identity{
		Key:       domain.ShardKey(AnonymousPrefix + newID()),
		Anonymous: true,
		Source:    domain.SourceAnonymous,
	}
}

// bearerToken aceita "Bearer <token>" (qualquer caixa) ou o valor cru.
func bearerToken(header string) string {
	v := strings.TrimSpace(header)
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	if strings.EqualFold(v, "bearer") {
		return ""
	}
	return v
}
