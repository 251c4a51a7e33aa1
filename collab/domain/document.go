package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ShardKey identifica um documento isolado e o ator que o serve.
type ShardKey string

// Row é um registro de uma tabela: campo -> valor JSON qualquer.
type Row map[string]any

// Table mapeia id do registro -> registro.
type Table map[string]Row

// Document é o estado colaborativo de um shard.
//
// Formato no fio:
//
//	{"tables": {<table>: {<rowId>: {<field>: <valor>}}}, "values": {<key>: <valor>}}
type Document struct {
	Tables map[string]Table `json:"tables"`
	Values map[string]any   `json:"values"`
}

// EmptyDocument retorna {tables:{...}, values:{}} com as tabelas indicadas
// já criadas (vazias).
func EmptyDocument(tables ...string) Document {
	doc := Document{
		Tables: make(map[string]Table, len(tables)),
		Values: make(map[string]any),
	}
	for _, name := range tables {
		doc.Tables[name] = Table{}
	}
	return doc
}

// MarshalJSON garante que tables e values nunca saem como null.
func (d Document) MarshalJSON() ([]byte, error) {
	type wire Document
	w := wire(d)
	if w.Tables == nil {
		w.Tables = map[string]Table{}
	}
	if w.Values == nil {
		w.Values = map[string]any{}
	}
	return json.Marshal(w)
}

// ParseDocument valida e decodifica um payload de substituição completa.
//
// Regras: UTF-8 válido, objeto JSON único, exatamente as chaves "tables" e
// "values" (com essa caixa), ambas objetos; cada tabela e cada registro também
// objetos. Valores de campo podem ser qualquer JSON. Erros vêm embrulhados em
// ErrMalformedPayload.
func ParseDocument(raw []byte) (Document, error) {
	// o frame cru é o que vai para os irmãos: precisa ser texto válido
	if !utf8.Valid(raw) {
		return Document{}, fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformedPayload)
	}

	// o decoder casa tags de struct sem diferenciar caixa, então as chaves do
	// topo são conferidas num mapa
	var top map[string]json.RawMessage
	if err := decodeStrict(raw, &top); err != nil {
		return Document{}, err
	}
	for k := range top {
		if k != "tables" && k != "values" {
			return Document{}, fmt.Errorf("%w: unknown key %q", ErrMalformedPayload, k)
		}
	}

	var doc Document
	if rawTables, ok := top["tables"]; ok {
		if err := decodeStrict(rawTables, &doc.Tables); err != nil {
			return Document{}, err
		}
	}
	if rawValues, ok := top["values"]; ok {
		if err := decodeStrict(rawValues, &doc.Values); err != nil {
			return Document{}, err
		}
	}
	if doc.Tables == nil {
		return Document{}, fmt.Errorf("%w: missing tables", ErrMalformedPayload)
	}
	if doc.Values == nil {
		return Document{}, fmt.Errorf("%w: missing values", ErrMalformedPayload)
	}
	for name, table := range doc.Tables {
		if table == nil {
			return Document{}, fmt.Errorf("%w: table %q is not an object", ErrMalformedPayload, name)
		}
		for id, row := range table {
			if row == nil {
				return Document{}, fmt.Errorf("%w: row %q.%q is not an object", ErrMalformedPayload, name, id)
			}
		}
	}
	return doc, nil
}

// decodeStrict decodifica exatamente um valor JSON de raw, preservando números.
func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after document", ErrMalformedPayload)
	}
	return nil
}
