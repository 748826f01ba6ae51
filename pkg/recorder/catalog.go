// Package recorder turns inventory domain events into ledger appends and
// validates manual registrations against the record-type catalogue.
package recorder

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Record types produced by the inventory domain.
const (
	TypeCompanyCreated   = "empresa_creada"
	TypeCompanyUpdated   = "empresa_modificada"
	TypeCompanyDeleted   = "empresa_eliminada"
	TypeProductCreated   = "producto_creado"
	TypeProductUpdated   = "producto_modificado"
	TypeProductDeleted   = "producto_eliminado"
	TypeInventoryUpdated = "inventario_actualizado"
	TypeInventoryDeleted = "inventario_eliminado"
	TypeUserCreated      = "usuario_creado"
	TypeUserDeleted      = "usuario_eliminado"
)

// RecordType is one catalogue entry.
type RecordType struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

var catalogue = []RecordType{
	{TypeCompanyCreated, "Empresa Creada"},
	{TypeCompanyUpdated, "Empresa Modificada"},
	{TypeCompanyDeleted, "Empresa Eliminada"},
	{TypeProductCreated, "Producto Creado"},
	{TypeProductUpdated, "Producto Modificado"},
	{TypeProductDeleted, "Producto Eliminado"},
	{TypeInventoryUpdated, "Inventario Actualizado"},
	{TypeInventoryDeleted, "Inventario Eliminado"},
	{TypeUserCreated, "Usuario Creado"},
	{TypeUserDeleted, "Usuario Eliminado"},
}

// Catalogue returns a copy of the known record types in declaration order.
func Catalogue() []RecordType {
	out := make([]RecordType, len(catalogue))
	copy(out, catalogue)
	return out
}

// KnownType reports catalogue membership. The ledger itself accepts any type.
func KnownType(t string) bool {
	_, ok := Label(t)
	return ok
}

// Label returns the human label of t.
func Label(t string) (string, bool) {
	for _, rt := range catalogue {
		if rt.Name == t {
			return rt.Label, true
		}
	}
	return "", false
}

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://chainledger.local/schemas/"

// Schemas holds the compiled payload schema of every catalogue type.
type Schemas struct {
	byType map[string]*jsonschema.Schema
}

// LoadSchemas compiles the embedded payload schemas.
func LoadSchemas() (*Schemas, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true

	for _, rt := range catalogue {
		data, err := schemaFS.ReadFile("schemas/" + rt.Name + ".schema.json")
		if err != nil {
			return nil, fmt.Errorf("schema for %s: %w", rt.Name, err)
		}
		if err := c.AddResource(schemaBaseURL+rt.Name, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("schema load failed for %s: %w", rt.Name, err)
		}
	}

	s := &Schemas{byType: make(map[string]*jsonschema.Schema, len(catalogue))}
	for _, rt := range catalogue {
		compiled, err := c.Compile(schemaBaseURL + rt.Name)
		if err != nil {
			return nil, fmt.Errorf("schema compile failed for %s: %w", rt.Name, err)
		}
		s.byType[rt.Name] = compiled
	}
	return s, nil
}

// Validate checks payload against the schema for recordType.
func (s *Schemas) Validate(recordType string, payload map[string]any) error {
	schema, ok := s.byType[recordType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, recordType)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	// Round-trip so Go numeric types reach the validator as json.Number.
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}
