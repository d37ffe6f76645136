package domain

// TableSchema configures validation for one entity kind: which fields are
// mandatory on create, which are constrained to an option set, and which are
// links to other collections.
type TableSchema struct {
	Required      []string
	Enums         map[string][]string
	Relationships []string
}

// Schema maps entity kinds (collection names) to their table schemas. It is
// injected configuration; the validator never consults globals.
type Schema map[string]TableSchema

// DefaultSchema returns the schema of the four membership collections as
// deployed in the remote store.
func DefaultSchema() Schema {
	return Schema{
		CollectionAfiliadas: {
			Required: []string{"nombre", "cif"},
			Enums: map[string][]string{
				"genero":  {"mujer", "hombre", "no_binario", "otro"},
				"regimen": {"alquiler", "habitacion", "hipoteca", "ocupacion", "otro"},
				"estado":  {"activa", "baja", "pendiente"},
			},
			Relationships: []string{"piso_id"},
		},
		CollectionPisos: {
			Required:      []string{"direccion"},
			Relationships: []string{"bloque_id"},
		},
		CollectionBloques: {
			Required: []string{"direccion"},
		},
		CollectionFacturacion: {
			Enums: map[string][]string{
				"forma_pago": {PaymentDirectDebit, "transferencia", "efectivo", PaymentOther},
			},
			Relationships: []string{"afiliada_id"},
		},
	}
}
