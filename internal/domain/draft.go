package domain

// BuildingSuggestion is a backend-computed fuzzy match pairing a residence
// address with a candidate building.
type BuildingSuggestion struct {
	BloqueID  int64   `json:"bloque_id"`
	Direccion string  `json:"direccion"`
	Score     float64 `json:"score"`
}

// BuildingOverride snapshots an operator-chosen building link. It takes
// precedence over any suggestion for as long as its id matches the record's
// current building link.
type BuildingOverride struct {
	BloqueID  int64  `json:"bloque_id"`
	Direccion string `json:"direccion"`
}

// DraftMeta carries reconciliation and duplicate state alongside a draft.
type DraftMeta struct {
	Suggested          *BuildingSuggestion `json:"suggested"`
	ManualOverride     *BuildingOverride   `json:"manual_override"`
	DuplicateCIF       bool                `json:"duplicate_cif"`
	DuplicateDireccion bool                `json:"duplicate_direccion"`
}

// ValidationState accumulates the per-entity validation outcome of a draft.
type ValidationState struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// DraftRecord is the unit of work of the import pipeline: one spreadsheet
// row parsed into its four interrelated entities plus reconciliation state.
type DraftRecord struct {
	Afiliada    Afiliada        `json:"afiliada"`
	Piso        Piso            `json:"piso"`
	Bloque      Bloque          `json:"bloque"`
	Facturacion Facturacion     `json:"facturacion"`
	Meta        DraftMeta       `json:"meta"`
	Validation  ValidationState `json:"validation"`
}

// Clone returns a deep copy of the record, used for failure snapshots.
func (r *DraftRecord) Clone() *DraftRecord {
	out := *r
	out.Afiliada.FechaNacimiento = cloneString(r.Afiliada.FechaNacimiento)
	out.Afiliada.FechaAlta = cloneString(r.Afiliada.FechaAlta)
	out.Afiliada.PisoID = cloneInt(r.Afiliada.PisoID)
	out.Piso.NumOcupantes = cloneInt(r.Piso.NumOcupantes)
	out.Piso.FechaFirma = cloneString(r.Piso.FechaFirma)
	out.Piso.BloqueID = cloneInt(r.Piso.BloqueID)
	out.Facturacion.AfiliadaID = cloneInt(r.Facturacion.AfiliadaID)
	if r.Meta.Suggested != nil {
		s := *r.Meta.Suggested
		out.Meta.Suggested = &s
	}
	if r.Meta.ManualOverride != nil {
		o := *r.Meta.ManualOverride
		out.Meta.ManualOverride = &o
	}
	if r.Validation.Errors != nil {
		out.Validation.Errors = append([]string(nil), r.Validation.Errors...)
	}
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
