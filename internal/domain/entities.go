// Package domain defines the membership entities handled by the import
// pipeline and the draft record that groups them per spreadsheet row.
package domain

// Collection names in the remote store.
const (
	CollectionAfiliadas   = "afiliadas"
	CollectionPisos       = "pisos"
	CollectionBloques     = "bloques"
	CollectionFacturacion = "facturacion"
)

// Payment methods for a billing profile.
const (
	PaymentDirectDebit = "domiciliacion"
	PaymentOther       = "otro"
)

// Billing periodicity is payments per year.
const (
	PeriodicityAnnual  = 1
	PeriodicityMonthly = 12
)

// Afiliada is a person record in the union's membership roll.
type Afiliada struct {
	Nombre          string  `json:"nombre"`
	Apellidos       string  `json:"apellidos"`
	Genero          string  `json:"genero"`
	FechaNacimiento *string `json:"fecha_nacimiento"`
	CIF             string  `json:"cif"`
	Telefono        string  `json:"telefono"`
	Email           string  `json:"email"`
	FechaAlta       *string `json:"fecha_alta"`
	Regimen         string  `json:"regimen"`
	Estado          string  `json:"estado"`
	PisoID          *int64  `json:"piso_id"`
}

// Piso is a dwelling unit, linked to a building and to the member living there.
type Piso struct {
	Direccion         string  `json:"direccion"`
	Municipio         string  `json:"municipio"`
	CodigoPostal      string  `json:"codigo_postal"`
	NumOcupantes      *int64  `json:"num_ocupantes"`
	Agencia           string  `json:"agencia"`
	Propietario       string  `json:"propietario"`
	PropiedadVertical bool    `json:"propiedad_vertical"`
	FechaFirma        *string `json:"fecha_firma"`
	BloqueID          *int64  `json:"bloque_id"`
}

// Bloque is a building grouping multiple residences. Only its short address
// is carried through the import; everything else lives server side.
type Bloque struct {
	Direccion string `json:"direccion"`
}

// Facturacion is the payment/fee configuration linked to a member.
type Facturacion struct {
	Cuota        float64 `json:"cuota"`
	Periodicidad int     `json:"periodicidad"`
	FormaPago    string  `json:"forma_pago"`
	IBAN         string  `json:"iban"`
	AfiliadaID   *int64  `json:"afiliada_id"`
}

// Fields flattens the member into the field map consumed by the validator.
func (a Afiliada) Fields() map[string]any {
	return map[string]any{
		"nombre":           a.Nombre,
		"apellidos":        a.Apellidos,
		"genero":           a.Genero,
		"fecha_nacimiento": optional(a.FechaNacimiento),
		"cif":              a.CIF,
		"telefono":         a.Telefono,
		"email":            a.Email,
		"fecha_alta":       optional(a.FechaAlta),
		"regimen":          a.Regimen,
		"estado":           a.Estado,
		"piso_id":          optionalInt(a.PisoID),
	}
}

// Fields flattens the residence into the field map consumed by the validator.
func (p Piso) Fields() map[string]any {
	return map[string]any{
		"direccion":          p.Direccion,
		"municipio":          p.Municipio,
		"codigo_postal":      p.CodigoPostal,
		"num_ocupantes":      optionalInt(p.NumOcupantes),
		"agencia":            p.Agencia,
		"propietario":        p.Propietario,
		"propiedad_vertical": p.PropiedadVertical,
		"fecha_firma":        optional(p.FechaFirma),
		"bloque_id":          optionalInt(p.BloqueID),
	}
}

// Fields flattens the building into the field map consumed by the validator.
func (b Bloque) Fields() map[string]any {
	return map[string]any{
		"direccion": b.Direccion,
	}
}

// Fields flattens the billing profile into the field map consumed by the validator.
func (f Facturacion) Fields() map[string]any {
	return map[string]any{
		"cuota":        f.Cuota,
		"periodicidad": f.Periodicidad,
		"forma_pago":   f.FormaPago,
		"iban":         f.IBAN,
		"afiliada_id":  optionalInt(f.AfiliadaID),
	}
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func optionalInt(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}
