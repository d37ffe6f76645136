package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/avergara/uniondb/internal/domain"
	"github.com/avergara/uniondb/internal/validation"
	"github.com/avergara/uniondb/pkg/normalize"
)

// ErrUnsupportedFormat is returned when an uploaded file is not supported.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// Positional column layout of the external membership export. The file has
// no header contract beyond "first row is a header, skipped".
const (
	colNombre = iota
	colApellidos
	colGenero
	colFechaNacimiento
	colCIF
	colTelefono
	colEmail
	colFechaAlta
	colRegimen
	colEstado
	colTipoVia
	colNombreVia
	colNumero
	colEscalera
	colPiso
	colPuerta
	colMunicipio
	colCodigoPostal
	colNumOcupantes
	colAgencia
	colPropietario
	colPropiedadVertical
	colFechaFirma
	colCuota
	colIBAN
)

// Address is assembled from these six columns.
var addressColumns = []int{colTipoVia, colNombreVia, colNumero, colEscalera, colPiso, colPuerta}

var (
	feeText   = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*€\s*/?\s*(\p{L}+)`)
	ibanSpace = regexp.MustCompile(`\s+`)
)

var rowDateLayouts = []string{"02/01/2006", "2006-01-02"}

// Parser converts raw spreadsheet rows into draft records. It holds the
// session's validator so every parsed draft carries its validation result.
type Parser struct {
	validator *validation.Engine
}

// NewParser creates a row parser bound to a validation engine.
func NewParser(validator *validation.Engine) *Parser {
	return &Parser{validator: validator}
}

// ParseFile reads an uploaded CSV or XLSX export, skips the header row, and
// parses every remaining row into a draft record. Blank and malformed rows
// are silently excluded; a file that cannot be read at all is a whole-batch
// failure.
func (p *Parser) ParseFile(fileName string, payload []byte) ([]*domain.DraftRecord, error) {
	rows, err := readRows(fileName, payload)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("file is empty")
	}

	records := make([]*domain.DraftRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if rec := p.ParseRow(row); rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

// ParseRow parses one positional row into a draft record. It returns nil for
// blank/trailer rows (no name in the first column) and for rows whose
// parsing panics; malformed rows never abort the batch.
func (p *Parser) ParseRow(row []string) (rec *domain.DraftRecord) {
	defer func() {
		if recover() != nil {
			rec = nil
		}
	}()

	col := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	if col(colNombre) == "" {
		return nil
	}

	direccion := assembleAddress(row)
	cuota, periodicidad := parseFee(col(colCuota))
	iban := ibanSpace.ReplaceAllString(strings.ToUpper(col(colIBAN)), "")

	formaPago := domain.PaymentOther
	if iban != "" {
		formaPago = domain.PaymentDirectDebit
	}

	rec = &domain.DraftRecord{
		Afiliada: domain.Afiliada{
			Nombre:          col(colNombre),
			Apellidos:       col(colApellidos),
			Genero:          strings.ToLower(col(colGenero)),
			FechaNacimiento: parseRowDate(col(colFechaNacimiento)),
			CIF:             normalize.IdentifierKey(col(colCIF)),
			Telefono:        col(colTelefono),
			Email:           col(colEmail),
			FechaAlta:       parseRowDate(col(colFechaAlta)),
			Regimen:         strings.ToLower(col(colRegimen)),
			Estado:          strings.ToLower(col(colEstado)),
		},
		Piso: domain.Piso{
			Direccion:         direccion,
			Municipio:         col(colMunicipio),
			CodigoPostal:      col(colCodigoPostal),
			NumOcupantes:      parseCount(col(colNumOcupantes)),
			Agencia:           col(colAgencia),
			Propietario:       col(colPropietario),
			PropiedadVertical: parseFlag(col(colPropiedadVertical)),
			FechaFirma:        parseRowDate(col(colFechaFirma)),
		},
		Bloque: domain.Bloque{
			Direccion: normalize.ShortAddress(direccion),
		},
		Facturacion: domain.Facturacion{
			Cuota:        cuota,
			Periodicidad: periodicidad,
			FormaPago:    formaPago,
			IBAN:         iban,
		},
	}

	p.Validate(rec)
	return rec
}

// Validate runs the four sub-entity validations and combines them into the
// record's validation state. It is re-invoked after every operator edit.
func (p *Parser) Validate(rec *domain.DraftRecord) {
	rec.Validation = domain.ValidationState{Valid: true, Errors: []string{}}

	checks := []struct {
		kind   string
		fields map[string]any
	}{
		{domain.CollectionAfiliadas, rec.Afiliada.Fields()},
		{domain.CollectionPisos, rec.Piso.Fields()},
		{domain.CollectionBloques, rec.Bloque.Fields()},
		{domain.CollectionFacturacion, rec.Facturacion.Fields()},
	}

	for _, check := range checks {
		ok, errs := p.validator.Validate(check.kind, check.fields, validation.OpCreate)
		rec.Validation.Valid = rec.Validation.Valid && ok
		rec.Validation.Errors = append(rec.Validation.Errors, errs...)
	}
}

// assembleAddress builds the residence address from the six source columns.
// Street type, street name, and house number form one space-joined street
// line, so the short building address derived from the first comma token
// keeps both the street and its number. Escalera, piso, and puerta follow as
// comma-separated detail tokens.
func assembleAddress(row []string) string {
	col := func(i int) string {
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	street := joinNonEmpty(" ", col(colTipoVia), col(colNombreVia), col(colNumero))
	return joinNonEmpty(", ", street, col(colEscalera), col(colPiso), col(colPuerta))
}

func joinNonEmpty(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}

// parseFee extracts a fee amount and periodicity from free text such as
// "12,50€/mes" or "120 € anual". No match yields a zero monthly fee.
func parseFee(text string) (float64, int) {
	m := feeText.FindStringSubmatch(text)
	if m == nil {
		return 0, domain.PeriodicityMonthly
	}

	amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return 0, domain.PeriodicityMonthly
	}

	unit := strings.ToLower(m[2])
	if strings.Contains(unit, "an") || strings.Contains(unit, "añ") {
		return amount, domain.PeriodicityAnnual
	}
	return amount, domain.PeriodicityMonthly
}

// parseRowDate accepts DD/MM/YYYY or YYYY-MM-DD; anything else yields nil
// rather than an error.
func parseRowDate(raw string) *string {
	if raw == "" {
		return nil
	}
	for _, layout := range rowDateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			normalized := ts.Format("2006-01-02")
			return &normalized
		}
	}
	return nil
}

func parseCount(raw string) *int64 {
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func parseFlag(raw string) bool {
	switch strings.ToLower(raw) {
	case "si", "sí", "1", "true", "yes", "x":
		return true
	}
	return false
}

// readRows decodes the uploaded file into raw rows, stripping any BOM.
func readRows(fileName string, payload []byte) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv", "":
		return readCSV(payload)
	case ".xlsx":
		return readExcel(payload)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func readCSV(payload []byte) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

func readExcel(payload []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return rows, nil
}
