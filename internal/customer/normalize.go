package customer

// fieldKind is the expected data type of a spreadsheet column.
type fieldKind int

const (
	fieldText fieldKind = iota
	fieldDate
	fieldNumeric
)

// fieldSpec defines one expected column of a customer import file.
type fieldSpec struct {
	Name     string
	Kind     fieldKind
	Required bool
}

// Fields lists the columns of a customer import file, in template order.
// IdentityColumn must stay first.
var Fields = []fieldSpec{
	{Name: IdentityColumn, Kind: fieldText, Required: true},
	{Name: "customer_name", Kind: fieldText, Required: true},
	{Name: "email", Kind: fieldText, Required: true},
	{Name: "phone", Kind: fieldText},
	{Name: "joined", Kind: fieldDate},
	{Name: "credit_limit", Kind: fieldNumeric},
}

// RequiredColumns returns the column names that must be present in the
// header of an import file.
func RequiredColumns() []string {
	var cols []string
	for _, f := range Fields {
		if f.Required {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

// Normalize parses a raw spreadsheet row into a validated CustomerRecord,
// or a structured rejection. It is a pure function of the row: any
// missing or uncoercible required field yields a RejectedRow, never an
// error past this boundary.
func Normalize(row RawRow) (CustomerRecord, *RejectedRow) {
	code := row.Cell(IdentityColumn)
	if code == "" {
		return CustomerRecord{}, &RejectedRow{
			Row:    row,
			Field:  IdentityColumn,
			Reason: ReasonMissingIdentity,
		}
	}

	rec := CustomerRecord{Line: row.Line, Code: code}

	for _, f := range Fields {
		raw := row.Cell(f.Name)
		if raw == "" {
			if f.Required && f.Name != IdentityColumn {
				return CustomerRecord{}, &RejectedRow{
					Row:    row,
					Field:  f.Name,
					Reason: ReasonMissingField,
				}
			}
			continue
		}

		switch f.Name {
		case "customer_name":
			rec.Name = raw
		case "email":
			rec.Email = raw
		case "phone":
			rec.Phone = raw
		case "joined":
			t, err := ParseDate(raw)
			if err != nil {
				return CustomerRecord{}, &RejectedRow{
					Row:    row,
					Field:  f.Name,
					Reason: ReasonBadDate,
					Detail: err.Error(),
				}
			}
			rec.Joined = t
		case "credit_limit":
			v, err := ParseAmount(raw)
			if err != nil {
				return CustomerRecord{}, &RejectedRow{
					Row:    row,
					Field:  f.Name,
					Reason: ReasonBadNumber,
					Detail: err.Error(),
				}
			}
			rec.CreditLimit = v
			rec.HasCredit = true
		}
	}

	return rec, nil
}
