package csvrow

// Kind selects how a column value is parsed.
type Kind int

const (
	Text Kind = iota
	Date
	Amount
	Flag
)

// Column describes one logical field of a row. Aliases are the header names
// accepted for it, tried in order; the first non-blank value wins.
type Column struct {
	Name     string
	Aliases  []string
	Kind     Kind
	Required bool
	Default  string
	Upper    bool
	Allowed  []string
}

func (c Column) headers() []string {
	if len(c.Aliases) == 0 {
		return []string{c.Name}
	}
	return c.Aliases
}

// Schema is the set of columns a file is validated against plus the date
// layouts tried, in order, for every Date column.
type Schema struct {
	Columns     []Column
	DateLayouts []string
	// DateLabels are the user facing spellings of DateLayouts, echoed back in errors.
	DateLabels []string
}

// Column names of the search-detail upload.
const (
	ColTxnRef      = "txn_ref"
	ColTxnDate     = "txn_date"
	ColTxnAmount   = "txn_amount"
	ColTxnType     = "txn_type"
	ColDescription = "description"
	ColRequestNmbr = "request_nmbr"
)

// Column names of the manual bank-transaction upload.
const (
	ColTranDate = "tran_date"
	ColAmount   = "amount"
	ColDrCrFlag = "dr_cr_flag"
	ColPayer    = "payer"
)

// DrCrFlags are the accepted debit/credit flag values.
var DrCrFlags = []string{"C", "D", "CR", "DR"}

// SearchDetailSchema is the layout of a search-detail CSV. Blank or missing
// txn_type falls back to defaultTxnType.
func SearchDetailSchema(defaultTxnType string) Schema {
	return Schema{
		Columns: []Column{
			{Name: ColTxnRef, Kind: Text, Required: true},
			{Name: ColTxnDate, Kind: Date, Required: true},
			{Name: ColTxnAmount, Kind: Amount, Required: true},
			{Name: ColTxnType, Kind: Text, Default: defaultTxnType, Upper: true},
			{Name: ColDescription, Kind: Text},
			{Name: ColRequestNmbr, Aliases: []string{"request_nmbr", "wage_list"}, Kind: Text},
		},
		DateLayouts: []string{"2006-01-02", "2-Jan-2006"},
		DateLabels:  []string{"yyyy-MM-dd", "d-MMM-yyyy"},
	}
}

// ManualTransactionSchema is the layout of a manual bank-transaction CSV.
func ManualTransactionSchema() Schema {
	return Schema{
		Columns: []Column{
			{Name: ColTxnRef, Kind: Text},
			{Name: ColTranDate, Aliases: []string{"tran_date", "txn_date"}, Kind: Date, Required: true},
			{Name: ColAmount, Aliases: []string{"amount", "txn_amount"}, Kind: Amount, Required: true},
			{Name: ColDrCrFlag, Aliases: []string{"debit_credit_flag", "dr_cr_flag"}, Kind: Flag, Required: true, Allowed: DrCrFlags},
			{Name: ColTxnType, Kind: Text, Upper: true},
			{Name: ColPayer, Kind: Text},
			{Name: ColDescription, Kind: Text},
		},
		DateLayouts: []string{"2006-01-02", "02-01-2006"},
		DateLabels:  []string{"yyyy-MM-dd", "dd-MM-yyyy"},
	}
}
