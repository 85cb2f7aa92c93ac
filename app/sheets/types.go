package sheets

// Entry is one food record row. Terminal state is a persisted spreadsheet
// row; entries are never mutated after creation.
type Entry struct {
	Date     string
	FoodName string
	Recipe   string
	PhotoURL string
}

func (e Entry) row() []interface{} {
	return []interface{}{e.Date, e.FoodName, e.Recipe, e.PhotoURL}
}
