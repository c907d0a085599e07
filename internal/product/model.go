package product

import "github.com/shopspring/decimal"

// OptionValue is a purchasable add-on attached to a checkout line
// (gift wrap, engraving, ...) priced per channel.
type OptionValue struct {
	ID       int64
	Name     string
	Type     string
	Price    decimal.Decimal
	Currency string
}

// Translations maps an entity id to its translated name.
type Translations map[int64]string

// NameFor returns the translation of id, or "" when it is missing or
// equal to the canonical name.
func (t Translations) NameFor(id int64, canonical string) string {
	name, ok := t[id]
	if !ok || name == canonical {
		return ""
	}
	return name
}
