package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  CategoryKind = "INCOME"
	Expense CategoryKind = "EXPENSE"
)

const (
	MaxCategoryNameLength = 100
	MaxDescriptionLength  = 200
)

type (
	CategoryKind string

	Category struct {
		ID      int64
		OwnerID int64
		Name    string
		Kind    CategoryKind
	}

	Transaction struct {
		ID          int64
		OwnerID     int64
		Description string
		Date        Date
		TotalAmount decimal.Decimal
		Version     int64
		Items       []TransactionItem
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// TransactionItem is one categorized amount. Category carries the name and
	// kind when the item was loaded from storage; on input only Category.ID is
	// required.
	TransactionItem struct {
		ID            int64
		TransactionID int64
		Category      Category
		Amount        decimal.Decimal
	}
)

var (
	ErrInvalidKind      = errors.New("invalid category kind")
	ErrEmptyName        = errors.New("empty category name")
	ErrNameTooLong      = fmt.Errorf("category name too long (max %d characters)", MaxCategoryNameLength)
	ErrEmptyDescription = errors.New("empty description")
	ErrDescTooLong      = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	ErrFutureDate       = errors.New("date cannot be in the future")
	ErrMissingCategory  = errors.New("category is required")

	// ErrNoItems is a form-level error: a transaction needs at least one item.
	ErrNoItems = errors.New("a transaction needs at least one item")
)

// ParseCategoryKind accepts INCOME or EXPENSE, case-insensitive.
func ParseCategoryKind(s string) (CategoryKind, error) {
	switch CategoryKind(strings.ToUpper(strings.TrimSpace(s))) {
	case Income:
		return Income, nil
	case Expense:
		return Expense, nil
	}
	return "", ErrInvalidKind
}

func (k CategoryKind) Valid() bool {
	return k == Income || k == Expense
}

// Label returns the display label used in pages and exports.
func (k CategoryKind) Label() string {
	switch k {
	case Income:
		return "Receita"
	case Expense:
		return "Despesa"
	}
	return string(k)
}

// Sign applies the kind's sign to a positive amount: income adds, expense subtracts.
func (k CategoryKind) Sign(amount decimal.Decimal) decimal.Decimal {
	if k == Income {
		return amount
	}
	return amount.Neg()
}

func (c Category) String() string {
	return c.Name
}

func (c Category) Validate() error {
	var errs ValidationErrors
	name := strings.TrimSpace(c.Name)
	switch {
	case name == "":
		errs = errs.Add("name", ErrEmptyName.Error())
	case len([]rune(name)) > MaxCategoryNameLength:
		errs = errs.Add("name", ErrNameTooLong.Error())
	}
	if !c.Kind.Valid() {
		errs = errs.Add("kind", ErrInvalidKind.Error())
	}
	return errs.Err()
}

func (t Transaction) String() string {
	return t.Description + " - " + t.Date.String()
}

// Validate checks the edit-boundary rules. Field problems come back as
// ValidationErrors; a transaction without items yields ErrNoItems.
func (t Transaction) Validate(today Date) error {
	var errs ValidationErrors

	desc := strings.TrimSpace(t.Description)
	switch {
	case desc == "":
		errs = errs.Add("description", ErrEmptyDescription.Error())
	case len([]rune(desc)) > MaxDescriptionLength:
		errs = errs.Add("description", ErrDescTooLong.Error())
	}

	if err := t.Date.Validate(); err != nil {
		errs = errs.Add("date", err.Error())
	} else if t.Date.After(today.Time) {
		errs = errs.Add("date", ErrFutureDate.Error())
	}

	for i, it := range t.Items {
		if it.Category.ID <= 0 {
			errs = errs.Add(itemField(i, "category"), ErrMissingCategory.Error())
		}
		if err := ValidateAmount(it.Amount); err != nil {
			errs = errs.Add(itemField(i, "amount"), err.Error())
		}
	}

	if err := errs.Err(); err != nil {
		return err
	}
	if len(t.Items) == 0 {
		return ErrNoItems
	}
	return nil
}

func itemField(i int, name string) string {
	return fmt.Sprintf("items[%d].%s", i, name)
}

func (it TransactionItem) String() string {
	return it.Category.Name + " - " + it.Amount.StringFixed(2)
}

// Signed returns the item's contribution to a balance.
func (it TransactionItem) Signed() decimal.Decimal {
	return it.Category.Kind.Sign(it.Amount)
}
