// Package seed fills the database with a demo owner, the default categories
// and a month of sample transactions.
package seed

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"fincontrol/internal/core"
	"fincontrol/internal/log"
	"fincontrol/internal/services"
)

const (
	DefaultUsername = "demo"
	DefaultCount    = 20
	maxItems        = 3
)

// DefaultCategories is the category set every demo owner starts with.
var DefaultCategories = []core.Category{
	{Name: "Receitas", Kind: core.Income},
	{Name: "Despesas", Kind: core.Expense},
	{Name: "Luz", Kind: core.Expense},
	{Name: "Água", Kind: core.Expense},
	{Name: "Salário", Kind: core.Income},
	{Name: "Alimentação", Kind: core.Expense},
	{Name: "Transporte", Kind: core.Expense},
	{Name: "Lazer", Kind: core.Expense},
	{Name: "Saúde", Kind: core.Expense},
	{Name: "Educação", Kind: core.Expense},
}

var descriptions = []string{
	"Compra no supermercado", "Pagamento de conta de luz", "Salário mensal",
	"Consulta médica", "Curso online", "Cinema", "Combustível",
	"Restaurante", "Compra de roupas", "Hotéis", "Viagem", "Presente",
	"Manutenção do carro", "Internet", "Telefone", "Academia",
	"Livros", "Eletrônicos", "Móveis", "Decoração",
}

// Store is the persistence the seeder writes through.
type Store interface {
	EnsureUser(ctx context.Context, username string) (int64, error)
	ListCategories(ctx context.Context, ownerID int64, search string) ([]core.Category, error)
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	TransactionsBetween(ctx context.Context, ownerID int64, from, to core.Date) ([]core.Transaction, error)
	DeleteTransactionsBetween(ctx context.Context, ownerID int64, from, to core.Date) (int64, error)
	SaveTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
}

type Options struct {
	Username string
	Count    int
	Today    core.Date
	Rand     *rand.Rand
	// Publisher, when set, announces replaced and created transactions to
	// the spreadsheet mirror. Without it created rows wait for the worker
	// sweep and replaced rows stay in the sheet.
	Publisher services.Publisher
}

type Result struct {
	OwnerID           int64
	CategoriesCreated int
	Replaced          int64
	Created           int
}

// Run seeds the demo owner. Categories are created only when missing, and
// the owner's transactions in the current month are replaced, so running it
// twice leaves one month of sample data.
func Run(ctx context.Context, store Store, opts Options, logger *log.Logger) (Result, error) {
	if opts.Username == "" {
		opts.Username = DefaultUsername
	}
	if opts.Count <= 0 {
		opts.Count = DefaultCount
	}
	if opts.Today.IsZero() {
		opts.Today = core.Today(nil)
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentSeed)

	var res Result
	ownerID, err := store.EnsureUser(ctx, opts.Username)
	if err != nil {
		return res, fmt.Errorf("ensure user %q: %w", opts.Username, err)
	}
	res.OwnerID = ownerID

	categories, created, err := ensureCategories(ctx, store, ownerID, logger)
	if err != nil {
		return res, err
	}
	res.CategoriesCreated = created

	year, month := opts.Today.Year(), int(opts.Today.Month())
	from, to, err := core.MonthRange(year, month)
	if err != nil {
		return res, err
	}
	previous, err := store.TransactionsBetween(ctx, ownerID, from, to)
	if err != nil {
		return res, fmt.Errorf("list %04d-%02d: %w", year, month, err)
	}
	if res.Replaced, err = store.DeleteTransactionsBetween(ctx, ownerID, from, to); err != nil {
		return res, fmt.Errorf("clear %04d-%02d: %w", year, month, err)
	}
	if opts.Publisher != nil {
		for _, t := range previous {
			if err := opts.Publisher.PublishTransactionDelete(ctx, t.ID, ownerID); err != nil {
				logger.Warn("Failed to publish delete message", log.FieldTransactionID, t.ID, log.FieldError, err)
			}
		}
	}

	for i := 0; i < opts.Count; i++ {
		t := randomTransaction(opts.Rand, ownerID, categories, year, month, opts.Today.Day())
		saved, err := store.SaveTransaction(ctx, t)
		if err != nil {
			return res, fmt.Errorf("save sample transaction %d: %w", i+1, err)
		}
		res.Created++
		if opts.Publisher != nil {
			if err := opts.Publisher.PublishTransactionSync(ctx, saved.ID, ownerID, saved.Version); err != nil {
				logger.Warn("Failed to publish sync message", log.FieldTransactionID, saved.ID, log.FieldError, err)
			}
		}
		logger.Debug("Sample transaction created",
			log.FieldTransactionID, saved.ID,
			log.FieldTotal, saved.TotalAmount.StringFixed(2),
			log.FieldItems, len(saved.Items))
	}

	logger.Info("Seed complete",
		log.FieldOwner, ownerID,
		"categories_created", res.CategoriesCreated,
		"replaced", res.Replaced,
		"created", res.Created)
	return res, nil
}

func ensureCategories(ctx context.Context, store Store, ownerID int64, logger *log.Logger) ([]core.Category, int, error) {
	existing, err := store.ListCategories(ctx, ownerID, "")
	if err != nil {
		return nil, 0, fmt.Errorf("list categories: %w", err)
	}
	byName := make(map[string]core.Category, len(existing))
	for _, c := range existing {
		byName[c.Name] = c
	}

	out := make([]core.Category, 0, len(DefaultCategories))
	created := 0
	for _, def := range DefaultCategories {
		if c, ok := byName[def.Name]; ok {
			out = append(out, c)
			continue
		}
		def.OwnerID = ownerID
		c, err := store.CreateCategory(ctx, def)
		if err != nil {
			return nil, created, fmt.Errorf("create category %q: %w", def.Name, err)
		}
		logger.Info("Category created", log.FieldCategoryID, c.ID, "name", c.Name)
		out = append(out, c)
		created++
	}
	return out, created, nil
}

// randomTransaction builds 1-3 items with amounts between 10.00 and 500.99
// on a day no later than maxDay.
func randomTransaction(r *rand.Rand, ownerID int64, categories []core.Category, year, month, maxDay int) core.Transaction {
	day := 1 + r.IntN(min(28, maxDay))
	t := core.Transaction{
		OwnerID:     ownerID,
		Description: descriptions[r.IntN(len(descriptions))],
		Date:        core.NewDate(year, month, day),
	}
	for n := 1 + r.IntN(maxItems); n > 0; n-- {
		cents := int64(10+r.IntN(491))*100 + int64(r.IntN(100))
		t.Items = append(t.Items, core.TransactionItem{
			Category: categories[r.IntN(len(categories))],
			Amount:   decimal.New(cents, -2),
		})
	}
	return t
}
