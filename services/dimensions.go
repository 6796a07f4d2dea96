package services

import (
	"fmt"

	"github.com/shopspring/decimal"

	"retail-etl/models"
)

// DistinctCountries returns each country name once, in first-seen order.
func DistinctCountries(items []*models.LineItem) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, it := range items {
		if _, ok := seen[it.Country]; ok {
			continue
		}
		seen[it.Country] = struct{}{}
		names = append(names, it.Country)
	}
	return names
}

// AggregateProducts folds line items into one Product per stock code, in
// first-seen order. Description is the first non-empty one in row order,
// AvgUnitPrice the mean unit price and TotalSold the sum of quantities.
func AggregateProducts(items []*models.LineItem) []*models.Product {
	type acc struct {
		p        *models.Product
		priceSum decimal.Decimal
		lines    int64
	}

	index := make(map[string]*acc)
	var order []*acc
	for _, it := range items {
		a, ok := index[it.StockCode]
		if !ok {
			a = &acc{p: &models.Product{StockCode: it.StockCode}}
			index[it.StockCode] = a
			order = append(order, a)
		}
		if a.p.Description == "" {
			a.p.Description = it.Description
		}
		a.priceSum = a.priceSum.Add(it.UnitPrice)
		a.lines++
		a.p.TotalSold += it.Quantity
	}

	products := make([]*models.Product, 0, len(order))
	for _, a := range order {
		a.p.AvgUnitPrice = a.priceSum.Div(decimal.NewFromInt(a.lines))
		products = append(products, a.p)
	}
	return products
}

// AggregateCustomers folds line items into one aggregate per customer, in
// first-seen order. TotalOrders counts distinct invoice numbers, not lines.
// The country is taken from the customer's first row and is not checked
// against later rows; see CountryConflicts.
func AggregateCustomers(items []*models.LineItem) []*models.CustomerAggregate {
	type acc struct {
		c        *models.CustomerAggregate
		invoices map[string]struct{}
	}

	index := make(map[int64]*acc)
	var order []*acc
	for _, it := range items {
		a, ok := index[it.CustomerID]
		if !ok {
			a = &acc{
				c: &models.CustomerAggregate{
					CustomerID:       it.CustomerID,
					CountryName:      it.Country,
					FirstTransaction: it.InvoiceDate,
				},
				invoices: make(map[string]struct{}),
			}
			index[it.CustomerID] = a
			order = append(order, a)
		}
		if it.InvoiceDate.Before(a.c.FirstTransaction) {
			a.c.FirstTransaction = it.InvoiceDate
		}
		a.invoices[it.InvoiceNo] = struct{}{}
		a.c.TotalSpent = a.c.TotalSpent.Add(it.TotalAmount)
	}

	customers := make([]*models.CustomerAggregate, 0, len(order))
	for _, a := range order {
		a.c.TotalOrders = int64(len(a.invoices))
		customers = append(customers, a.c)
	}
	return customers
}

// CountryConflicts counts customers whose line items name more than one
// country. For those customers the dimension country differs from the
// country of some of their transactions.
func CountryConflicts(items []*models.LineItem) int {
	first := make(map[int64]string)
	conflicted := make(map[int64]struct{})
	for _, it := range items {
		c, ok := first[it.CustomerID]
		if !ok {
			first[it.CustomerID] = it.Country
			continue
		}
		if c != it.Country {
			conflicted[it.CustomerID] = struct{}{}
		}
	}
	return len(conflicted)
}

// ResolveCustomers maps each aggregate's country name to its country id.
func ResolveCustomers(aggs []*models.CustomerAggregate, countryIDs map[string]int64) ([]*models.Customer, error) {
	customers := make([]*models.Customer, 0, len(aggs))
	for _, a := range aggs {
		id, ok := countryIDs[a.CountryName]
		if !ok {
			return nil, fmt.Errorf("customer %d: country %q: %w", a.CustomerID, a.CountryName, models.ErrUnresolvedKey)
		}
		customers = append(customers, &models.Customer{
			CustomerID:       a.CustomerID,
			CountryID:        id,
			FirstTransaction: a.FirstTransaction,
			TotalOrders:      a.TotalOrders,
			TotalSpent:       a.TotalSpent,
		})
	}
	return customers, nil
}

// KeyIndex holds the dimension keys a fact row must resolve against.
type KeyIndex struct {
	CountryIDs map[string]int64
	StockCodes map[string]struct{}
	Customers  map[int64]struct{}
}

// NewKeyIndex builds a KeyIndex from the loaded dimensions.
func NewKeyIndex(countryIDs map[string]int64, products []*models.Product, customers []*models.Customer) *KeyIndex {
	k := &KeyIndex{
		CountryIDs: countryIDs,
		StockCodes: make(map[string]struct{}, len(products)),
		Customers:  make(map[int64]struct{}, len(customers)),
	}
	for _, p := range products {
		k.StockCodes[p.StockCode] = struct{}{}
	}
	for _, c := range customers {
		k.Customers[c.CustomerID] = struct{}{}
	}
	return k
}

// BuildTransactions turns every line item into a fact row. The country id
// comes from the row's own country, not from the customer dimension. The
// first key that does not resolve aborts with models.ErrUnresolvedKey.
func BuildTransactions(items []*models.LineItem, keys *KeyIndex) ([]*models.Transaction, error) {
	txns := make([]*models.Transaction, 0, len(items))
	for i, it := range items {
		countryID, ok := keys.CountryIDs[it.Country]
		if !ok {
			return nil, fmt.Errorf("line %d (invoice %s): country %q: %w", i, it.InvoiceNo, it.Country, models.ErrUnresolvedKey)
		}
		if _, ok := keys.StockCodes[it.StockCode]; !ok {
			return nil, fmt.Errorf("line %d (invoice %s): stock code %q: %w", i, it.InvoiceNo, it.StockCode, models.ErrUnresolvedKey)
		}
		if _, ok := keys.Customers[it.CustomerID]; !ok {
			return nil, fmt.Errorf("line %d (invoice %s): customer %d: %w", i, it.InvoiceNo, it.CustomerID, models.ErrUnresolvedKey)
		}

		txns = append(txns, &models.Transaction{
			InvoiceNo:   it.InvoiceNo,
			StockCode:   it.StockCode,
			CustomerID:  it.CustomerID,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			InvoiceDate: it.InvoiceDate,
			TotalAmount: it.TotalAmount,
			CountryID:   countryID,
		})
	}
	return txns, nil
}
