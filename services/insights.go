package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"retail-etl/models"
	"retail-etl/utils"
)

const topN = 5

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate fills the revenue and ranking fields of r from the cleaned line
// items and the product dimension.
func (s *InsightService) Generate(r *models.LoadReport, items []*models.LineItem, products []*models.Product) {
	r.Revenue = decimal.Zero
	byCountry := make(map[string]*models.CountryRevenue)
	for _, it := range items {
		r.Revenue = r.Revenue.Add(it.TotalAmount)
		cr, ok := byCountry[it.Country]
		if !ok {
			cr = &models.CountryRevenue{Country: it.Country}
			byCountry[it.Country] = cr
		}
		cr.Revenue = cr.Revenue.Add(it.TotalAmount)
		cr.Lines++
	}

	countries := make([]models.CountryRevenue, 0, len(byCountry))
	for _, cr := range byCountry {
		countries = append(countries, *cr)
	}
	sort.Slice(countries, func(i, j int) bool {
		if c := countries[i].Revenue.Cmp(countries[j].Revenue); c != 0 {
			return c > 0
		}
		return countries[i].Country < countries[j].Country
	})
	if len(countries) > topN {
		countries = countries[:topN]
	}
	r.TopCountries = countries

	volumes := make([]models.ProductVolume, 0, len(products))
	for _, p := range products {
		volumes = append(volumes, models.ProductVolume{StockCode: p.StockCode, Description: p.Description, TotalSold: p.TotalSold})
	}
	sort.SliceStable(volumes, func(i, j int) bool {
		return volumes[i].TotalSold > volumes[j].TotalSold
	})
	if len(volumes) > topN {
		volumes = volumes[:topN]
	}
	r.TopProducts = volumes
}

func (s *InsightService) Print(r *models.LoadReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  📦 ONLINE RETAIL LOAD REPORT\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	fmt.Printf("\033[1;33m  Cleaning\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Raw line items         : \033[1m%d\033[0m\n", r.RawRows)
	fmt.Printf("  Missing customer id    : \033[1m%d\033[0m\n", r.MissingCust)
	fmt.Printf("  Cancelled invoices     : \033[1m%d\033[0m\n", r.Cancelled)
	fmt.Printf("  Cleaned line items     : \033[1m%d\033[0m\n", r.CleanedRows)
	fmt.Println()

	fmt.Printf("\033[1;33m  Warehouse (inserted / stored)\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  countries    : %8d / %d\n", r.Inserted.Countries, r.Stored.Countries)
	fmt.Printf("  products     : %8d / %d\n", r.Inserted.Products, r.Stored.Products)
	fmt.Printf("  customers    : %8d / %d\n", r.Inserted.Customers, r.Stored.Customers)
	fmt.Printf("  transactions : %8d / %d\n", r.Inserted.Transactions, r.Stored.Transactions)
	if r.CountryConflicts > 0 {
		fmt.Printf("  \033[1;31m%d customers span several countries\033[0m\n", r.CountryConflicts)
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  Revenue\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Total : \033[1;32m£%s\033[0m\n", r.Revenue.StringFixed(2))
	fmt.Println()

	fmt.Printf("\033[1;33m  Top %d Products by Quantity\033[0m\n", topN)
	fmt.Printf("  %s\n", thin)
	if len(r.TopProducts) == 0 {
		fmt.Printf("  No products loaded\n")
	}
	for i, p := range r.TopProducts {
		fmt.Printf("  \033[1m%d.\033[0m %-8s %-32s %8d\n", i+1, p.StockCode, truncate(p.Description, 30), p.TotalSold)
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  Top %d Countries by Revenue\033[0m\n", topN)
	fmt.Printf("  %s\n", thin)
	if len(r.TopCountries) == 0 {
		fmt.Printf("  No country data\n")
	}
	for _, c := range r.TopCountries {
		fmt.Printf("  %-28s £%14s (%d lines)\n", truncate(c.Country, 26), c.Revenue.StringFixed(2), c.Lines)
	}

	fmt.Printf("\n  Run %s finished in %v\n", r.RunID, r.Duration)
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)
}

// truncate shortens s to max runes, ending with "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
