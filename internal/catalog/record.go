// Package catalog holds the product record that travels through the import
// pipeline, the validator every stage applies before a side effect, and the
// conversions from parsed rows and JSON bodies into records.
//
// A [Record] is created by the row parser (from an uploaded file) or by the
// create endpoint (from a request body), is queued as flat JSON, and is
// finally split into a [Product] and a [Stock] by the commit coordinator.
package catalog

// Record is one catalog entry: a product together with its stock count.
type Record struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Count       int     `json:"count"`
}

// Product is the persisted projection keyed by ID.
type Product struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// Stock is the persisted inventory projection keyed by ProductID.
type Stock struct {
	ProductID string `json:"product_id"`
	Count     int    `json:"count"`
}

// Product returns the product half of the record.
func (r Record) Product() Product {
	return Product{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Price:       r.Price,
	}
}

// Stock returns the stock half of the record.
func (r Record) Stock() Stock {
	return Stock{ProductID: r.ID, Count: r.Count}
}
