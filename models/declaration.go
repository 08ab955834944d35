package models

type ExpenseRow struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Amount float64 `json:"amount"`
	GifURL string  `json:"gifUrl,omitempty"`
}
