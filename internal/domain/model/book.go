package model

// Book is the catalog view needed to price and stock an order line.
type Book struct {
	ID    int64
	Name  string
	Price int64
	Stock int
}
