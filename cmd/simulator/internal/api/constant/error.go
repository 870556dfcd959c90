package constant

import "net/http"

type CustomError struct {
	StatusCode int
	Message    string
}

func NewCError(StatusCode int, Message string) CustomError {
	return CustomError{StatusCode: StatusCode, Message: Message}
}

func (err CustomError) Error() string {
	return err.Message
}

var (
	ErrUnknownSymbol = NewCError(http.StatusNotFound,
		"unknown symbol")
	ErrNoSymbols = NewCError(http.StatusBadRequest,
		"please provide at least one symbol")
	ErrUnknownCategory = NewCError(http.StatusBadRequest,
		"unknown category, expected one of Indices, Crypto, Commodities, Bonds")
)
