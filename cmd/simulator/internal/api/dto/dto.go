package dto

import "github.com/shubham-shewale/market-sim/pkg/models"

// Res is the envelope of every API response.
type Res struct {
	Success bool `json:"success"`
	Error   any  `json:"error"`
	Data    any  `json:"data"`
}

type ErrorType struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ListInstrumentsReq

type ListInstrumentsReq struct {
	Category string `form:"category"` // any case; parsed by models.ParseCategory
}

type ListInstrumentsRes struct {
	Instruments []models.Instrument `json:"instruments"`
}

// GetHistoryReq

type GetHistoryReq struct {
	Symbols string `form:"symbols" binding:"required"`
}

type GetHistoryRes struct {
	Symbol string                `json:"symbol"`
	Points []models.HistoryPoint `json:"points"`
}

type GetHistoriesRes struct {
	Histories map[string][]models.HistoryPoint `json:"histories"`
}
