package handler

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shubham-shewale/market-sim/cmd/simulator/internal/api/constant"
	"github.com/shubham-shewale/market-sim/cmd/simulator/internal/api/dto"
	"github.com/shubham-shewale/market-sim/pkg/models"
)

// MarketReader is the read side of the market engine.
type MarketReader interface {
	Snapshot() map[string]models.Instrument
	Instrument(symbol string) (models.Instrument, bool)
	ByCategory(category models.Category) map[string]models.Instrument
	History(symbol string) []models.HistoryPoint
	HistoryFor(symbols ...string) map[string][]models.HistoryPoint
}

type HandlerItf interface {
	ListInstruments(*gin.Context)
	GetInstrument(*gin.Context)
	GetHistory(*gin.Context)
	GetHistories(*gin.Context)
}

type Handler struct {
	market MarketReader
}

func NewHandler(market MarketReader) *Handler {
	return &Handler{market: market}
}

// Register mounts the read API on rg.
func (hd *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/instruments", hd.ListInstruments)
	rg.GET("/instruments/:symbol", hd.GetInstrument)
	rg.GET("/history", hd.GetHistories)
	rg.GET("/history/:symbol", hd.GetHistory)
}

func (hd *Handler) ListInstruments(ctx *gin.Context) {
	var req dto.ListInstrumentsReq
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.Error(err)
		return
	}

	var instruments map[string]models.Instrument
	if req.Category == "" {
		instruments = hd.market.Snapshot()
	} else {
		category, err := models.ParseCategory(req.Category)
		if err != nil {
			ctx.Error(constant.ErrUnknownCategory)
			return
		}
		instruments = hd.market.ByCategory(category)
	}

	res := dto.ListInstrumentsRes{Instruments: make([]models.Instrument, 0, len(instruments))}
	for _, inst := range instruments {
		res.Instruments = append(res.Instruments, inst)
	}
	sort.Slice(res.Instruments, func(i, j int) bool {
		return res.Instruments[i].Symbol < res.Instruments[j].Symbol
	})

	respond(ctx, res)
}

func (hd *Handler) GetInstrument(ctx *gin.Context) {
	inst, ok := hd.market.Instrument(normalize(ctx.Param("symbol")))
	if !ok {
		ctx.Error(constant.ErrUnknownSymbol)
		return
	}
	respond(ctx, inst)
}

// GetHistory answers unknown symbols with an empty series.
func (hd *Handler) GetHistory(ctx *gin.Context) {
	symbol := normalize(ctx.Param("symbol"))
	respond(ctx, dto.GetHistoryRes{
		Symbol: symbol,
		Points: hd.market.History(symbol),
	})
}

func (hd *Handler) GetHistories(ctx *gin.Context) {
	var req dto.GetHistoryReq
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.Error(err)
		return
	}

	var symbols []string
	for _, s := range strings.Split(req.Symbols, ",") {
		if s = normalize(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		ctx.Error(constant.ErrNoSymbols)
		return
	}

	respond(ctx, dto.GetHistoriesRes{Histories: hd.market.HistoryFor(symbols...)})
}

func respond(ctx *gin.Context, data any) {
	if ctx.Request.Context().Err() != nil {
		return // Error middleware reports the timeout
	}
	ctx.JSON(http.StatusOK, dto.Res{
		Success: true,
		Error:   nil,
		Data:    data,
	})
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
