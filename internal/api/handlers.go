package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"grid-core/internal/engine"
	"grid-core/pkg/db"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"meta":    s.Meta,
		"engines": s.Engines.Statuses(),
	})
}

// worker resolves the :symbol param or writes a 404.
func (s *Server) worker(c *gin.Context) (*engine.Worker, bool) {
	symbol := c.Param("symbol")
	w, ok := s.Engines.Worker(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol " + symbol})
		return nil, false
	}
	return w, true
}

func (s *Server) getPortfolio(c *gin.Context) {
	w, ok := s.worker(c)
	if !ok {
		return
	}
	snap := w.Risk.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"symbol":             w.Symbol,
		"total_equity":       snap.TotalEquity,
		"available_balance":  snap.AvailableBalance,
		"locked_balance":     snap.LockedBalance,
		"open_position_qty":  snap.OpenPositionQty,
		"open_notional":      snap.OpenNotional,
		"realized_pnl_today": snap.RealizedPnLToday,
		"average_entry":      snap.AverageEntry,
		"halted":             snap.Halted,
	})
}

func (s *Server) getGrid(c *gin.Context) {
	w, ok := s.worker(c)
	if !ok {
		return
	}
	g := w.Grid()
	if g == nil {
		c.JSON(http.StatusOK, gin.H{"symbol": w.Symbol, "grid": nil})
		return
	}

	type levelView struct {
		Price    string `json:"price"`
		Side     string `json:"side"`
		Consumed bool   `json:"consumed"`
	}
	levels := make([]levelView, 0, len(g.Levels))
	for _, lv := range g.Levels {
		levels = append(levels, levelView{Price: lv.Price.String(), Side: string(lv.Side), Consumed: lv.Consumed})
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":       g.Symbol,
		"center":       g.Center.String(),
		"spacing":      g.Spacing.String(),
		"trend":        g.Trend,
		"generated_at": g.GeneratedAt,
		"levels":       levels,
	})
}

func (s *Server) getTrades(c *gin.Context) {
	w, ok := s.worker(c)
	if !ok {
		return
	}
	limit := queryLimit(c, 50)
	rows, err := s.DB.ListRecentTrades(c.Request.Context(), w.Symbol, limit)
	if err != nil {
		log.Printf("api: list trades: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trades"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": w.Symbol, "trades": rows, "open": w.Orders.OpenTrades()})
}

func (s *Server) getSignals(c *gin.Context) {
	w, ok := s.worker(c)
	if !ok {
		return
	}
	limit := queryLimit(c, 50)
	rows, err := s.DB.ListRecentSignals(c.Request.Context(), w.Symbol, limit)
	if err != nil {
		log.Printf("api: list signals: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load signals"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": w.Symbol, "signals": rows})
}

type haltRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) haltSymbol(c *gin.Context) {
	w, ok := s.worker(c)
	if !ok {
		return
	}
	var req haltRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "manual halt"
	}
	w.Risk.Halt(req.Reason)
	c.JSON(http.StatusOK, gin.H{"symbol": w.Symbol, "halted": true})
}

func (s *Server) resumeSymbol(c *gin.Context) {
	w, ok := s.worker(c)
	if !ok {
		return
	}
	w.Risk.ResetHalt()
	c.JSON(http.StatusOK, gin.H{"symbol": w.Symbol, "halted": false})
}

type closeRequest struct {
	Price string `json:"price" binding:"required"`
}

func (s *Server) closeTrade(c *gin.Context) {
	w, ok := s.worker(c)
	if !ok {
		return
	}
	var req closeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price is required"})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}

	id := c.Param("id")
	if err := w.Orders.RequestClose(c.Request.Context(), id, price, true); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown trade " + id})
			return
		}
		log.Printf("api: close trade %s: %v", id, err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"trade_id": id, "closing": true})
}

func queryLimit(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 1000 {
		return def
	}
	return n
}
