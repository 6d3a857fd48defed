package service

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"trade_core/internal/helper"
	"trade_core/internal/models"
	"trade_core/internal/modules/config"
)

// Sizer переводит сырые прогнозы в SL/TP-проценты и размер позиции.
// Fail-closed: на кривых входах возвращаем консервативные дефолты,
// не ошибку.
type Sizer struct {
	cfg config.RiskConfig
	log *zap.Logger
}

func New(cfg *config.Config, log *zap.Logger) *Sizer {
	return &Sizer{cfg: cfg.Risk, log: log}
}

// Suggest заполняет SuggestedStopPct/SuggestedTakePct/RiskScore сигнала.
// returns — прогнозы доходности по горизонтам, risks — риск-метрики.
func (s *Sizer) Suggest(sig *models.TradingSignal, returns, risks []float64) {
	if !helper.Finite(returns...) || !helper.Finite(risks...) || len(returns) == 0 || len(risks) == 0 {
		s.log.Warn("non-finite risk inputs, using defaults", zap.String("symbol", sig.Symbol))
		sig.SuggestedStopPct = s.cfg.DefaultStopPct
		sig.SuggestedTakePct = s.cfg.DefaultTakePct
		sig.RiskScore = 1 // худший случай
		return
	}

	// Средние величины хода против и по направлению сигнала.
	var adverse, favorable float64
	var nAdv, nFav int
	for _, r := range returns {
		against := r < 0
		if sig.SignalType == models.SignalShort {
			against = r > 0
		}
		if against {
			adverse += math.Abs(r)
			nAdv++
		} else if r != 0 {
			favorable += math.Abs(r)
			nFav++
		}
	}

	stopPct := s.cfg.DefaultStopPct
	if nAdv > 0 {
		stopPct = adverse / float64(nAdv) * 100 * s.cfg.StopBuffer
	}
	stopPct = helper.Clamp(stopPct, s.cfg.MinStopPct, s.cfg.MaxStopPct)

	takePct := stopPct * s.cfg.TakeProfitRR
	if nFav > 0 {
		if fav := favorable / float64(nFav) * 100; fav > takePct {
			takePct = fav
		}
	}
	takePct = helper.Clamp(takePct, s.cfg.MinTakePct, s.cfg.MaxTakePct)

	meanRisk := 0.0
	for _, r := range risks {
		meanRisk += helper.Clamp01(r)
	}
	meanRisk /= float64(len(risks))

	sig.SuggestedStopPct = stopPct
	sig.SuggestedTakePct = takePct
	sig.RiskScore = meanRisk
}

// SizeByRisk считает размер в контрактах для линейного USDT-свопа:
//
//	PnL(USDT) ≈ (entry - stop) * ctVal * sz
//	margin    ≈ entry * ctVal * sz / leverage
//
// Размер — минимум из риск-формулы и маржинального капа, округлён под
// lotSz и поднят до minSz.
func (s *Sizer) SizeByRisk(equity, entryPrice, slPrice float64, meta models.InstrumentMeta) (float64, error) {
	if entryPrice <= 0 || slPrice <= 0 {
		return 0, fmt.Errorf("SizeByRisk: entry/sl <= 0")
	}
	if equity <= 0 {
		return 0, fmt.Errorf("SizeByRisk: equity <= 0")
	}

	riskFraction := s.cfg.RiskPct / 100.0
	if riskFraction <= 0 {
		return 0, fmt.Errorf("SizeByRisk: riskFraction <= 0")
	}
	riskUSDT := equity * riskFraction

	lev := float64(s.cfg.Leverage)
	if lev <= 0 {
		lev = 1
	}

	ctVal := meta.CtVal
	if ctVal <= 0 {
		return 0, fmt.Errorf("SizeByRisk: ctVal <= 0")
	}

	stopDist := math.Abs(entryPrice - slPrice)
	if stopDist <= 0 {
		return 0, fmt.Errorf("SizeByRisk: zero stopDist")
	}
	szRisk := riskUSDT / (stopDist * ctVal)
	if szRisk <= 0 || math.IsNaN(szRisk) || math.IsInf(szRisk, 0) {
		return 0, fmt.Errorf("SizeByRisk: szRisk invalid: %.10f", szRisk)
	}

	maxSzByMargin := (equity * lev) / (entryPrice * ctVal)
	if maxSzByMargin <= 0 || math.IsNaN(maxSzByMargin) || math.IsInf(maxSzByMargin, 0) {
		return 0, fmt.Errorf("SizeByRisk: maxSzByMargin invalid: %.10f", maxSzByMargin)
	}

	sz := math.Min(szRisk, maxSzByMargin)

	lotSz := meta.LotSize
	minSz := meta.MinSize
	if lotSz <= 0 {
		lotSz = 1
	}
	if minSz <= 0 {
		minSz = lotSz
	}

	steps := math.Floor(sz/lotSz + 1e-9)
	sz = steps * lotSz
	if sz < minSz {
		sz = minSz
	}

	if sz <= 0 {
		return 0, fmt.Errorf("SizeByRisk: sz <= 0 after rounding: %.10f", sz)
	}
	return sz, nil
}
