package service

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"trade_core/internal/helper"
	"trade_core/internal/models"
	"trade_core/internal/modules/config"
)

// Evaluator — чистая функция позиции и истории снапшотов, без side effects.
// Score собирается из четырёх слагаемых: дистанция до стопа, тренд PnL,
// время в сделке против ожидаемого горизонта, недавняя волатильность.
type Evaluator struct {
	cfg config.HealthConfig
}

func New(cfg *config.Config) *Evaluator {
	return &Evaluator{cfg: cfg.Health}
}

// Result — счёт, статус и предложенные алерты. Дедупликацию алертов
// делает леджер, тут только предложения.
type Result struct {
	Score  float64
	Health models.HealthStatus
	Alerts []models.PositionAlert
}

func (e *Evaluator) Evaluate(pos *models.TrackedPosition, history []models.MetricsSnapshot) Result {
	if len(history) < 2 {
		return Result{Score: pos.HealthScore, Health: models.HealthUnknown}
	}

	if n := e.cfg.Lookback; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}

	score := e.score(pos, history)

	res := Result{Score: score}
	switch {
	case score < e.cfg.CriticalBelow:
		res.Health = models.HealthCritical
		res.Alerts = append(res.Alerts, models.PositionAlert{
			PositionID: pos.PositionID,
			AlertType:  models.AlertCritical,
			Message:    fmt.Sprintf("health critical: score=%.2f roi=%.2f%%", score, pos.ROIPercent),
			Severity:   4,
		})
	case score < e.cfg.WarnBelow:
		res.Health = models.HealthWarning
		res.Alerts = append(res.Alerts, models.PositionAlert{
			PositionID: pos.PositionID,
			AlertType:  models.AlertWarning,
			Message:    fmt.Sprintf("health degraded: score=%.2f roi=%.2f%%", score, pos.ROIPercent),
			Severity:   2,
		})
	default:
		res.Health = models.HealthHealthy
	}
	return res
}

func (e *Evaluator) score(pos *models.TrackedPosition, history []models.MetricsSnapshot) float64 {
	w := e.cfg
	total := w.StopWeight + w.TrendWeight + w.TimeWeight + w.VolWeight
	if total <= 0 {
		return 0
	}

	s := w.StopWeight*e.stopTerm(pos) +
		w.TrendWeight*e.trendTerm(history) +
		w.TimeWeight*e.timeTerm(pos) +
		w.VolWeight*e.volTerm(history)
	return helper.Clamp01(s / total)
}

// stopTerm — дистанция до стопа как доля от "комфортной" дистанции.
// Цена на стопе или за ним — 0.
func (e *Evaluator) stopTerm(pos *models.TrackedPosition) float64 {
	if pos.EntryPrice <= 0 || pos.StopLoss <= 0 {
		return 0.5
	}

	dist := pos.CurrentPrice - pos.StopLoss
	if pos.Side == models.SideShort {
		dist = pos.StopLoss - pos.CurrentPrice
	}
	if dist <= 0 {
		return 0
	}
	distPct := dist / pos.EntryPrice * 100
	return helper.Clamp01(distPct / e.cfg.StopRefPct)
}

// trendTerm — наклон линейной регрессии ROI по снапшотам.
// Плоский тренд даёт 0.5, рост — выше, слив — ниже.
func (e *Evaluator) trendTerm(history []models.MetricsSnapshot) float64 {
	xs := make([]float64, len(history))
	ys := make([]float64, len(history))
	for i, h := range history {
		xs[i] = float64(i)
		ys[i] = h.ROIPercent
	}

	_, slope := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(slope) {
		return 0.5
	}
	return helper.Clamp01(0.5 + slope)
}

func (e *Evaluator) timeTerm(pos *models.TrackedPosition) float64 {
	if e.cfg.ExpectedHold <= 0 {
		return 1
	}
	frac := pos.HoldTime.Seconds() / e.cfg.ExpectedHold.Seconds()
	return 1 - helper.Clamp01(frac)
}

// volTerm — stddev лог-доходностей цены против нормировочной волатильности.
func (e *Evaluator) volTerm(history []models.MetricsSnapshot) float64 {
	rets := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev, cur := history[i-1].CurrentPrice, history[i].CurrentPrice
		if prev > 0 && cur > 0 {
			rets = append(rets, math.Log(cur/prev))
		}
	}
	if len(rets) < 2 {
		return 1
	}

	vol := stat.StdDev(rets, nil)
	if e.cfg.RefVolatility <= 0 || math.IsNaN(vol) {
		return 1
	}
	return 1 - helper.Clamp01(vol/e.cfg.RefVolatility)
}

// Volatility — та же оценка волатильности, для записи в снапшот.
func (e *Evaluator) Volatility(history []models.MetricsSnapshot) float64 {
	rets := make([]float64, 0, len(history))
	for i := 1; i < len(history); i++ {
		prev, cur := history[i-1].CurrentPrice, history[i].CurrentPrice
		if prev > 0 && cur > 0 {
			rets = append(rets, math.Log(cur/prev))
		}
	}
	if len(rets) < 2 {
		return 0
	}
	return stat.StdDev(rets, nil)
}
