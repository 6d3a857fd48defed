package service

import "math"

// softmax — численно устойчивый вариант: вычитаем максимум до экспоненты.
func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}

	exps := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		exps[i] = math.Exp(v - maxLogit)
		sum += exps[i]
	}

	probs := make([]float64, len(logits))
	for i, e := range exps {
		probs[i] = e / sum
	}
	return probs
}

func argmax(vs []float64) int {
	best := 0
	for i := 1; i < len(vs); i++ {
		if vs[i] > vs[best] {
			best = i
		}
	}
	return best
}
