package corsac

// Budget fitting. One probe encode at the content-driven base quality, then a
// bounded bisection between the search floor and the base. The bisection
// bracket is warm-started from the target bits-per-pixel, which usually lands
// the first midpoint within one step of the answer.

// encodeAttempt runs one encode of the prepared surface at a quality.
type encodeAttempt func(quality float64) ([]byte, error)

// budgetOutcome is what fitBudget settled on.
type budgetOutcome struct {
	data     []byte
	quality  float64
	attempts int
}

// baseQualityFor biases the default high quality by content complexity: busy
// surfaces tolerate more compression headroom, flat ones need less.
func baseQualityFor(complexity float64) float64 {
	q := DefaultQualityHigh + (complexity-0.5)*0.1
	if q < DefaultQualityMin {
		q = DefaultQualityMin
	}
	if q > DefaultQualityMax {
		q = DefaultQualityMax
	}
	return q
}

func (c *Config) baseQuality(complexity float64) float64 {
	q := c.QualityHigh + (complexity-0.5)*0.1
	if q < c.QualityMin {
		q = c.QualityMin
	}
	if q > c.QualityMax {
		q = c.QualityMax
	}
	return q
}

// bppBracket narrows the initial search interval from the budget expressed as
// bits per pixel. Brackets are heuristic starting points, never hard bounds:
// the bisection still converges when the guess is wrong.
func bppBracket(budget, pixels int64, lo, hi float64) (float64, float64) {
	if pixels <= 0 {
		return lo, hi
	}
	bpp := float64(budget*8) / float64(pixels)
	switch {
	case bpp < 0.5:
		hi = min(hi, 0.40)
	case bpp < 1.0:
		hi = min(hi, 0.70)
	case bpp > 4.0:
		lo = max(lo, 0.60)
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

// fitBudget drives encode attempts toward a byte budget.
//
// Budget 0 disables the search: a single encode at base quality. A lossless
// format also gets a single encode, since quality does not move its size.
// Otherwise the first attempt probes the base quality, and when it misses the
// budget by more than the tolerance, up to maxSearchAttempts bisection steps
// hunt for the highest quality that fits. The fallback order is: best attempt
// within budget, else the smallest attempt seen.
func fitBudget(cfg *Config, encode encodeAttempt, pixels, budget int64, complexity float64, lossless bool) (budgetOutcome, error) {
	base := cfg.baseQuality(complexity)

	first, err := encode(base)
	if err != nil {
		return budgetOutcome{}, err
	}
	out := budgetOutcome{data: first, quality: base, attempts: 1}

	if budget <= 0 || lossless {
		return out, nil
	}

	tol := int64(float64(budget) * cfg.BudgetTolerance)
	if int64(len(first)) <= budget+tol {
		return out, nil
	}

	// Base quality overshot. Bisect downward for the largest quality that
	// lands inside the budget.
	lo, hi := bppBracket(budget, pixels, cfg.QualitySearchFloor, base)

	bestFit := budgetOutcome{}
	smallest := out

	for i := 0; i < maxSearchAttempts; i++ {
		mid := (lo + hi) / 2
		data, err := encode(mid)
		if err != nil {
			return budgetOutcome{}, err
		}
		out.attempts++
		size := int64(len(data))

		if size < int64(len(smallest.data)) {
			smallest = budgetOutcome{data: data, quality: mid}
		}
		if size <= budget {
			if bestFit.data == nil || size > int64(len(bestFit.data)) {
				bestFit = budgetOutcome{data: data, quality: mid}
			}
			if budget-size <= tol {
				return budgetOutcome{data: data, quality: mid, attempts: out.attempts}, nil
			}
			lo = mid
		} else {
			if size-budget <= tol {
				return budgetOutcome{data: data, quality: mid, attempts: out.attempts}, nil
			}
			hi = mid
		}
	}

	if bestFit.data != nil {
		bestFit.attempts = out.attempts
		return bestFit, nil
	}
	smallest.attempts = out.attempts
	return smallest, nil
}
