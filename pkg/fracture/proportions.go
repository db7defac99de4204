package fracture

import (
	gomath "math"
)

// proportionError measures how far chunk extents are from the target
// proportions, ignoring overall scale. Axes with a zero target or extent
// are skipped.
func proportionError(ext [3]float64, counts [3]int, target [3]float64) float64 {
	var diff []float64
	for a := 0; a < 3; a++ {
		if target[a] <= 0 || ext[a] <= 0 {
			continue
		}
		e := ext[a] / float64(counts[a]+1)
		diff = append(diff, gomath.Log(e)-gomath.Log(target[a]))
	}
	if len(diff) < 2 {
		return 0
	}
	var mean float64
	for _, d := range diff {
		mean += d
	}
	mean /= float64(len(diff))
	var sum float64
	for _, d := range diff {
		sum += (d - mean) * (d - mean)
	}
	return sum
}

// proportionedCounts searches split counts within one of the configured
// ones for chunks closest to the target proportions. Ties keep the
// configured counts.
func proportionedCounts(ext [3]float64, counts [3]int, target [3]float64) [3]int {
	best := counts
	bestErr := proportionError(ext, counts, target)
	var try [3]int
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				try = [3]int{counts[0] + dx, counts[1] + dy, counts[2] + dz}
				if try[0] < 0 || try[1] < 0 || try[2] < 0 {
					continue
				}
				if err := proportionError(ext, try, target); err < bestErr-1e-12 {
					best, bestErr = try, err
				}
			}
		}
	}
	return best
}
