// Copyright 2021-2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package portfolio

import (
	"errors"
	"math"
)

var (
	ErrDidNotConverge = errors.New("did not converge")
	ErrNoBracket      = errors.New("function does not change sign over the interval")
)

type objectiveFunc func(float64) float64

// fsolve finds a root of f in [lo, hi] with a mix of bisection and false
// position. f(lo) and f(hi) must have opposite signs. The bracket is kept on
// every step so the search always converges.
func fsolve(f objectiveFunc, lo, hi float64) (float64, error) {
	// false position steps use the Anderson-Bjorck modification when they stall
	const (
		maxIterations = 500
		bisectIter    = 4
		bisectWidth   = 1.0
	)

	const (
		bisect = iota + 1
		falseP
	)

	var state uint8 = falseP
	gamma := 1.0
	tol := 1e-9
	x1 := lo
	x2 := hi

	f1 := f(x1)
	f2 := f(x2)
	switch {
	case f1 == 0:
		return x1, nil
	case f2 == 0:
		return x2, nil
	case math.IsNaN(f1) || math.IsNaN(f2) || f1*f2 > 0:
		return math.NaN(), ErrNoBracket
	}

	w := math.Abs(x2 - x1)
	lastBisectWidth := w

	var nFalseP int
	var x3, f3 float64
	for i := 0; i < maxIterations; i++ {
		switch state {
		case bisect:
			x3 = 0.5 * (x1 + x2)
			if x3 == x1 || x3 == x2 {
				// x1 and x2 are adjacent floats
				return x3, nil
			}

			f3 = f(x3)
			if f3 == 0 {
				return x3, nil
			}

			if f3*f2 < 0 {
				x1 = x2
				f1 = f2
			}
			x2 = x3
			f2 = f3
			w = math.Abs(x2 - x1)
			lastBisectWidth = w
			gamma = 1.0
			nFalseP = 0
			state = falseP
		case falseP:
			s12 := (f2 - gamma*f1) / (x2 - x1)
			x3 = x2 - f2/s12
			f3 = f(x3)
			if f3 == 0 {
				return x3, nil
			}

			nFalseP++
			if f3*f2 < 0 {
				gamma = 1.0
				x1 = x2
				f1 = f2
			} else {
				// Anderson-Bjorck method
				g := 1.0 - f3/f2
				if g <= 0 {
					g = 0.5
				}
				gamma *= g
			}
			x2 = x3
			f2 = f3
			w = math.Abs(x2 - x1)

			// fall back to bisection when false position stops shrinking the interval
			if nFalseP > bisectIter {
				if w*bisectWidth > lastBisectWidth {
					state = bisect
				}
				nFalseP = 0
				lastBisectWidth = w
			}
		}

		if w <= tol {
			if math.Abs(f1) < math.Abs(f2) {
				return x1, nil
			}
			return x2, nil
		}
	}

	return math.NaN(), ErrDidNotConverge
}
