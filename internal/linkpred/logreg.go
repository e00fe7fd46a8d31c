package linkpred

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// LogisticRegression is an L2-regularized binary classifier fitted with
// L-BFGS. C is the inverse regularization strength; the intercept is not
// penalized.
type LogisticRegression struct {
	C            float64
	MaxIter      int
	FitIntercept bool

	Coef      []float64
	Intercept float64
}

func softplus(x float64) float64 {
	return math.Max(x, 0) + math.Log1p(math.Exp(-math.Abs(x)))
}

func logistic(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Fit estimates coefficients from rows of X and 0/1 labels y.
func (lr *LogisticRegression) Fit(X mat.Matrix, y []float64) error {
	rows, cols := X.Dims()
	if rows != len(y) {
		return fmt.Errorf("%d samples for %d labels", rows, len(y))
	}
	var pos int
	for _, v := range y {
		if v == 1 {
			pos++
		}
	}
	if pos == 0 || pos == len(y) {
		return ErrEmptyClass
	}

	xs := make([][]float64, rows)
	for i := range xs {
		xs[i] = mat.Row(nil, i, X)
	}

	// Parameters are the coefficients followed by the intercept.
	z := make([]float64, rows)
	scores := func(params []float64) {
		w, b := params[:cols], params[cols]
		for i, row := range xs {
			z[i] = floats.Dot(w, row) + b
		}
	}

	problem := optimize.Problem{
		Func: func(params []float64) float64 {
			scores(params)
			var loss float64
			for i := range z {
				loss += softplus(z[i]) - y[i]*z[i]
			}
			w := params[:cols]
			return lr.C*loss + 0.5*floats.Dot(w, w)
		},
		Grad: func(grad, params []float64) {
			scores(params)
			for i := range grad {
				grad[i] = 0
			}
			for i, row := range xs {
				r := lr.C * (logistic(z[i]) - y[i])
				floats.AddScaled(grad[:cols], r, row)
				if lr.FitIntercept {
					grad[cols] += r
				}
			}
			floats.Add(grad[:cols], params[:cols])
		},
	}

	settings := &optimize.Settings{
		MajorIterations:   lr.MaxIter,
		GradientThreshold: 1e-4,
	}
	x0 := make([]float64, cols+1)
	result, err := optimize.Minimize(problem, x0, settings, &optimize.LBFGS{})
	if result == nil {
		return fmt.Errorf("fitting logistic regression: %w", err)
	}

	lr.Coef = append([]float64(nil), result.X[:cols]...)
	lr.Intercept = 0
	if lr.FitIntercept {
		lr.Intercept = result.X[cols]
	}
	return nil
}

// PredictProba returns the probability of class 1 for every row of X.
func (lr *LogisticRegression) PredictProba(X mat.Matrix) ([]float64, error) {
	rows, cols := X.Dims()
	if cols != len(lr.Coef) {
		return nil, fmt.Errorf("model has %d features, input has %d", len(lr.Coef), cols)
	}
	out := make([]float64, rows)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		out[i] = logistic(floats.Dot(lr.Coef, row) + lr.Intercept)
	}
	return out, nil
}
