// Copyright 2024 fragfeat Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package nmf implements masked cross-validation and hyperparameter search
// for non-negative matrix factorization of scan-window matrices.
package nmf

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"modernc.org/mathutil"

	"github.com/fragfeat/nmftune/base"
	"github.com/fragfeat/nmftune/model"
)

const (
	// SentinelError is reported for factorizations that cannot be attempted,
	// instead of propagating a failure.
	SentinelError = 1e6

	epsilon = 1e-12
)

// Solvers supported by Fit.
const (
	SolverMU = "mu" // multiplicative updates
	SolverCD = "cd" // column-wise coordinate descent (HALS)
)

// Initialization strategies.
const (
	InitRandom  = "random"
	InitNNDSVD  = "nndsvd"
	InitNNDSVDA = "nndsvda"
	InitCustom  = "custom"
)

// FitOptions are the knobs of a single factorization.
type FitOptions struct {
	NComponents int
	AlphaW      float64
	AlphaH      float64
	L1Ratio     float64
	MaxIter     int
	Solver      string
	Seed        int64
	Init        string
	WInit       *mat.Dense
	HInit       *mat.Dense
}

// DefaultFitOptions mirror the regularization defaults of the tuning configuration.
func DefaultFitOptions() FitOptions {
	return FitOptions{
		NComponents: 20,
		AlphaW:      0.00001,
		AlphaH:      0.0375,
		L1Ratio:     0.75,
		MaxIter:     500,
		Solver:      SolverMU,
		Seed:        42,
	}
}

// FromParams overwrites options with hyperparameters from a candidate set.
func (opts FitOptions) FromParams(params model.Params) FitOptions {
	opts.NComponents = params.GetInt(model.NComponents, opts.NComponents)
	opts.AlphaW = params.GetFloat64(model.AlphaW, opts.AlphaW)
	opts.AlphaH = params.GetFloat64(model.AlphaH, opts.AlphaH)
	opts.L1Ratio = params.GetFloat64(model.L1Ratio, opts.L1Ratio)
	opts.MaxIter = params.GetInt(model.MaxIter, opts.MaxIter)
	opts.Solver = params.GetString(model.Solver, opts.Solver)
	opts.Init = params.GetString(model.Init, opts.Init)
	opts.Seed = params.GetInt64(model.RandomState, opts.Seed)
	return opts
}

// ToParams exposes the option set as first-class hyperparameters.
func (opts FitOptions) ToParams() model.Params {
	return model.Params{
		model.NComponents: opts.NComponents,
		model.AlphaW:      opts.AlphaW,
		model.AlphaH:      opts.AlphaH,
		model.L1Ratio:     opts.L1Ratio,
		model.MaxIter:     opts.MaxIter,
		model.Solver:      opts.Solver,
		model.Init:        opts.Init,
		model.RandomState: opts.Seed,
	}
}

// FitResult is one fitted factorization: basis weights W (rows x k),
// component matrix H (k x cols), the training reconstruction error and the
// options the model was fitted with.
type FitResult struct {
	W                   *mat.Dense
	H                   *mat.Dense
	ReconstructionError float64
	Opts                FitOptions
}

// Reconstruct returns W x H. Degenerate all-zero factors reconstruct to an
// all-zero matrix.
func (r *FitResult) Reconstruct() *mat.Dense {
	rows, k := r.W.Dims()
	_, cols := r.H.Dims()
	if rows == 0 || cols == 0 || k == 0 {
		return newDense(rows, cols)
	}
	if r.Degenerate() {
		return newDense(rows, cols)
	}
	reconstructed := mat.NewDense(rows, cols, nil)
	reconstructed.Mul(r.W, r.H)
	return reconstructed
}

// Degenerate reports whether the fitted component matrix is all-zero.
func (r *FitResult) Degenerate() bool {
	return mat.Sum(r.H) == 0
}

// Fit factorizes a non-negative matrix into W x H. Inputs with a zero
// dimension, non-finite entries or a non-positive component count degrade to
// all-zero factors with SentinelError instead of failing, so one pathological
// window cannot abort a batch fit. The component count is clamped to the
// smaller matrix dimension.
func Fit(m *mat.Dense, opts FitOptions) *FitResult {
	rows, cols := m.Dims()
	k := mathutil.Max(1, mathutil.Min(rows, cols))
	if opts.NComponents > 0 {
		k = mathutil.Min(opts.NComponents, k)
	}
	if rows == 0 || cols == 0 || opts.NComponents <= 0 || !allFinite(m) {
		result := degenerateResult(rows, cols, k)
		result.Opts = opts
		return result
	}

	var w, h *mat.Dense
	switch initStrategy(opts) {
	case InitCustom:
		w = mat.DenseCopyOf(opts.WInit)
		h = mat.DenseCopyOf(opts.HInit)
	case InitNNDSVD:
		w, h = nndsvdInit(m, k, false)
	case InitNNDSVDA:
		w, h = nndsvdInit(m, k, true)
	default:
		w, h = randomInit(m, k, opts.Seed)
	}

	switch opts.Solver {
	case SolverCD:
		solveHALS(m, w, h, opts)
	default:
		solveMultiplicative(m, w, h, opts)
	}

	if !allFinite(w) || !allFinite(h) {
		result := degenerateResult(rows, cols, k)
		result.Opts = opts
		return result
	}
	return &FitResult{W: w, H: h, ReconstructionError: frobeniusDistance(m, w, h), Opts: opts}
}

// Transform computes non-negative weights for new rows against a fixed basis.
// A degenerate basis yields all-zero weights.
func Transform(m *mat.Dense, h *mat.Dense, opts FitOptions) *mat.Dense {
	rows, _ := m.Dims()
	k, _ := h.Dims()
	if rows == 0 || k == 0 || mat.Sum(h) == 0 || !allFinite(m) {
		return newDense(rows, k)
	}
	w, _ := randomInit(m, k, opts.Seed)
	// W-only multiplicative updates against the frozen basis.
	var numer, hht, denom mat.Dense
	hht.Mul(h, h.T())
	for iter := 0; iter < transformIterations(opts); iter++ {
		numer.Mul(m, h.T())
		denom.Mul(w, &hht)
		w.Apply(func(i, j int, v float64) float64 {
			return v * numer.At(i, j) / (denom.At(i, j) + epsilon)
		}, w)
	}
	if !allFinite(w) {
		return mat.NewDense(rows, k, nil)
	}
	return w
}

func transformIterations(opts FitOptions) int {
	if opts.MaxIter > 0 {
		return mathutil.Min(opts.MaxIter, 200)
	}
	return 200
}

func initStrategy(opts FitOptions) string {
	if opts.WInit != nil && opts.HInit != nil {
		return InitCustom
	}
	if opts.Init != "" {
		return opts.Init
	}
	// NNDSVD for coordinate descent, with zero back-filling for
	// multiplicative updates which cannot escape exact zeros.
	if opts.Solver == SolverCD {
		return InitNNDSVD
	}
	return InitNNDSVDA
}

func degenerateResult(rows, cols, k int) *FitResult {
	return &FitResult{
		W:                   newDense(rows, k),
		H:                   newDense(k, cols),
		ReconstructionError: SentinelError,
	}
}

// newDense builds an all-zero matrix, tolerating empty dimensions which
// mat.NewDense rejects.
func newDense(rows, cols int) *mat.Dense {
	if rows == 0 || cols == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(rows, cols, nil)
}

func randomInit(m *mat.Dense, k int, seed int64) (*mat.Dense, *mat.Dense) {
	rows, cols := m.Dims()
	rng := base.NewRandomGenerator(seed)
	scale := math.Sqrt(mat.Sum(m)/float64(rows*cols*k)) + epsilon
	w := mat.NewDense(rows, k, rng.UniformVector(rows*k, 0, scale))
	h := mat.NewDense(k, cols, rng.UniformVector(k*cols, 0, scale))
	return w, h
}

// nndsvdInit seeds the factors from the truncated SVD of m, keeping the
// dominant non-negative parts of each singular pair (Boutsidis & Gallopoulos
// 2008). With fill, exact zeros are replaced by the matrix mean.
func nndsvdInit(m *mat.Dense, k int, fill bool) (*mat.Dense, *mat.Dense) {
	rows, cols := m.Dims()
	w := mat.NewDense(rows, k, nil)
	h := mat.NewDense(k, cols, nil)

	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDThin) {
		return randomInit(m, k, 0)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	kEff := mathutil.Min(k, len(values))
	for p := 0; p < kEff; p++ {
		if p == 0 {
			scale := math.Sqrt(values[0])
			for i := 0; i < rows; i++ {
				w.Set(i, 0, scale*math.Abs(u.At(i, 0)))
			}
			for j := 0; j < cols; j++ {
				h.Set(0, j, scale*math.Abs(v.At(j, 0)))
			}
			continue
		}
		xp, xn := splitSigns(colVector(&u, p, rows))
		yp, yn := splitSigns(colVector(&v, p, cols))
		xpNorm, xnNorm := vectorNorm(xp), vectorNorm(xn)
		ypNorm, ynNorm := vectorNorm(yp), vectorNorm(yn)
		mp, mn := xpNorm*ypNorm, xnNorm*ynNorm
		var x, y []float64
		var sigma float64
		if mp >= mn {
			x, y, sigma = unitScale(xp, xpNorm), unitScale(yp, ypNorm), mp
		} else {
			x, y, sigma = unitScale(xn, xnNorm), unitScale(yn, ynNorm), mn
		}
		scale := math.Sqrt(values[p] * sigma)
		for i := 0; i < rows; i++ {
			w.Set(i, p, scale*x[i])
		}
		for j := 0; j < cols; j++ {
			h.Set(p, j, scale*y[j])
		}
	}

	if fill {
		mean := mat.Sum(m) / float64(rows*cols)
		fillZeros(w, mean)
		fillZeros(h, mean)
	}
	return w, h
}

// solveMultiplicative runs sklearn-style multiplicative updates for the
// Frobenius objective with L1/L2 regularization on both factors.
func solveMultiplicative(m, w, h *mat.Dense, opts FitOptions) {
	l1W := opts.AlphaW * opts.L1Ratio
	l2W := opts.AlphaW * (1 - opts.L1Ratio)
	l1H := opts.AlphaH * opts.L1Ratio
	l2H := opts.AlphaH * (1 - opts.L1Ratio)

	var numerW, hht, denomW mat.Dense
	var numerH, wtw, denomH mat.Dense
	for iter := 0; iter < opts.MaxIter; iter++ {
		// update W
		numerW.Mul(m, h.T())
		hht.Mul(h, h.T())
		denomW.Mul(w, &hht)
		w.Apply(func(i, j int, v float64) float64 {
			return v * numerW.At(i, j) / (denomW.At(i, j) + l1W + l2W*v + epsilon)
		}, w)
		// update H
		numerH.Mul(w.T(), m)
		wtw.Mul(w.T(), w)
		denomH.Mul(&wtw, h)
		h.Apply(func(i, j int, v float64) float64 {
			return v * numerH.At(i, j) / (denomH.At(i, j) + l1H + l2H*v + epsilon)
		}, h)
	}
}

// solveHALS runs hierarchical alternating least squares, updating one
// component column/row at a time with non-negative projection.
func solveHALS(m, w, h *mat.Dense, opts FitOptions) {
	rows, cols := m.Dims()
	k, _ := h.Dims()
	l1W := opts.AlphaW * opts.L1Ratio
	l2W := opts.AlphaW * (1 - opts.L1Ratio)
	l1H := opts.AlphaH * opts.L1Ratio
	l2H := opts.AlphaH * (1 - opts.L1Ratio)

	var residual mat.Dense
	for iter := 0; iter < opts.MaxIter; iter++ {
		residual.Mul(w, h)
		residual.Sub(m, &residual)
		for p := 0; p < k; p++ {
			// add the rank-one contribution of component p back in
			for i := 0; i < rows; i++ {
				for j := 0; j < cols; j++ {
					residual.Set(i, j, residual.At(i, j)+w.At(i, p)*h.At(p, j))
				}
			}
			hNorm := 0.0
			for j := 0; j < cols; j++ {
				hNorm += h.At(p, j) * h.At(p, j)
			}
			for i := 0; i < rows; i++ {
				numer := 0.0
				for j := 0; j < cols; j++ {
					numer += residual.At(i, j) * h.At(p, j)
				}
				w.Set(i, p, math.Max(0, (numer-l1W)/(hNorm+l2W+epsilon)))
			}
			wNorm := 0.0
			for i := 0; i < rows; i++ {
				wNorm += w.At(i, p) * w.At(i, p)
			}
			for j := 0; j < cols; j++ {
				numer := 0.0
				for i := 0; i < rows; i++ {
					numer += residual.At(i, j) * w.At(i, p)
				}
				h.Set(p, j, math.Max(0, (numer-l1H)/(wNorm+l2H+epsilon)))
			}
			// remove the refreshed contribution
			for i := 0; i < rows; i++ {
				for j := 0; j < cols; j++ {
					residual.Set(i, j, residual.At(i, j)-w.At(i, p)*h.At(p, j))
				}
			}
		}
	}
}

func frobeniusDistance(m, w, h *mat.Dense) float64 {
	var reconstructed mat.Dense
	reconstructed.Mul(w, h)
	reconstructed.Sub(m, &reconstructed)
	return mat.Norm(&reconstructed, 2)
}

func allFinite(m *mat.Dense) bool {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if math.IsNaN(m.At(i, j)) || math.IsInf(m.At(i, j), 0) {
				return false
			}
		}
	}
	return true
}

func colVector(m *mat.Dense, col, n int) []float64 {
	v := make([]float64, n)
	for i := 0; i < n; i++ {
		v[i] = m.At(i, col)
	}
	return v
}

func splitSigns(x []float64) (pos, neg []float64) {
	pos = make([]float64, len(x))
	neg = make([]float64, len(x))
	for i, v := range x {
		if v > 0 {
			pos[i] = v
		} else {
			neg[i] = -v
		}
	}
	return pos, neg
}

func vectorNorm(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func unitScale(x []float64, norm float64) []float64 {
	scaled := make([]float64, len(x))
	if norm == 0 {
		return scaled
	}
	for i, v := range x {
		scaled[i] = v / norm
	}
	return scaled
}

func fillZeros(m *mat.Dense, value float64) {
	m.Apply(func(_, _ int, v float64) float64 {
		if v == 0 {
			return value
		}
		return v
	}, m)
}
