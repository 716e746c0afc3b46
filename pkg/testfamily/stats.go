package testfamily

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"permclust/pkg/ndvar"
)

// Statistics work row by row over the cases × samples matrix so that every
// pass reads contiguous memory. Samples without variance get a statistic of 0.

func sign(signs []float64, i int) float64 {
	if signs == nil {
		return 1
	}
	return signs[i]
}

func source(order []int, i int) int {
	if order == nil {
		return i
	}
	return order[i]
}

// tOneSample writes the one-sample t of m, with case i multiplied by
// signs[i], into out.
func tOneSample(m ndvar.Matrix, signs []float64, out []float64) {
	n := float64(m.Rows)
	mean := make([]float64, m.Cols)
	ss := make([]float64, m.Cols)
	tmp := make([]float64, m.Cols)

	for i := 0; i < m.Rows; i++ {
		floats.AddScaled(mean, sign(signs, i), m.Row(i))
	}
	floats.Scale(1/n, mean)
	for i := 0; i < m.Rows; i++ {
		floats.ScaleTo(tmp, sign(signs, i), m.Row(i))
		floats.Sub(tmp, mean)
		floats.Mul(tmp, tmp)
		floats.Add(ss, tmp)
	}
	for j := range out {
		se := math.Sqrt(ss[j] / (n - 1) / n)
		if se == 0 {
			out[j] = 0
			continue
		}
		out[j] = mean[j] / se
	}
}

// tIndependent writes the pooled-variance t of group true minus group false.
// Row i takes the label of case order[i].
func tIndependent(m ndvar.Matrix, labels []bool, order []int, out []float64) {
	mean1 := make([]float64, m.Cols)
	mean0 := make([]float64, m.Cols)
	ss := make([]float64, m.Cols)
	tmp := make([]float64, m.Cols)

	var n1, n0 float64
	for i := 0; i < m.Rows; i++ {
		if labels[source(order, i)] {
			floats.Add(mean1, m.Row(i))
			n1++
		} else {
			floats.Add(mean0, m.Row(i))
			n0++
		}
	}
	floats.Scale(1/n1, mean1)
	floats.Scale(1/n0, mean0)
	for i := 0; i < m.Rows; i++ {
		mean := mean0
		if labels[source(order, i)] {
			mean = mean1
		}
		floats.SubTo(tmp, m.Row(i), mean)
		floats.Mul(tmp, tmp)
		floats.Add(ss, tmp)
	}

	scale := 1/n1 + 1/n0
	df := n1 + n0 - 2
	for j := range out {
		se := math.Sqrt(ss[j] / df * scale)
		if se == 0 {
			out[j] = 0
			continue
		}
		out[j] = (mean1[j] - mean0[j]) / se
	}
}

// pearson writes the correlation of every sample with x. Row i is paired
// with x[order[i]].
func pearson(m ndvar.Matrix, x []float64, order []int, out []float64) {
	xc := make([]float64, m.Rows)
	for i := range xc {
		xc[i] = x[source(order, i)]
	}
	floats.AddConst(-stat.Mean(xc, nil), xc)
	sxx := floats.Dot(xc, xc)

	mean := make([]float64, m.Cols)
	sxy := make([]float64, m.Cols)
	syy := make([]float64, m.Cols)
	tmp := make([]float64, m.Cols)
	for i := 0; i < m.Rows; i++ {
		floats.Add(mean, m.Row(i))
		// xc sums to zero, so the mean of y drops out of sxy
		floats.AddScaled(sxy, xc[i], m.Row(i))
	}
	floats.Scale(1/float64(m.Rows), mean)
	for i := 0; i < m.Rows; i++ {
		floats.SubTo(tmp, m.Row(i), mean)
		floats.Mul(tmp, tmp)
		floats.Add(syy, tmp)
	}
	for j := range out {
		d := math.Sqrt(sxx * syy[j])
		if d == 0 {
			out[j] = 0
			continue
		}
		out[j] = sxy[j] / d
	}
}

// fOneWay writes the one-way ANOVA F for k cells. Row i belongs to cell
// codes[order[i]].
func fOneWay(m ndvar.Matrix, codes []int, k int, order []int, out []float64) {
	means := make([][]float64, k)
	counts := make([]float64, k)
	for g := range means {
		means[g] = make([]float64, m.Cols)
	}
	grand := make([]float64, m.Cols)
	for i := 0; i < m.Rows; i++ {
		g := codes[source(order, i)]
		floats.Add(means[g], m.Row(i))
		floats.Add(grand, m.Row(i))
		counts[g]++
	}
	for g := range means {
		floats.Scale(1/counts[g], means[g])
	}
	floats.Scale(1/float64(m.Rows), grand)

	ssb := make([]float64, m.Cols)
	ssw := make([]float64, m.Cols)
	tmp := make([]float64, m.Cols)
	for g := range means {
		floats.SubTo(tmp, means[g], grand)
		floats.Mul(tmp, tmp)
		floats.AddScaled(ssb, counts[g], tmp)
	}
	for i := 0; i < m.Rows; i++ {
		floats.SubTo(tmp, m.Row(i), means[codes[source(order, i)]])
		floats.Mul(tmp, tmp)
		floats.Add(ssw, tmp)
	}

	dfb, dfw := float64(k-1), float64(m.Rows-k)
	for j := range out {
		if ssw[j] == 0 {
			out[j] = 0
			continue
		}
		out[j] = (ssb[j] / dfb) / (ssw[j] / dfw)
	}
}
