package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/sapiens-pipeline/internal/dataset"
)

func ds(name string, cols []string, rows ...[]string) *dataset.Dataset {
	return &dataset.Dataset{Name: name, Columns: cols, Rows: rows}
}

func linearDS() *dataset.Dataset {
	return ds("linear.csv", []string{"x", "y"},
		[]string{"1", "3"},
		[]string{"2", "5"},
		[]string{"3", "7"},
		[]string{"4", "9"},
		[]string{"5", "11"},
		[]string{"6", "13"},
	)
}

func TestDescribe(t *testing.T) {
	d := ds("grades.csv", []string{"score", "group"},
		[]string{"1", "a"},
		[]string{"2", "b"},
		[]string{"3", "a"},
		[]string{"4", "b"},
		[]string{"5", "a"},
	)

	out, err := Describe(d)
	require.NoError(t, err)
	require.Equal(t, "grades.csv", out.Dataset)
	require.Equal(t, 5, out.RowCount)
	require.Len(t, out.Columns, 1)

	col := out.Columns[0]
	assert.Equal(t, "score", col.Column)
	assert.Equal(t, 5, col.Count)
	assert.InDelta(t, 3.0, col.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(2.5), col.StdDev, 1e-9)
	assert.InDelta(t, 1.0, col.Min, 1e-9)
	assert.InDelta(t, 3.0, col.Median, 1e-9)
	assert.InDelta(t, 5.0, col.Max, 1e-9)

	require.Len(t, out.Categorical, 1)
	assert.Equal(t, "group", out.Categorical[0].Column)
	assert.Equal(t, map[string]int{"a": 3, "b": 2}, out.Categorical[0].Counts)
}

func TestDescribeDeterministic(t *testing.T) {
	d := linearDS()
	first, err := Describe(d)
	require.NoError(t, err)
	second, err := Describe(d)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDescribeErrors(t *testing.T) {
	_, err := Describe(ds("empty.csv", []string{"x"}))
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Describe(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Describe(ds("text.csv", []string{"name"},
		[]string{"alice"}, []string{"bob"}))
	assert.ErrorIs(t, err, ErrNonNumericInput)
}

func TestCorrelatePerfectLinear(t *testing.T) {
	out, err := Correlate(linearDS())
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, out.Columns)
	assert.InDelta(t, 1.0, out.Matrix[0][1], 1e-9)
	assert.InDelta(t, 1.0, out.Matrix[1][0], 1e-9)
	assert.InDelta(t, 1.0, out.Matrix[0][0], 1e-9)

	require.Len(t, out.Significant, 1)
	assert.Equal(t, "x", out.Significant[0].X)
	assert.Equal(t, "y", out.Significant[0].Y)
	assert.Equal(t, "very strong", out.Significant[0].Strength)
}

// gappyLinearDS holds y=2x+1 with missing cells staggered across the two
// columns, so only row-aligned pairing recovers the exact relationship.
func gappyLinearDS() *dataset.Dataset {
	return ds("gaps.csv", []string{"x", "y"},
		[]string{"1", "3"},
		[]string{"2", ""},
		[]string{"", "9"},
		[]string{"3", "7"},
		[]string{"4", "9"},
		[]string{"5", "11"},
	)
}

func TestCorrelateAlignsRowsWithMissingCells(t *testing.T) {
	out, err := Correlate(gappyLinearDS())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, out.Matrix[0][1], 1e-9)
	require.Len(t, out.Significant, 1)
	assert.Equal(t, "very strong", out.Significant[0].Strength)
}

func TestRegressSkipsIncompleteRows(t *testing.T) {
	out, err := Regress(gappyLinearDS())
	require.NoError(t, err)
	assert.InDelta(t, 2.0, out.Slope, 1e-9)
	assert.InDelta(t, 1.0, out.Intercept, 1e-9)
	assert.InDelta(t, 1.0, out.R2, 1e-9)
	assert.Equal(t, 4, out.Observations)
}

func TestCorrelationStrength(t *testing.T) {
	cases := []struct {
		r    float64
		want string
	}{
		{0.95, "very strong"},
		{-0.95, "very strong"},
		{0.75, "strong"},
		{0.55, "moderate"},
		{0.35, "weak"},
		{0.1, "very weak"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, correlationStrength(c.r), "r=%v", c.r)
	}
}

func TestCorrelateErrors(t *testing.T) {
	_, err := Correlate(ds("short.csv", []string{"x", "y"},
		[]string{"1", "2"}, []string{"2", "3"}))
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Correlate(ds("single.csv", []string{"x"},
		[]string{"1"}, []string{"2"}, []string{"3"}))
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Correlate(ds("text.csv", []string{"a", "b"},
		[]string{"x", "y"}, []string{"x", "y"}, []string{"x", "y"}))
	assert.ErrorIs(t, err, ErrNonNumericInput)
}

func TestTTestIdenticalColumns(t *testing.T) {
	d := ds("same.csv", []string{"a", "b"},
		[]string{"1", "1"},
		[]string{"2", "2"},
		[]string{"3", "3"},
		[]string{"4", "4"},
	)
	out, err := TTest(d, DefaultAlpha)
	require.NoError(t, err)
	require.Len(t, out.Tests, 1)
	assert.InDelta(t, 0.0, out.Tests[0].TStatistic, 1e-9)
	assert.InDelta(t, 1.0, out.Tests[0].PValue, 1e-9)
	assert.False(t, out.Tests[0].Significant)
}

func TestTTestSeparatedColumns(t *testing.T) {
	d := ds("sep.csv", []string{"low", "high"},
		[]string{"1.0", "10.0"},
		[]string{"1.1", "10.2"},
		[]string{"0.9", "9.8"},
		[]string{"1.05", "10.1"},
		[]string{"0.95", "9.9"},
	)
	out, err := TTest(d, DefaultAlpha)
	require.NoError(t, err)
	require.Len(t, out.Tests, 1)
	assert.Less(t, out.Tests[0].PValue, DefaultAlpha)
	assert.True(t, out.Tests[0].Significant)
}

func TestTTestInvalidAlphaFallsBack(t *testing.T) {
	out, err := TTest(linearDS(), -1)
	require.NoError(t, err)
	assert.Equal(t, DefaultAlpha, out.Alpha)
}

func TestRegressExactLine(t *testing.T) {
	out, err := Regress(linearDS())
	require.NoError(t, err)
	assert.Equal(t, "x", out.X)
	assert.Equal(t, "y", out.Y)
	assert.InDelta(t, 2.0, out.Slope, 1e-9)
	assert.InDelta(t, 1.0, out.Intercept, 1e-9)
	assert.InDelta(t, 1.0, out.R2, 1e-9)
	assert.InDelta(t, 0.0, out.MSE, 1e-9)
	assert.Equal(t, "excellent fit", out.Fit)
	assert.Equal(t, 6, out.Observations)
}

func TestRegressErrors(t *testing.T) {
	_, err := Regress(ds("short.csv", []string{"x", "y"},
		[]string{"1", "2"}, []string{"2", "4"}))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestFitInterpretation(t *testing.T) {
	cases := []struct {
		r2   float64
		want string
	}{
		{0.9, "excellent fit"},
		{0.7, "good fit"},
		{0.5, "moderate fit"},
		{0.1, "weak fit"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, fitInterpretation(c.r2), "r2=%v", c.r2)
	}
}
