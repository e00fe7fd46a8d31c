package visual

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/Benny93/ontolink-go/internal/embeddings"
	"github.com/Benny93/ontolink-go/internal/layout"
	"github.com/Benny93/ontolink-go/internal/similarity"
)

func testIndex(t *testing.T) *similarity.Index {
	t.Helper()
	kv, err := embeddings.NewKeyedVectors(
		[]string{"0", "1", "2"},
		mat.NewDense(3, 2, []float64{1, 0, 0.9, 0.1, 0, 1}),
	)
	require.NoError(t, err)
	dict, err := similarity.ReadDictionary(strings.NewReader("fever@symptom;0\nhigh  fever\t@symptom;1\nvirus;2\n"))
	require.NoError(t, err)
	return similarity.NewIndex(kv, dict)
}

func TestLoadPoints(t *testing.T) {
	t.Parallel()

	coords := []layout.Point{
		{Name: "fever@symptom", X: 1, Y: 2},
		{Name: "high  fever\t@symptom", X: 3, Y: 4},
		{Name: "virus", X: 5, Y: 6},
	}
	clusters := []layout.Assignment{{Name: "fever@symptom", Cluster: 4}, {Name: "x", Cluster: 1}}

	points, err := LoadPoints(coords, clusters, testIndex(t), 1)
	require.NoError(t, err)
	require.Len(t, points, 2, "rows are zipped to the shorter input")

	assert.Equal(t, "fever", points[0].Name)
	assert.Equal(t, "symptom", points[0].Category)
	assert.Equal(t, 4, points[0].Cluster)
	assert.Equal(t, "high fever ", points[1].Name)
	assert.Equal(t, "high  fever\t", points[0].Top)
	assert.Equal(t, 3.0, points[1].X)
	assert.NotEqual(t, points[0].Color, points[1].Color)

	t.Run("NoCategory", func(t *testing.T) {
		t.Parallel()
		points, err := LoadPoints(coords[2:], clusters[:1], testIndex(t), 2)
		require.NoError(t, err)
		assert.Equal(t, "NA", points[0].Category)
		assert.Equal(t, "virus", points[0].Name)
	})

	t.Run("UnknownNameHasEmptyTopList", func(t *testing.T) {
		t.Parallel()
		points, err := LoadPoints([]layout.Point{{Name: "nobody"}}, clusters[:1], testIndex(t), 10)
		require.NoError(t, err)
		assert.Equal(t, "", points[0].Top)
	})
}

func TestColorize(t *testing.T) {
	t.Parallel()

	points := []Point{{Cluster: 7}, {Cluster: 2}, {Cluster: 7}, {Cluster: 0}}
	colorize(points)

	palette := Magma(4)
	assert.Equal(t, palette[0], points[0].Color)
	assert.Equal(t, palette[1], points[1].Color)
	assert.Equal(t, palette[0], points[2].Color)
	assert.Equal(t, palette[2], points[3].Color)
}

func TestMagma(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Magma(0))
	assert.Equal(t, []string{"#000004"}, Magma(1))

	p := Magma(9)
	require.Len(t, p, 9)
	assert.Equal(t, "#000004", p[0])
	assert.Equal(t, "#b5367a", p[4])
	assert.Equal(t, "#fcfdbf", p[8])
	for _, c := range Magma(20) {
		assert.Regexp(t, `^#[0-9a-f]{6}$`, c)
	}
}

func TestRenderPlot(t *testing.T) {
	t.Parallel()

	points := []Point{
		{Name: "a<b", Category: "x", X: 0, Y: 0, Top: "c, d", Color: "#000004"},
		{Name: "e", Category: "NA", X: 10, Y: 10, Color: "#fcfdbf"},
	}
	opts := DefaultPlotOptions()
	opts.Title = "Concepts & Co"

	var buf bytes.Buffer
	require.NoError(t, RenderPlot(context.Background(), &buf, points, opts))
	html := buf.String()

	assert.Contains(t, html, "<h1 class=\"plot-title\">Concepts &amp; Co</h1>")
	assert.Contains(t, html, "font-style:italic")
	assert.Contains(t, html, "font-size:16pt")
	assert.Equal(t, 2, strings.Count(html, "<circle "))
	assert.Contains(t, html, `data-name="a&lt;b"`)
	assert.Contains(t, html, `fill-opacity="0.8"`)
	assert.Contains(t, html, `r="4.5"`)
	// First point maps to the lower left, second to the upper right.
	assert.Contains(t, html, `cx="20" cy="280"`)
	assert.Contains(t, html, `cx="1180" cy="20"`)
	for _, tool := range []string{"wheel", "pan", "box", "reset", "save"} {
		assert.Contains(t, html, `data-tool="`+tool+`"`)
	}
}

func TestProjectionDegenerate(t *testing.T) {
	t.Parallel()

	project := projection([]Point{{X: 3, Y: 3}, {X: 3, Y: 3}}, 100, 50)
	x, y := project(Point{X: 3, Y: 3})
	assert.Equal(t, 50.0, x)
	assert.Equal(t, 25.0, y)
}

func TestRenderSearch(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, RenderSearch(context.Background(), &buf, []Point{
		{Name: "fever", Top: "cough, \"flu\""},
		{Name: "virus"},
	}))
	html := buf.String()

	assert.Contains(t, html, `<option value="fever" name="fever" text="cough, &#34;flu&#34;">fever</option>`)
	assert.Contains(t, html, `<option value="virus" name="virus" text="">virus</option>`)
	assert.Contains(t, html, "jquery/3.4.1")
	assert.Contains(t, html, "bootstrap/4.4.1")
	assert.Contains(t, html, "sweetalert2@9")
	assert.Contains(t, html, `placeholder: "Select an entity"`)
	assert.Contains(t, html, `confirmButtonText: "Cool"`)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRenderWriteError(t *testing.T) {
	t.Parallel()

	assert.Error(t, RenderSearch(context.Background(), failingWriter{}, nil))
	assert.Error(t, RenderPlot(context.Background(), failingWriter{}, nil, DefaultPlotOptions()))
}

func TestRenderEscapesPointFields(t *testing.T) {
	t.Parallel()

	hostile := Point{
		Name:     `x"><script>alert(1)</script>`,
		Category: `a&b`,
		Top:      `<b>`,
		Color:    `#000004" onload="x`,
	}

	var plot, search bytes.Buffer
	require.NoError(t, RenderPlot(context.Background(), &plot, []Point{hostile}, DefaultPlotOptions()))
	require.NoError(t, RenderSearch(context.Background(), &search, []Point{hostile}))

	for name, html := range map[string]string{"plot": plot.String(), "search": search.String()} {
		assert.NotContains(t, html, "<script>alert(1)", name)
		assert.Contains(t, html, `x&#34;&gt;&lt;script&gt;alert(1)&lt;/script&gt;`, name)
	}
	assert.Contains(t, plot.String(), `data-category="a&amp;b"`)
	assert.Contains(t, plot.String(), `data-top="&lt;b&gt;"`)
	assert.Contains(t, plot.String(), `fill="#000004&#34; onload=&#34;x"`)
	assert.Contains(t, plot.String(), `viewBox="0 0 1200 300"`)
}

func TestRenderCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	assert.ErrorIs(t, RenderPlot(ctx, &buf, nil, DefaultPlotOptions()), context.Canceled)
	assert.ErrorIs(t, RenderSearch(ctx, &buf, nil), context.Canceled)
	assert.Zero(t, buf.Len())
}
