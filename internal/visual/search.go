package visual

import (
	"context"
	"io"
)

// RenderSearch writes search.html.
func RenderSearch(ctx context.Context, w io.Writer, points []Point) error {
	return Search(points).Render(ctx, w)
}
