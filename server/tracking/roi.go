package tracking

import (
	"errors"
	"fmt"

	"github.com/cyclopcam/idlewatch/pkg/nn"
)

var ErrInvalidROI = errors.New("Invalid ROI")

// ROI restricts where a person can be considered idle
type ROI struct {
	Enabled bool       `json:"enabled"`
	Polygon nn.Polygon `json:"polygon"`
}

// An enabled ROI needs at least 3 points. A disabled ROI may have any number of points.
func (r *ROI) Validate() error {
	if r.Enabled && len(r.Polygon) < 3 {
		return fmt.Errorf("%w: an enabled ROI needs at least 3 points, but %v were given", ErrInvalidROI, len(r.Polygon))
	}
	return nil
}

// Contains is true if the ROI is disabled, or pt is inside the polygon (edges included)
func (r *ROI) Contains(pt nn.Point) bool {
	if !r.Enabled {
		return true
	}
	return r.Polygon.Contains(pt)
}

func (r ROI) Clone() ROI {
	c := ROI{Enabled: r.Enabled}
	if r.Polygon != nil {
		c.Polygon = append(nn.Polygon{}, r.Polygon...)
	}
	return c
}
