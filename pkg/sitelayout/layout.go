// Package sitelayout places puncture-site targets on the hand images.
// Coordinates are percentages of the image width and height.
package sitelayout

import (
	"errors"
	"fmt"

	"github.com/medrex/glucose-tracker/pkg/sitecode"
)

// ErrUnknownFinger is returned for a finger index outside 1-5
var ErrUnknownFinger = errors.New("unknown finger")

// DefaultSideOffset is the horizontal shift, in percent, of a left or right side target
const DefaultSideOffset = 4.0

// Point is a position in percent coordinates
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Finger centers on the left hand image, thumb first. The right hand is the mirror image.
var leftHand = [sitecode.MaxFinger]Point{
	{X: 6, Y: 48},
	{X: 46, Y: 10},
	{X: 63, Y: 3},
	{X: 82, Y: 13},
	{X: 95, Y: 24},
}

// Layout holds the calibration used to place targets
type Layout struct {
	SideOffset float64
}

// New creates a layout with the given side offset
func New(sideOffset float64) *Layout {
	return &Layout{SideOffset: sideOffset}
}

// Default returns a layout using DefaultSideOffset
func Default() *Layout {
	return New(DefaultSideOffset)
}

// AnchorFor returns the center of a finger on the given hand
func (l *Layout) AnchorFor(hand sitecode.Hand, finger int) (Point, error) {
	if finger < sitecode.MinFinger || finger > sitecode.MaxFinger {
		return Point{}, fmt.Errorf("%w: %d", ErrUnknownFinger, finger)
	}

	p := leftHand[finger-1]
	switch hand {
	case sitecode.HandLeft:
		return p, nil
	case sitecode.HandRight:
		return Point{X: 100 - p.X, Y: p.Y}, nil
	}
	return Point{}, fmt.Errorf("%w: unknown hand %q", sitecode.ErrInvalidSite, byte(hand))
}

// OffsetFor returns the signed horizontal delta for a side
func (l *Layout) OffsetFor(side sitecode.Side) float64 {
	switch side {
	case sitecode.SideLeft:
		return -l.SideOffset
	case sitecode.SideRight:
		return l.SideOffset
	default:
		return 0
	}
}

// Position returns where the target for a site is drawn
func (l *Layout) Position(site sitecode.Site) (Point, error) {
	anchor, err := l.AnchorFor(site.Hand, site.Finger)
	if err != nil {
		return Point{}, err
	}
	anchor.X += l.OffsetFor(site.Side)
	return anchor, nil
}
