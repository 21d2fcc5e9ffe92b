// Package sitecode encodes puncture sites (hand, finger, side) as compact
// three character codes such as "L3R" and decodes them back.
package sitecode

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

var (
	// ErrInvalidSite is returned when encoding a site outside the valid domain
	ErrInvalidSite = errors.New("invalid puncture site")

	// ErrMalformedCode is returned when a code cannot be decoded
	ErrMalformedCode = errors.New("malformed site code")
)

// Hand identifies the left or right hand
type Hand byte

const (
	HandLeft  Hand = 'L'
	HandRight Hand = 'R'
)

// Side identifies where on the fingertip the puncture was made
type Side byte

const (
	SideLeft   Side = 'L'
	SideCenter Side = 'C'
	SideRight  Side = 'R'
)

const (
	MinFinger = 1
	MaxFinger = 5
)

var (
	hands        = []Hand{HandLeft, HandRight}
	allSides     = []Side{SideLeft, SideCenter, SideRight}
	lateralSides = []Side{SideLeft, SideRight}
)

// Site is the structural form of a site code
type Site struct {
	Hand   Hand
	Finger int
	Side   Side
}

// Valid reports whether the hand is known
func (h Hand) Valid() bool {
	return h == HandLeft || h == HandRight
}

func (h Hand) String() string {
	switch h {
	case HandLeft:
		return "left"
	case HandRight:
		return "right"
	}
	return fmt.Sprintf("hand(%q)", byte(h))
}

// Valid reports whether the side is known
func (s Side) Valid() bool {
	return s == SideLeft || s == SideCenter || s == SideRight
}

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideCenter:
		return "center"
	case SideRight:
		return "right"
	}
	return fmt.Sprintf("side(%q)", byte(s))
}

// Encode builds the canonical code for a hand, finger and side
func Encode(hand Hand, finger int, side Side) (string, error) {
	if finger < MinFinger || finger > MaxFinger {
		return "", fmt.Errorf("%w: finger %d out of range %d-%d", ErrInvalidSite, finger, MinFinger, MaxFinger)
	}
	if !hand.Valid() {
		return "", fmt.Errorf("%w: unknown hand %q", ErrInvalidSite, byte(hand))
	}
	if !side.Valid() {
		return "", fmt.Errorf("%w: unknown side %q", ErrInvalidSite, byte(side))
	}

	return string([]byte{byte(hand), byte('0' + finger), byte(side)}), nil
}

// Decode parses a code such as "R5L". Codes are case sensitive.
func Decode(code string) (Site, error) {
	if len(code) != 3 {
		return Site{}, fmt.Errorf("%w: %q must be 3 characters", ErrMalformedCode, code)
	}

	hand := Hand(code[0])
	if !hand.Valid() {
		return Site{}, fmt.Errorf("%w: %q has unknown hand letter", ErrMalformedCode, code)
	}

	if code[1] < '0'+MinFinger || code[1] > '0'+MaxFinger {
		return Site{}, fmt.Errorf("%w: %q has finger outside %d-%d", ErrMalformedCode, code, MinFinger, MaxFinger)
	}

	side := Side(code[2])
	if !side.Valid() {
		return Site{}, fmt.Errorf("%w: %q has unknown side letter", ErrMalformedCode, code)
	}

	return Site{Hand: hand, Finger: int(code[1] - '0'), Side: side}, nil
}

// Code returns the canonical code of the site
func (s Site) Code() (string, error) {
	return Encode(s.Hand, s.Finger, s.Side)
}

// String returns the code, or a diagnostic form for an invalid site
func (s Site) String() string {
	code, err := s.Code()
	if err != nil {
		return fmt.Sprintf("invalid(%c%d%c)", s.Hand, s.Finger, s.Side)
	}
	return code
}

// Lateral reports whether the site uses a side newer producers emit
func (s Site) Lateral() bool {
	return s.Side == SideLeft || s.Side == SideRight
}

// All yields every valid site: hand outer, finger middle, side inner.
// Display code relies on this order.
func All() iter.Seq[Site] {
	return sequence(allSides)
}

// Lateral yields the Left/Right-only sites in the same order as All
func Lateral() iter.Seq[Site] {
	return sequence(lateralSides)
}

// AllCodes returns a fresh slice of all 30 codes in All order
func AllCodes() []string {
	return collect(All())
}

// LateralCodes returns a fresh slice of the 20 codes producers emit
func LateralCodes() []string {
	return collect(Lateral())
}

func sequence(sides []Side) iter.Seq[Site] {
	return func(yield func(Site) bool) {
		for _, h := range hands {
			for f := MinFinger; f <= MaxFinger; f++ {
				for _, s := range sides {
					if !yield(Site{Hand: h, Finger: f, Side: s}) {
						return
					}
				}
			}
		}
	}
}

func collect(seq iter.Seq[Site]) []string {
	var codes []string
	for site := range seq {
		codes = append(codes, site.String())
	}
	return codes
}

// ParseHand accepts "left", "right", "l" or "r" in any case
func ParseHand(name string) (Hand, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "l", "left":
		return HandLeft, nil
	case "r", "right":
		return HandRight, nil
	}
	return 0, fmt.Errorf("%w: unknown hand %q", ErrInvalidSite, name)
}

// ParseSide accepts "left", "center", "right" or their initials in any case
func ParseSide(name string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "l", "left":
		return SideLeft, nil
	case "c", "center", "centre":
		return SideCenter, nil
	case "r", "right":
		return SideRight, nil
	}
	return 0, fmt.Errorf("%w: unknown side %q", ErrInvalidSite, name)
}

// MarshalText encodes the site as its code
func (s Site) MarshalText() ([]byte, error) {
	code, err := s.Code()
	if err != nil {
		return nil, err
	}
	return []byte(code), nil
}

// UnmarshalText decodes a site code
func (s *Site) UnmarshalText(text []byte) error {
	site, err := Decode(string(text))
	if err != nil {
		return err
	}
	*s = site
	return nil
}
