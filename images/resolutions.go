package images

import (
	"fmt"
	"math"
	"sort"
)

// AspectRatio represents a camera aspect ratio by name (e.g., "16:9").
type AspectRatio string

const (
	AspectRatio169 AspectRatio = "16:9"
	AspectRatio43  AspectRatio = "4:3"
	AspectRatio54  AspectRatio = "5:4"
)

// ResolutionType is the common name of a camera resolution.
type ResolutionType string

const (
	ResolutionTypeQVGA     ResolutionType = "QVGA"
	ResolutionTypeVGA      ResolutionType = "VGA"
	ResolutionTypeHD720p   ResolutionType = "HD 720p"
	ResolutionType1MP54    ResolutionType = "1MP (5:4)"
	ResolutionTypeFHD1080p ResolutionType = "Full HD 1080p"
	ResolutionType3MP43    ResolutionType = "3MP (4:3)"
	ResolutionTypeQHD1440p ResolutionType = "QHD 1440p"
	ResolutionType4KUHD    ResolutionType = "4K UHD"
)

// Resolution is a source frame size a detector is commonly fed with.
type Resolution struct {
	Name        ResolutionType `json:"name" yaml:"name"`
	AspectRatio AspectRatio    `json:"aspectRatio" yaml:"aspectRatio"`
	Pixels      Dimensions     `json:"pixels" yaml:"pixels"`
}

// MegaPixels returns the pixel count in megapixels, rounded to two decimals.
func (r Resolution) MegaPixels() float64 {
	if r.Pixels.Width <= 0 || r.Pixels.Height <= 0 {
		return 0.0
	}
	mp := float64(r.Pixels.Width*r.Pixels.Height) / 1_000_000.0

	return math.Round(mp*100) / 100
}

// String returns a human-readable summary of the resolution.
func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Name, r.Pixels.Width, r.Pixels.Height, r.MegaPixels())
}

var resolutions = map[ResolutionType]Resolution{
	ResolutionTypeQVGA:     {Name: ResolutionTypeQVGA, AspectRatio: AspectRatio43, Pixels: Dimensions{Width: 320, Height: 240}},
	ResolutionTypeVGA:      {Name: ResolutionTypeVGA, AspectRatio: AspectRatio43, Pixels: Dimensions{Width: 640, Height: 480}},
	ResolutionTypeHD720p:   {Name: ResolutionTypeHD720p, AspectRatio: AspectRatio169, Pixels: Dimensions{Width: 1280, Height: 720}},
	ResolutionType1MP54:    {Name: ResolutionType1MP54, AspectRatio: AspectRatio54, Pixels: Dimensions{Width: 1280, Height: 1024}},
	ResolutionTypeFHD1080p: {Name: ResolutionTypeFHD1080p, AspectRatio: AspectRatio169, Pixels: Dimensions{Width: 1920, Height: 1080}},
	ResolutionType3MP43:    {Name: ResolutionType3MP43, AspectRatio: AspectRatio43, Pixels: Dimensions{Width: 2048, Height: 1536}},
	ResolutionTypeQHD1440p: {Name: ResolutionTypeQHD1440p, AspectRatio: AspectRatio169, Pixels: Dimensions{Width: 2560, Height: 1440}},
	ResolutionType4KUHD:    {Name: ResolutionType4KUHD, AspectRatio: AspectRatio169, Pixels: Dimensions{Width: 3840, Height: 2160}},
}

// Resolutions returns every known resolution, smallest first.
func Resolutions() []Resolution {
	all := make([]Resolution, 0, len(resolutions))
	for _, res := range resolutions {
		all = append(all, res)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Pixels.Width*all[i].Pixels.Height < all[j].Pixels.Width*all[j].Pixels.Height
	})

	return all
}

// ResolutionByType looks a resolution up by name.
func ResolutionByType(t ResolutionType) (Resolution, bool) {
	res, ok := resolutions[t]
	return res, ok
}

// HighestResolutionUnder returns the largest resolution that fits inside width x height.
//
// Arguments:
//   - width: The maximum width.
//   - height: The maximum height.
//
// Returns:
//   - Resolution: The largest fitting resolution.
//   - bool: False if none fits.
func HighestResolutionUnder(width, height int) (Resolution, bool) {
	var highest Resolution
	var found bool

	for _, res := range resolutions {
		if res.Pixels.Width <= width && res.Pixels.Height <= height {
			if !found || res.MegaPixels() > highest.MegaPixels() {
				highest = res
				found = true
			}
		}
	}

	return highest, found
}
