package motion

import (
	"image"
	"sort"

	"github.com/harrydb/go/img/grayscale"
)

// Region is one connected area of the change mask.
type Region struct {
	Bounds image.Rectangle
	Pixels int
}

// Regions returns the 8-connected components of the mask holding more
// than minPixels pixels, largest first.
func Regions(mask *image.Gray, minPixels int) []Region {
	cocos := grayscale.CoCos(mask, 255, grayscale.NEIGHBOR8)

	regions := make([]Region, 0, len(cocos))
	for _, coco := range cocos {
		if len(coco) <= minPixels {
			continue
		}
		r := image.Rectangle{Min: coco[0], Max: coco[0].Add(image.Pt(1, 1))}
		for _, p := range coco[1:] {
			r = r.Union(image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))})
		}
		regions = append(regions, Region{Bounds: r, Pixels: len(coco)})
	}

	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Pixels > regions[j].Pixels
	})
	return regions
}
