// Package styles holds the scene catalog and the six-way prompt variation
// builder. Everything here is pure and deterministic so a pack is fully
// reproducible from its style alone.
package styles

import "shotpack/internal/domain"

// Info describes one selectable scene style.
type Info struct {
	ID          domain.Style
	Name        string
	Description string
	Prompt      string
}

// basePreamble is shared by every style: the product must survive the edit
// untouched, only the scene changes.
const basePreamble = `You are an e-commerce product photo editor.
Keep the product IDENTICAL: same shape, proportions, logo, color, texture and material.
Do NOT change or repaint the product itself.
Replace ONLY the background and scene according to the style.
Add realistic contact shadows/reflections consistent with tabletop studio photography.
Maintain photorealism, no AI artifacts, no text, no extra logos.
Framing: hero product shot centered, 3:2 aspect if possible.
Lighting: soft, diffused; avoid harsh highlights or blown whites.
Color fidelity is critical: do not shift the product's hue or saturation.
Color lock: preserve exact product hue, saturation and value; do not shift white balance on the product.`

// Catalog lists every supported style in display order.
var Catalog = []Info{
	{
		ID:          domain.StyleMarble,
		Name:        "Premium Marble",
		Description: "Elegant white marble background with subtle grey veining",
		Prompt: basePreamble + `

Background: premium white marble slab with subtle grey veining.
Soft daylight coming from the left at ~45°, gentle falloff, shallow depth-of-field look (f/2.8 feel).
Slight soft shadow below the product; subtle reflection on polished marble.`,
	},
	{
		ID:          domain.StyleMinimalWood,
		Name:        "Minimal Wood",
		Description: "Warm light wood tabletop with clean, minimal aesthetic",
		Prompt: basePreamble + `

Background: warm light wood tabletop with minimal visible grain, pale beige wall behind.
Morning diffused window light from right, soft shadow under product.
No props. Clean, minimal, cozy aesthetic.`,
	},
	{
		ID:          domain.StyleLoft,
		Name:        "Urban Loft",
		Description: "Industrial grey concrete with moody, high-contrast lighting",
		Prompt: basePreamble + `

Background: grey concrete wall, matte texture; surface is neutral mid-grey tabletop.
Diffuse studio light from top-left, soft shadowing; slightly moody, high-contrast but realistic.`,
	},
}

// Lookup returns the style info for id.
func Lookup(id domain.Style) (Info, bool) {
	for _, info := range Catalog {
		if info.ID == id {
			return info, true
		}
	}
	return Info{}, false
}
