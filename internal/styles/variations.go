package styles

import (
	"fmt"
	"strings"

	"shotpack/internal/domain"
)

// cameraVariations are the six catalog compositions every pack cycles
// through, independent of style.
var cameraVariations = [domain.PackSize]string{
	"Camera: centered hero shot, straight-on eye level. Background: clean neutral studio (use style background). Lighting: balanced, soft shadows. Classic catalog look.",
	"Camera: ~30° right yaw, slight downward tilt. Background: style background. Lighting: daylight key from left. Soft reflection/shadow.",
	"Camera: top-down flat lay (~90°). Product perfectly centered. Background: style surface texture only (marble/wood/concrete). Even diffuse light.",
	"Camera: ~20° low angle (looking up). Product appears more imposing. Background: style background. Lighting: studio diffuse, gentle contrast.",
	"Camera: tighter crop on the product, ~10% closer. Frontal perspective. Background: blurred style background. Lighting: soft, product texture sharp.",
	"Camera: wider framing (include more background surface around product). Eye-level. Background: style background extended. Lighting: diffused daylight. Product remains central focus.",
}

// Guardrail clauses carried by every variant prompt.
const (
	identityClause  = "CRITICAL: Keep the product IDENTICAL (shape, proportions, color, logo, texture, material). Do not repaint or deform."
	exclusionClause = "ABSOLUTE BAN: Do not add people, pets, animals, hands, text, logos, or props of any kind."
	realismClause   = "Maintain photorealism, clean edges, color fidelity."
	shadowClause    = "Add realistic contact shadows/reflections consistent with the described scene."
	strictBanClause = "STRICT BAN: Do not add people, pets, hands, phones, text, logos, screens or props of any kind. Only the product itself must be visible."
)

// BuildPrompts expands a base style prompt into the six full variant prompts.
// The result is deterministic and each element is pairwise distinct.
func BuildPrompts(basePrompt string) [domain.PackSize]string {
	var prompts [domain.PackSize]string
	for i, camera := range cameraVariations {
		prompts[i] = strings.Join([]string{
			strings.TrimSpace(basePrompt),
			identityClause,
			exclusionClause,
			realismClause,
			shadowClause,
			fmt.Sprintf("VARIATION %d OF %d: %s", i+1, domain.PackSize, camera),
			strictBanClause,
		}, "\n\n")
	}
	return prompts
}
