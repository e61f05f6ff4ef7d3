package sim

// Validator accepts any engine output carrying a non-empty text or content
// field. Deployments plug in their own validation criteria; this one keeps
// local runs and tests self-contained.
type Validator struct{}

// Accepts implements the validation collaborator contract
func (Validator) Accepts(aiJob string, output map[string]interface{}) (bool, string) {
	for _, field := range []string{"text", "content"} {
		if s, ok := output[field].(string); ok && s != "" {
			return true, ""
		}
	}
	return false, "output has no usable text or content field"
}
