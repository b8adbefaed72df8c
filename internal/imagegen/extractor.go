package imagegen

import "strings"

// Policy holds the heuristics used to pick an image out of an engine
// response.
//
// A string is a candidate when it is an http(s) URL, a data:image URI, or
// longer than InlineThreshold (assumed to be bare base64). Objects are
// searched through PriorityKeys first, then every member in the order it
// appears in the body. Integer-like keys get no precedence: in
// {"b":"http://b/1.png","1":"http://one/1.png"} the fallback picks "b".
// Bare candidates are wrapped as data:<DefaultMIME>;base64,<value>.
type Policy struct {
	PriorityKeys    []string
	InlineThreshold int
	DefaultMIME     string
}

// DefaultPolicy matches the response shapes produced by the generation
// workflow.
func DefaultPolicy() Policy {
	return Policy{
		PriorityKeys:    []string{"image", "base64", "output_image_url", "url", "data"},
		InlineThreshold: 1000,
		DefaultMIME:     "image/png",
	}
}

// Extractor finds the generated image in an engine response body.
type Extractor struct {
	policy Policy
}

func NewExtractor(policy Policy) *Extractor {
	defaults := DefaultPolicy()
	if len(policy.PriorityKeys) == 0 {
		policy.PriorityKeys = defaults.PriorityKeys
	}
	if policy.InlineThreshold <= 0 {
		policy.InlineThreshold = defaults.InlineThreshold
	}
	if policy.DefaultMIME == "" {
		policy.DefaultMIME = defaults.DefaultMIME
	}
	keys := make([]string, len(policy.PriorityKeys))
	copy(keys, policy.PriorityKeys)
	policy.PriorityKeys = keys
	return &Extractor{policy: policy}
}

func (e *Extractor) Policy() Policy { return e.policy }

// Extract returns the normalized image reference found in body. Empty or
// unparseable bodies yield false.
func (e *Extractor) Extract(body []byte) (string, bool) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", false
	}
	root, err := ParseValue(body)
	if err != nil {
		return "", false
	}
	found, ok := e.Find(root)
	if !ok {
		return "", false
	}
	return e.Normalize(found), true
}

// Find returns the first candidate string in v without normalizing it.
func (e *Extractor) Find(v *Value) (string, bool) {
	if v == nil {
		return "", false
	}
	switch v.Kind {
	case KindString:
		if e.isCandidate(v.Str) {
			return v.Str, true
		}
	case KindArray:
		for _, item := range v.Items {
			if found, ok := e.Find(item); ok {
				return found, true
			}
		}
	case KindObject:
		for _, key := range e.policy.PriorityKeys {
			field, ok := v.Field(key)
			if !ok || !field.Truthy() {
				continue
			}
			if found, ok := e.Find(field); ok {
				return found, true
			}
		}
		for _, m := range v.Members {
			if found, ok := e.Find(m.Value); ok {
				return found, true
			}
		}
	}
	return "", false
}

func (e *Extractor) isCandidate(s string) bool {
	if hasURLPrefix(s) || strings.HasPrefix(s, "data:image") {
		return true
	}
	return len(s) > e.policy.InlineThreshold
}

// Normalize wraps a bare base64 payload in a data URI. URLs and data URIs
// are returned unchanged.
func (e *Extractor) Normalize(s string) string {
	if hasURLPrefix(s) || strings.HasPrefix(s, "data:") {
		return s
	}
	return "data:" + e.policy.DefaultMIME + ";base64," + s
}

func hasURLPrefix(s string) bool {
	if len(s) < 7 {
		return false
	}
	lower := strings.ToLower(s[:min(len(s), 8)])
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
