package extract

import "strings"

// firstNonEmpty evaluates resolvers in order and stops at the first
// non-blank result.
func firstNonEmpty(resolvers ...func() string) string {
	for _, r := range resolvers {
		if v := strings.TrimSpace(r()); v != "" {
			return v
		}
	}
	return ""
}

// firstProfile walks the source chain and returns the first value pick
// accepts. Sources are only materialised when reached.
func firstProfile[T any](chain []func() *profileRecord, pick func(*profileRecord) (T, bool)) T {
	for _, source := range chain {
		if p := source(); !p.empty() {
			if v, ok := pick(p); ok {
				return v
			}
		}
	}
	var zero T
	return zero
}

func firstMedia[T any](chain []func() *mediaRecord, pick func(*mediaRecord) (T, bool)) T {
	for _, source := range chain {
		if m := source(); !m.empty() {
			if v, ok := pick(m); ok {
				return v
			}
		}
	}
	var zero T
	return zero
}

func profileField(source func() *profileRecord, get func(*profileRecord) string) string {
	if p := source(); !p.empty() {
		return get(p)
	}
	return ""
}

func mediaField(source func() *mediaRecord, get func(*mediaRecord) string) string {
	if m := source(); !m.empty() {
		return get(m)
	}
	return ""
}
