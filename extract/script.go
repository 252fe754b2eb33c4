package extract

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/ysmood/gson"
	"golang.org/x/net/html"
)

// maxScriptObjects bounds how many '{' offsets are tried per script when
// looking for an embedded JSON object.
const maxScriptObjects = 8

// ScriptData is what the page's script tags yield: every JSON tree that
// could be parsed out of them plus the pattern-table matches over their
// raw text.
type ScriptData struct {
	Trees  []gson.JSON
	Fields Fields
	Texts  []string
}

// ReadScripts tokenizes rawHTML and collects inline script bodies.
func ReadScripts(rawHTML string, table *PatternTable) *ScriptData {
	sd := &ScriptData{}
	sd.Texts = scriptTexts(rawHTML)
	for _, text := range sd.Texts {
		if v, ok := embeddedJSON(text); ok {
			sd.Trees = append(sd.Trees, gson.New(v))
		}
	}
	if table != nil {
		sd.Fields = table.Apply(sd.Texts...)
	} else {
		sd.Fields = Fields{}
	}
	return sd
}

func scriptTexts(rawHTML string) []string {
	var out []string
	z := html.NewTokenizer(strings.NewReader(rawHTML))
	inScript := false
	var buf strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return out
			}
			if inScript && buf.Len() > 0 {
				out = append(out, buf.String())
			}
			return out
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) == "script" {
				inScript = true
				buf.Reset()
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "script" && inScript {
				if s := strings.TrimSpace(buf.String()); s != "" {
					out = append(out, s)
				}
				inScript = false
			}
		case html.TextToken:
			if inScript {
				buf.Write(z.Text())
			}
		}
	}
}

// embeddedJSON parses a script body that is JSON, or contains a JSON
// object after an assignment or call ("window.x = {...};").
func embeddedJSON(text string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		switch v.(type) {
		case map[string]any, []any:
			return v, true
		}
		return nil, false
	}

	offset := 0
	for tries := 0; tries < maxScriptObjects; tries++ {
		i := strings.IndexByte(text[offset:], '{')
		if i < 0 {
			return nil, false
		}
		start := offset + i
		dec := json.NewDecoder(strings.NewReader(text[start:]))
		var obj map[string]any
		if err := dec.Decode(&obj); err == nil && len(obj) > 0 {
			return obj, true
		}
		offset = start + 1
	}
	return nil, false
}

// FindString searches every tree for key, structured first.
func (s *ScriptData) FindString(key string) string {
	for _, t := range s.Trees {
		if v := findKey(t.Val(), key); v != "" {
			return v
		}
	}
	return ""
}

// FindBool searches every tree for a boolean under key.
func (s *ScriptData) FindBool(key string) (bool, bool) {
	for _, t := range s.Trees {
		if b, ok := findBool(t.Val(), key); ok {
			return b, true
		}
	}
	return false, false
}

// FindObject returns the first object in any tree accepted by match.
func (s *ScriptData) FindObject(match func(map[string]any) bool) map[string]any {
	for _, t := range s.Trees {
		if m := findObject(t.Val(), match); m != nil {
			return m
		}
	}
	return nil
}
