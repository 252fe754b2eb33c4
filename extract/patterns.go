package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/igextract/models"
)

// Coerce names how a pattern's first capture group becomes a value.
type Coerce string

const (
	CoerceString     Coerce = "string"      // raw capture, trimmed
	CoerceJSONString Coerce = "json_string" // capture is the inside of a JSON string literal
	CoerceCount      Coerce = "count"       // "1,234", "1.5M", "950"
	CoerceBool       Coerce = "bool"        // "true" / "false"
	CoerceUnixTime   Coerce = "unix_time"   // seconds since epoch, rendered RFC 3339
	CoerceDate       Coerce = "date"        // "January 2, 2006", rendered 2006-01-02
)

// Pattern is one row of a pattern table.
type Pattern struct {
	Field  string `yaml:"field"`
	Expr   string `yaml:"expr"`
	Coerce Coerce `yaml:"coerce"`
}

type compiledPattern struct {
	Pattern
	re *regexp.Regexp
}

// PatternTable applies its rows in order; the first row to produce a value
// for a field wins.
type PatternTable struct {
	rows []compiledPattern
}

// CompilePatterns validates and compiles rows.
func CompilePatterns(rows []Pattern) (*PatternTable, error) {
	t := &PatternTable{rows: make([]compiledPattern, 0, len(rows))}
	for i, p := range rows {
		if p.Field == "" {
			return nil, fmt.Errorf("extract: pattern %d: empty field", i)
		}
		re, err := regexp.Compile(p.Expr)
		if err != nil {
			return nil, fmt.Errorf("extract: pattern %d (%s): %w", i, p.Field, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("extract: pattern %d (%s): no capture group", i, p.Field)
		}
		switch p.Coerce {
		case "":
			p.Coerce = CoerceString
		case CoerceString, CoerceJSONString, CoerceCount, CoerceBool, CoerceUnixTime, CoerceDate:
		default:
			return nil, fmt.Errorf("extract: pattern %d (%s): unknown coercion %q", i, p.Field, p.Coerce)
		}
		t.rows = append(t.rows, compiledPattern{Pattern: p, re: re})
	}
	return t, nil
}

// Apply runs every row over each text in turn and collects the results.
func (t *PatternTable) Apply(texts ...string) Fields {
	out := Fields{}
	for _, row := range t.rows {
		if _, done := out[row.Field]; done {
			continue
		}
		for _, text := range texts {
			m := row.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			if v, ok := coerce(row.Coerce, m[1]); ok {
				out[row.Field] = v
				break
			}
		}
	}
	return out
}

func coerce(c Coerce, raw string) (any, bool) {
	switch c {
	case CoerceJSONString:
		var s string
		if err := json.Unmarshal([]byte(`"`+raw+`"`), &s); err != nil {
			return nil, false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	case CoerceCount:
		return models.ParseCount(raw)
	case CoerceBool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		return b, err == nil
	case CoerceUnixTime:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || n <= 0 {
			return nil, false
		}
		return time.Unix(n, 0).UTC().Format(time.RFC3339), true
	case CoerceDate:
		d, err := time.Parse("January 2, 2006", strings.TrimSpace(raw))
		if err != nil {
			return nil, false
		}
		return d.Format(time.DateOnly), true
	default:
		s := strings.TrimSpace(raw)
		return s, s != ""
	}
}

// Fields is the set of values a PatternTable lifted out of text.
type Fields map[string]any

// String returns a non-empty string field.
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// Count returns an integer field.
func (f Fields) Count(key string) (int64, bool) {
	n, ok := f[key].(int64)
	return n, ok
}

// Bool returns a boolean field.
func (f Fields) Bool(key string) (bool, bool) {
	b, ok := f[key].(bool)
	return b, ok
}

// Field names shared by the pattern tables and the reconciler.
const (
	FieldUsername         = "username"
	FieldFullName         = "full_name"
	FieldBiography        = "biography"
	FieldFollowers        = "followers"
	FieldFollowing        = "following"
	FieldIsPrivate        = "is_private"
	FieldIsVerified       = "is_verified"
	FieldIsBusiness       = "is_business_account"
	FieldIsProfessional   = "is_professional_account"
	FieldBusinessEmail    = "business_email"
	FieldBusinessPhone    = "business_phone_number"
	FieldBusinessCategory = "business_category_name"
	FieldExternalURL      = "external_url"
	FieldLikes            = "likes"
	FieldComments         = "comments"
	FieldCaption          = "caption"
	FieldPostDate         = "post_date"
	FieldIsVideo          = "is_video"
	FieldVideoURL         = "video_url"
)

// Patterns is the site-specific configuration data the reconciler runs on.
type Patterns struct {
	// ProfileEndpoints are URL substrings of API responses that carry a
	// user profile.
	ProfileEndpoints []string `yaml:"profile_endpoints"`

	// UsernameProperties are meta properties whose content is a bare handle.
	UsernameProperties []string `yaml:"username_properties"`

	// TitleHandle extracts the handle from "Name (@handle) • Site" titles.
	TitleHandle string `yaml:"title_handle"`

	// TitleName extracts the display name from the same titles.
	TitleName string `yaml:"title_name"`

	// Description rows run over og:description and description.
	Description []Pattern `yaml:"description"`

	// Script rows run over the text of every script tag.
	Script []Pattern `yaml:"script"`
}

const jsonStr = `((?:[^"\\]|\\.)*)`

// DefaultPatterns returns the built-in pattern data.
func DefaultPatterns() Patterns {
	return Patterns{
		ProfileEndpoints:   []string{"web_profile_info", "/api/v1/users/"},
		UsernameProperties: []string{"profile:username", "instapp:username", "og:username"},
		TitleHandle:        `\(@([A-Za-z0-9._]{1,30})\)\s*[•·|]`,
		TitleName:          `^\s*(.+?)\s*\(@[A-Za-z0-9._]{1,30}\)`,
		Description: []Pattern{
			{Field: FieldFollowers, Expr: `(?i)([\d.,]+\s?[KMB]?)\s+Followers`, Coerce: CoerceCount},
			{Field: FieldFollowing, Expr: `(?i)([\d.,]+\s?[KMB]?)\s+Following`, Coerce: CoerceCount},
			{Field: FieldLikes, Expr: `(?i)([\d.,]+\s?[KMB]?)\s+likes?\b`, Coerce: CoerceCount},
			{Field: FieldComments, Expr: `(?i)([\d.,]+\s?[KMB]?)\s+comments?\b`, Coerce: CoerceCount},
			{Field: FieldPostDate, Expr: `\bon\s+([A-Z][a-z]+ \d{1,2}, \d{4})`, Coerce: CoerceDate},
			{Field: FieldCaption, Expr: `(?s):\s+"(.+)"\s*\.?\s*$`, Coerce: CoerceString},
		},
		Script: []Pattern{
			{Field: FieldUsername, Expr: `"username"\s*:\s*"([A-Za-z0-9._]{1,30})"`, Coerce: CoerceString},
			{Field: FieldFullName, Expr: `"full_name"\s*:\s*"` + jsonStr + `"`, Coerce: CoerceJSONString},
			{Field: FieldBiography, Expr: `"biography"\s*:\s*"` + jsonStr + `"`, Coerce: CoerceJSONString},
			{Field: FieldFollowers, Expr: `"edge_followed_by"\s*:\s*\{\s*"count"\s*:\s*(\d+)`, Coerce: CoerceCount},
			{Field: FieldFollowers, Expr: `"follower_count"\s*:\s*(\d+)`, Coerce: CoerceCount},
			{Field: FieldFollowing, Expr: `"edge_follow"\s*:\s*\{\s*"count"\s*:\s*(\d+)`, Coerce: CoerceCount},
			{Field: FieldFollowing, Expr: `"following_count"\s*:\s*(\d+)`, Coerce: CoerceCount},
			{Field: FieldIsPrivate, Expr: `"is_private"\s*:\s*(true|false)`, Coerce: CoerceBool},
			{Field: FieldIsVerified, Expr: `"is_verified"\s*:\s*(true|false)`, Coerce: CoerceBool},
			{Field: FieldIsBusiness, Expr: `"is_business_account"\s*:\s*(true|false)`, Coerce: CoerceBool},
			{Field: FieldIsProfessional, Expr: `"is_professional_account"\s*:\s*(true|false)`, Coerce: CoerceBool},
			{Field: FieldBusinessEmail, Expr: `"business_email"\s*:\s*"` + jsonStr + `"`, Coerce: CoerceJSONString},
			{Field: FieldBusinessEmail, Expr: `"public_email"\s*:\s*"` + jsonStr + `"`, Coerce: CoerceJSONString},
			{Field: FieldBusinessPhone, Expr: `"business_phone_number"\s*:\s*"` + jsonStr + `"`, Coerce: CoerceJSONString},
			{Field: FieldBusinessPhone, Expr: `"contact_phone_number"\s*:\s*"` + jsonStr + `"`, Coerce: CoerceJSONString},
			{Field: FieldBusinessCategory, Expr: `"business_category_name"\s*:\s*"` + jsonStr + `"`, Coerce: CoerceJSONString},
			{Field: FieldBusinessCategory, Expr: `"category_name"\s*:\s*"` + jsonStr + `"`, Coerce: CoerceJSONString},
			{Field: FieldExternalURL, Expr: `"external_url"\s*:\s*"` + jsonStr + `"`, Coerce: CoerceJSONString},
			{Field: FieldLikes, Expr: `"edge_media_preview_like"\s*:\s*\{\s*"count"\s*:\s*(\d+)`, Coerce: CoerceCount},
			{Field: FieldLikes, Expr: `"like_count"\s*:\s*(\d+)`, Coerce: CoerceCount},
			{Field: FieldComments, Expr: `"edge_media_to_comment"\s*:\s*\{\s*"count"\s*:\s*(\d+)`, Coerce: CoerceCount},
			{Field: FieldComments, Expr: `"comment_count"\s*:\s*(\d+)`, Coerce: CoerceCount},
			{Field: FieldCaption, Expr: `"edge_media_to_caption"\s*:\s*\{\s*"edges"\s*:\s*\[\s*\{\s*"node"\s*:\s*\{\s*"text"\s*:\s*"` + jsonStr + `"`, Coerce: CoerceJSONString},
			{Field: FieldCaption, Expr: `"caption"\s*:\s*\{[^{}]*?"text"\s*:\s*"` + jsonStr + `"`, Coerce: CoerceJSONString},
			{Field: FieldPostDate, Expr: `"taken_at_timestamp"\s*:\s*(\d+)`, Coerce: CoerceUnixTime},
			{Field: FieldPostDate, Expr: `"taken_at"\s*:\s*(\d+)`, Coerce: CoerceUnixTime},
			{Field: FieldIsVideo, Expr: `"is_video"\s*:\s*(true|false)`, Coerce: CoerceBool},
			{Field: FieldVideoURL, Expr: `"video_url"\s*:\s*"` + jsonStr + `"`, Coerce: CoerceJSONString},
		},
	}
}
