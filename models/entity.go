package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ContentType discriminates the canonical entity record.
type ContentType string

const (
	ContentProfile ContentType = "profile"
	ContentArticle ContentType = "article"
	ContentVideo   ContentType = "video"
)

// IsPost reports whether the content type describes a single post (article or video).
func (c ContentType) IsPost() bool {
	return c == ContentArticle || c == ContentVideo
}

// Count is an engagement or audience count whose raw value is kept next to
// its display form. A nil *Count is the absent marker.
type Count struct {
	Value int64
}

// NewCount returns a known count.
func NewCount(v int64) *Count {
	return &Count{Value: v}
}

// Display returns the formatted magnitude, e.g. 1500000 -> "1.5M".
func (c *Count) Display() string {
	return FormatCount(c.Value)
}

// MarshalJSON renders the display string.
func (c *Count) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Display())
}

// UnmarshalJSON accepts either a display string or a raw number.
func (c *Count) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, ok := ParseCount(s)
		if !ok {
			return fmt.Errorf("models: invalid count %q", s)
		}
		c.Value = v
		return nil
	}
	return json.Unmarshal(b, &c.Value)
}

// FormatCount renders n as "<n/1e6>M", "<n/1e3>K" or the plain integer.
// The ratio keeps one decimal and a trailing ".0" is dropped.
func FormatCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return trimZeroDecimal(float64(n)/1_000_000) + "M"
	case n >= 1_000:
		return trimZeroDecimal(float64(n)/1_000) + "K"
	default:
		return strconv.FormatInt(n, 10)
	}
}

func trimZeroDecimal(f float64) string {
	return strings.TrimSuffix(strconv.FormatFloat(f, 'f', 1, 64), ".0")
}

// ParseCount parses display and page-text counts: "950", "1,234", "1.5K",
// "2M", "3.4m". It returns false when s carries no number.
func ParseCount(s string) (int64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	mult := 1.0
	switch s[len(s)-1] {
	case 'K', 'k':
		mult = 1_000
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1_000_000
		s = s[:len(s)-1]
	case 'B', 'b':
		mult = 1_000_000_000
		s = s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return int64(f*mult + 0.5), true
}

// BioLink is an external link listed on a profile.
type BioLink struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// CanonicalEntity is the normalised output record for one requested resource.
//
// Fields left nil or empty are pruned from the JSON output, except the three
// business-contact fields which are always emitted (null when absent).
type CanonicalEntity struct {
	URL         string      `json:"url"`
	ContentType ContentType `json:"content_type"`

	// Profile fields.
	FullName              string    `json:"full_name,omitempty"`
	Username              string    `json:"username,omitempty"`
	FollowersCount        *Count    `json:"followers_count,omitempty"`
	FollowingCount        *Count    `json:"following_count,omitempty"`
	Biography             string    `json:"biography,omitempty"`
	BioLinks              []BioLink `json:"bio_links,omitempty"`
	IsPrivate             *bool     `json:"is_private,omitempty"`
	IsVerified            *bool     `json:"is_verified,omitempty"`
	IsBusinessAccount     *bool     `json:"is_business_account,omitempty"`
	IsProfessionalAccount *bool     `json:"is_professional_account,omitempty"`

	// Article / video fields.
	LikesCount    *Count `json:"likes_count,omitempty"`
	CommentsCount *Count `json:"comments_count,omitempty"`
	PostDate      string `json:"post_date,omitempty"`
	Caption       string `json:"caption,omitempty"`

	// Business-contact fields: always present.
	BusinessEmail        *string `json:"business_email"`
	BusinessPhoneNumber  *string `json:"business_phone_number"`
	BusinessCategoryName *string `json:"business_category_name"`
}

// MinimalEntity returns the record emitted when no source yielded any field.
func MinimalEntity(url string, ct ContentType) *CanonicalEntity {
	return &CanonicalEntity{URL: url, ContentType: ct}
}

// StringOrNil normalises an empty string to the absent marker.
func StringOrNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}
