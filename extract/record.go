package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/use-agent/igextract/models"
)

// profileRecord is one source's view of a user profile. Zero values mean
// the source did not supply the field.
type profileRecord struct {
	FullName         string
	Username         string
	Biography        string
	Followers        *int64
	Following        *int64
	BioLinks         []models.BioLink
	IsPrivate        *bool
	IsVerified       *bool
	IsBusiness       *bool
	IsProfessional   *bool
	BusinessEmail    string
	BusinessPhone    string
	BusinessCategory string
}

func (p *profileRecord) empty() bool {
	return p == nil || (p.FullName == "" && p.Username == "" && p.Biography == "" &&
		p.Followers == nil && p.Following == nil && len(p.BioLinks) == 0 &&
		p.IsPrivate == nil && p.IsVerified == nil && p.IsBusiness == nil && p.IsProfessional == nil &&
		p.BusinessEmail == "" && p.BusinessPhone == "" && p.BusinessCategory == "")
}

// mediaRecord is one source's view of a post.
type mediaRecord struct {
	Username string
	Caption  string
	PostDate string
	Likes    *int64
	Comments *int64
	IsVideo  *bool
	VideoURL string
}

func (m *mediaRecord) empty() bool {
	return m == nil || (m.Username == "" && m.Caption == "" && m.PostDate == "" &&
		m.Likes == nil && m.Comments == nil && m.IsVideo == nil && m.VideoURL == "")
}

var profileKeys = []string{"biography", "edge_followed_by", "follower_count", "full_name", "is_private", "is_verified"}

// isUserObject accepts objects that look like a user profile node.
func isUserObject(m map[string]any) bool {
	if s, _ := m["username"].(string); strings.TrimSpace(s) == "" {
		return false
	}
	for _, k := range profileKeys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// userMatcher accepts user objects, restricted to handle when it is set.
func userMatcher(handle string) func(map[string]any) bool {
	if handle == "" {
		return isUserObject
	}
	return func(m map[string]any) bool {
		if !isUserObject(m) {
			return false
		}
		s, _ := m["username"].(string)
		return strings.EqualFold(strings.TrimPrefix(strings.TrimSpace(s), "@"), handle)
	}
}

var mediaKeys = []string{"edge_media_preview_like", "edge_liked_by", "like_count", "edge_media_to_comment", "comment_count", "taken_at", "taken_at_timestamp"}

// isMediaObject accepts objects that look like a post node.
func isMediaObject(m map[string]any) bool {
	_, short := m["shortcode"]
	_, code := m["code"]
	if !short && !code {
		return false
	}
	for _, k := range mediaKeys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func countPtr(n int64, ok bool) *int64 {
	if !ok {
		return nil
	}
	return &n
}

func boolPtr(b bool, ok bool) *bool {
	if !ok {
		return nil
	}
	return &b
}

// profileFromObject maps an API or GraphQL user node.
func profileFromObject(u map[string]any) *profileRecord {
	if u == nil {
		return nil
	}
	p := &profileRecord{
		FullName:         firstString(u, "full_name"),
		Username:         firstString(u, "username"),
		Biography:        firstString(u, "biography"),
		Followers:        countPtr(firstCount(u, "edge_followed_by", "follower_count")),
		Following:        countPtr(firstCount(u, "edge_follow", "following_count")),
		IsPrivate:        boolPtr(firstBool(u, "is_private")),
		IsVerified:       boolPtr(firstBool(u, "is_verified")),
		IsBusiness:       boolPtr(firstBool(u, "is_business_account", "is_business")),
		IsProfessional:   boolPtr(firstBool(u, "is_professional_account")),
		BusinessEmail:    firstString(u, "business_email", "public_email"),
		BusinessPhone:    firstString(u, "business_phone_number", "contact_phone_number", "public_phone_number"),
		BusinessCategory: firstString(u, "business_category_name", "category_name", "category"),
	}
	if links, ok := u["bio_links"].([]any); ok {
		for _, l := range links {
			url := firstString(l, "url", "lynx_url")
			if url == "" {
				continue
			}
			p.BioLinks = append(p.BioLinks, models.BioLink{Title: firstString(l, "title"), URL: url})
		}
	}
	if len(p.BioLinks) == 0 {
		if ext := firstString(u, "external_url"); ext != "" {
			p.BioLinks = []models.BioLink{{URL: ext}}
		}
	}
	return p
}

// profileFromFields maps pattern-table matches over script text.
func profileFromFields(f Fields) *profileRecord {
	p := &profileRecord{
		FullName:         f.String(FieldFullName),
		Username:         f.String(FieldUsername),
		Biography:        f.String(FieldBiography),
		Followers:        countPtr(f.Count(FieldFollowers)),
		Following:        countPtr(f.Count(FieldFollowing)),
		IsPrivate:        boolPtr(f.Bool(FieldIsPrivate)),
		IsVerified:       boolPtr(f.Bool(FieldIsVerified)),
		IsBusiness:       boolPtr(f.Bool(FieldIsBusiness)),
		IsProfessional:   boolPtr(f.Bool(FieldIsProfessional)),
		BusinessEmail:    f.String(FieldBusinessEmail),
		BusinessPhone:    f.String(FieldBusinessPhone),
		BusinessCategory: f.String(FieldBusinessCategory),
	}
	if ext := f.String(FieldExternalURL); ext != "" {
		p.BioLinks = []models.BioLink{{URL: ext}}
	}
	return p
}

// profileFromMeta maps the meta description counts and the title name.
func profileFromMeta(md *MetaData, desc Fields, titleName *regexp.Regexp) *profileRecord {
	p := &profileRecord{
		Followers: countPtr(desc.Count(FieldFollowers)),
		Following: countPtr(desc.Count(FieldFollowing)),
	}
	if titleName != nil {
		for _, title := range []string{md.OGTitle(), md.TwitterTitle(), md.Title} {
			if m := titleName.FindStringSubmatch(title); m != nil {
				p.FullName = strings.TrimSpace(m[1])
				break
			}
		}
	}
	return p
}

// mediaFromObject maps an API or GraphQL post node.
func mediaFromObject(m map[string]any) *mediaRecord {
	if m == nil {
		return nil
	}
	rec := &mediaRecord{
		Username: firstString(m, "owner.username", "user.username"),
		Caption:  firstString(m, "edge_media_to_caption.edges.0.node.text", "caption.text", "caption"),
		Likes:    countPtr(firstCount(m, "edge_media_preview_like", "edge_liked_by", "like_count")),
		Comments: countPtr(firstCount(m, "edge_media_to_comment", "edge_media_to_parent_comment", "comment_count")),
		IsVideo:  boolPtr(firstBool(m, "is_video")),
		VideoURL: firstString(m, "video_url", "video_versions.0.url"),
	}
	if ts, ok := firstCount(m, "taken_at_timestamp", "taken_at"); ok && ts > 0 {
		rec.PostDate = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}
	return rec
}

// mediaFromFields maps pattern-table matches over script text.
func mediaFromFields(f Fields) *mediaRecord {
	return &mediaRecord{
		Username: f.String(FieldUsername),
		Caption:  f.String(FieldCaption),
		PostDate: f.String(FieldPostDate),
		Likes:    countPtr(f.Count(FieldLikes)),
		Comments: countPtr(f.Count(FieldComments)),
		IsVideo:  boolPtr(f.Bool(FieldIsVideo)),
		VideoURL: f.String(FieldVideoURL),
	}
}

// mediaFromMeta maps meta description matches.
func mediaFromMeta(md *MetaData, desc Fields) *mediaRecord {
	rec := &mediaRecord{
		Caption:  desc.String(FieldCaption),
		PostDate: desc.String(FieldPostDate),
		Likes:    countPtr(desc.Count(FieldLikes)),
		Comments: countPtr(desc.Count(FieldComments)),
	}
	if rec.PostDate == "" {
		rec.PostDate = md.Get("article:published_time", "og:updated_time")
	}
	return rec
}
