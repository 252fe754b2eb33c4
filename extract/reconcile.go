// Package extract merges intercepted API payloads, embedded script data and
// meta tags into one canonical entity per requested URL.
//
// Every output field is resolved by an ordered list of lazily evaluated
// sources; the first non-empty value wins and later sources are never
// parsed.
package extract

import (
	"fmt"
	neturl "net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/use-agent/igextract/intercept"
	"github.com/use-agent/igextract/models"
)

// emailPattern recovers a contact address from free-form biography text.
var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// Reconciler turns one URL's accumulated sources into a CanonicalEntity.
// It holds only compiled configuration and is safe for concurrent use.
type Reconciler struct {
	profileEndpoints []string
	usernameProps    []string
	titleHandle      *regexp.Regexp
	titleName        *regexp.Regexp
	description      *PatternTable
	script           *PatternTable
}

// NewReconciler compiles the pattern data.
func NewReconciler(p Patterns) (*Reconciler, error) {
	r := &Reconciler{
		profileEndpoints: lowerAll(p.ProfileEndpoints),
		usernameProps:    lowerAll(p.UsernameProperties),
	}
	var err error
	if p.TitleHandle != "" {
		if r.titleHandle, err = regexp.Compile(p.TitleHandle); err != nil {
			return nil, fmt.Errorf("extract: title handle pattern: %w", err)
		}
	}
	if p.TitleName != "" {
		if r.titleName, err = regexp.Compile(p.TitleName); err != nil {
			return nil, fmt.Errorf("extract: title name pattern: %w", err)
		}
	}
	if r.description, err = CompilePatterns(p.Description); err != nil {
		return nil, err
	}
	if r.script, err = CompilePatterns(p.Script); err != nil {
		return nil, err
	}
	return r, nil
}

// MustReconciler is NewReconciler for known-good pattern data.
func MustReconciler(p Patterns) *Reconciler {
	r, err := NewReconciler(p)
	if err != nil {
		panic(err)
	}
	return r
}

// sources holds the lazily parsed inputs of one Reconcile call.
type sources struct {
	meta        func() *MetaData
	description func() Fields
	script      func() *ScriptData

	apiUser     func() *profileRecord
	graphqlUser func() *profileRecord
	scriptUser  func() *profileRecord
	metaUser    func() *profileRecord

	metaMedia    func() *mediaRecord
	scriptMedia  func() *mediaRecord
	payloadMedia func() *mediaRecord
}

// sources wires the lazy inputs. When handle is known, structured user
// objects must carry it; other accounts on the page are ignored.
func (r *Reconciler) sources(payloads intercept.Payloads, renderedHTML, handle string) *sources {
	s := &sources{}
	isUser := userMatcher(handle)
	s.meta = sync.OnceValue(func() *MetaData { return ReadMeta(renderedHTML) })
	s.description = sync.OnceValue(func() Fields {
		md := s.meta()
		return r.description.Apply(md.Get("og:description"), md.Get("description"), md.Get("twitter:description"))
	})
	s.script = sync.OnceValue(func() *ScriptData { return ReadScripts(renderedHTML, r.script) })

	s.apiUser = sync.OnceValue(func() *profileRecord {
		p := payloads.Find(intercept.ClassAPI, func(p *intercept.Payload) bool {
			return r.isProfileEndpoint(p.URL) && findObject(p.Body.Val(), isUser) != nil
		})
		if p == nil {
			return nil
		}
		return profileFromObject(findObject(p.Body.Val(), isUser))
	})
	s.graphqlUser = sync.OnceValue(func() *profileRecord {
		for _, p := range payloads.Class(intercept.ClassGraphQL) {
			if u := findObject(p.Body.Val(), isUser); u != nil {
				return profileFromObject(u)
			}
		}
		return nil
	})
	s.scriptUser = sync.OnceValue(func() *profileRecord {
		sd := s.script()
		if u := sd.FindObject(isUser); u != nil {
			return profileFromObject(u)
		}
		return profileFromFields(sd.Fields)
	})
	s.metaUser = sync.OnceValue(func() *profileRecord {
		return profileFromMeta(s.meta(), s.description(), r.titleName)
	})

	s.metaMedia = sync.OnceValue(func() *mediaRecord {
		return mediaFromMeta(s.meta(), s.description())
	})
	s.scriptMedia = sync.OnceValue(func() *mediaRecord {
		sd := s.script()
		rec := mediaFromFields(sd.Fields)
		if m := sd.FindObject(isMediaObject); m != nil {
			obj := mediaFromObject(m)
			fillMedia(obj, rec)
			return obj
		}
		return rec
	})
	s.payloadMedia = sync.OnceValue(func() *mediaRecord {
		for _, c := range []intercept.Class{intercept.ClassGraphQL, intercept.ClassAPI} {
			for _, p := range payloads.Class(c) {
				if m := findObject(p.Body.Val(), isMediaObject); m != nil {
					return mediaFromObject(m)
				}
			}
		}
		return nil
	})
	return s
}

// fillMedia copies fields of src into the gaps of dst.
func fillMedia(dst, src *mediaRecord) {
	if dst.Username == "" {
		dst.Username = src.Username
	}
	if dst.Caption == "" {
		dst.Caption = src.Caption
	}
	if dst.PostDate == "" {
		dst.PostDate = src.PostDate
	}
	if dst.Likes == nil {
		dst.Likes = src.Likes
	}
	if dst.Comments == nil {
		dst.Comments = src.Comments
	}
	if dst.IsVideo == nil {
		dst.IsVideo = src.IsVideo
	}
	if dst.VideoURL == "" {
		dst.VideoURL = src.VideoURL
	}
}

func (r *Reconciler) isProfileEndpoint(rawURL string) bool {
	u := strings.ToLower(rawURL)
	for _, m := range r.profileEndpoints {
		if strings.Contains(u, m) {
			return true
		}
	}
	return false
}

// Reconcile merges payloads and renderedHTML into the entity for url. It
// always returns a record; missing sources only leave fields absent.
func (r *Reconciler) Reconcile(payloads intercept.Payloads, renderedHTML, url string) *models.CanonicalEntity {
	src := r.sources(payloads, renderedHTML, profileHandle(url))

	// ── 1. Content type ──
	ct := r.contentType(url, src)
	e := models.MinimalEntity(url, ct)

	// ── 2. Field assembly ──
	e.Username = r.username(src, ct)
	if ct.IsPost() {
		r.assemblePost(e, src)
	} else {
		r.assembleProfile(e, src)
	}

	// ── 3. Business normalisation ──
	normalizeBusiness(e)

	// ── 4/5. Count formatting and pruning happen at marshal time: nil
	// counts and empty fields are omitted, business fields never are.
	return e
}

func (r *Reconciler) contentType(url string, src *sources) models.ContentType {
	switch {
	case strings.Contains(url, "/reel/"):
		return models.ContentVideo
	case strings.Contains(url, "/p/"):
		if src.meta().IsVideo() {
			return models.ContentVideo
		}
		if v, ok := r.scriptIsVideo(src); ok && v {
			return models.ContentVideo
		}
		if src.script().FindString("video_url") != "" || src.script().Fields.String(FieldVideoURL) != "" {
			return models.ContentVideo
		}
		return models.ContentArticle
	default:
		return models.ContentProfile
	}
}

func (r *Reconciler) scriptIsVideo(src *sources) (bool, bool) {
	if v, ok := src.script().FindBool("is_video"); ok {
		return v, true
	}
	return src.script().Fields.Bool(FieldIsVideo)
}

// username resolves the handle: script (structured, then pattern table),
// secondary title meta, username-labelled meta, primary title meta. Post
// and profile payloads are consulted only when every page source is empty.
func (r *Reconciler) username(src *sources, ct models.ContentType) string {
	chain := []func() string{
		func() string { return src.script().FindString("username") },
		func() string { return src.script().Fields.String(FieldUsername) },
		func() string { return r.handleFromTitle(src.meta().TwitterTitle()) },
		func() string { return src.meta().Get(r.usernameProps...) },
		func() string { return r.handleFromTitle(src.meta().OGTitle()) },
	}
	if ct.IsPost() {
		chain = append(chain, func() string { return mediaField(src.payloadMedia, func(m *mediaRecord) string { return m.Username }) })
	} else {
		chain = append(chain,
			func() string { return profileField(src.apiUser, func(p *profileRecord) string { return p.Username }) },
			func() string { return profileField(src.graphqlUser, func(p *profileRecord) string { return p.Username }) },
		)
	}
	return strings.TrimPrefix(firstNonEmpty(chain...), "@")
}

func (r *Reconciler) handleFromTitle(title string) string {
	if r.titleHandle == nil || title == "" {
		return ""
	}
	if m := r.titleHandle.FindStringSubmatch(title); m != nil {
		return m[1]
	}
	return ""
}

func (r *Reconciler) assembleProfile(e *models.CanonicalEntity, src *sources) {
	chain := []func() *profileRecord{src.apiUser, src.graphqlUser, src.scriptUser, src.metaUser}

	str := func(get func(*profileRecord) string) string {
		return firstProfile(chain, func(p *profileRecord) (string, bool) { v := get(p); return v, v != "" })
	}
	cnt := func(get func(*profileRecord) *int64) *models.Count {
		n := firstProfile(chain, func(p *profileRecord) (*int64, bool) { v := get(p); return v, v != nil })
		if n == nil {
			return nil
		}
		return models.NewCount(*n)
	}
	flag := func(get func(*profileRecord) *bool) *bool {
		return firstProfile(chain, func(p *profileRecord) (*bool, bool) { v := get(p); return v, v != nil })
	}

	e.FullName = str(func(p *profileRecord) string { return p.FullName })
	e.Biography = str(func(p *profileRecord) string { return p.Biography })
	e.FollowersCount = cnt(func(p *profileRecord) *int64 { return p.Followers })
	e.FollowingCount = cnt(func(p *profileRecord) *int64 { return p.Following })
	e.BioLinks = firstProfile(chain, func(p *profileRecord) ([]models.BioLink, bool) { return p.BioLinks, len(p.BioLinks) > 0 })
	e.IsPrivate = flag(func(p *profileRecord) *bool { return p.IsPrivate })
	e.IsVerified = flag(func(p *profileRecord) *bool { return p.IsVerified })
	e.IsBusinessAccount = flag(func(p *profileRecord) *bool { return p.IsBusiness })
	e.IsProfessionalAccount = flag(func(p *profileRecord) *bool { return p.IsProfessional })
	e.BusinessEmail = models.StringOrNil(str(func(p *profileRecord) string { return p.BusinessEmail }))
	e.BusinessPhoneNumber = models.StringOrNil(str(func(p *profileRecord) string { return p.BusinessPhone }))
	e.BusinessCategoryName = models.StringOrNil(str(func(p *profileRecord) string { return p.BusinessCategory }))
}

func (r *Reconciler) assemblePost(e *models.CanonicalEntity, src *sources) {
	// meta first, then script, then intercepted payloads
	chain := []func() *mediaRecord{src.metaMedia, src.scriptMedia, src.payloadMedia}

	cnt := func(get func(*mediaRecord) *int64) *models.Count {
		n := firstMedia(chain, func(m *mediaRecord) (*int64, bool) { v := get(m); return v, v != nil })
		if n == nil {
			return nil
		}
		return models.NewCount(*n)
	}
	str := func(get func(*mediaRecord) string) string {
		return firstMedia(chain, func(m *mediaRecord) (string, bool) { v := get(m); return v, v != "" })
	}

	e.LikesCount = cnt(func(m *mediaRecord) *int64 { return m.Likes })
	e.CommentsCount = cnt(func(m *mediaRecord) *int64 { return m.Comments })
	e.Caption = str(func(m *mediaRecord) string { return m.Caption })
	e.PostDate = str(func(m *mediaRecord) string { return m.PostDate })
}

// normalizeBusiness turns blank business fields into the absent marker and
// recovers a contact email from the biography.
func normalizeBusiness(e *models.CanonicalEntity) {
	norm := func(p *string) *string {
		if p == nil {
			return nil
		}
		return models.StringOrNil(*p)
	}
	e.BusinessEmail = norm(e.BusinessEmail)
	e.BusinessPhoneNumber = norm(e.BusinessPhoneNumber)
	e.BusinessCategoryName = norm(e.BusinessCategoryName)

	if e.BusinessEmail == nil && e.Biography != "" {
		if m := emailPattern.FindString(e.Biography); m != "" {
			e.BusinessEmail = &m
		}
	}
}

// profileHandle returns the lowercased account handle of a single-segment
// profile URL, or "" when the path is anything else.
func profileHandle(rawURL string) string {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return ""
	}
	path := strings.Trim(u.Path, "/")
	if path == "" || strings.Contains(path, "/") {
		return ""
	}
	return strings.ToLower(path)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
