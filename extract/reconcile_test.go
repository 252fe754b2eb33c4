package extract

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/igextract/intercept"
	"github.com/use-agent/igextract/models"
)

func newReconciler(t *testing.T) *Reconciler {
	t.Helper()
	r, err := NewReconciler(DefaultPatterns())
	require.NoError(t, err)
	return r
}

func page(head, body string) string {
	return "<html><head>" + head + "</head><body>" + body + "</body></html>"
}

func payload(t *testing.T, class intercept.Class, url, body string) *intercept.Payload {
	t.Helper()
	j, err := intercept.Decode(http.Header{}, []byte(body))
	require.NoError(t, err)
	return &intercept.Payload{Class: class, URL: url, Body: j}
}

func marshal(t *testing.T, e *models.CanonicalEntity) map[string]any {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestReconcile_ScriptOnlyProfileRecoversEmail(t *testing.T) {
	r := newReconciler(t)
	html := page("", `<script type="application/json">{"props":{"user":{"username":"alice","biography":"contact: alice@x.com"}}}</script>`)

	e := r.Reconcile(intercept.Payloads{}, html, "https://www.instagram.com/alice/")

	assert.Equal(t, models.ContentProfile, e.ContentType)
	assert.Equal(t, "alice", e.Username)
	require.NotNil(t, e.BusinessEmail)
	assert.Equal(t, "alice@x.com", *e.BusinessEmail)
}

func TestReconcile_ScriptTextPatternsProfile(t *testing.T) {
	r := newReconciler(t)
	html := page("", `<script>requireLazy(["x"], function(){ init({"username":"alice","biography":"contact: alice@x.com","edge_followed_by":{"count":1500000}}); });</script>`)

	e := r.Reconcile(intercept.Payloads{}, html, "https://www.instagram.com/alice/")

	assert.Equal(t, "alice", e.Username)
	require.NotNil(t, e.BusinessEmail)
	assert.Equal(t, "alice@x.com", *e.BusinessEmail)
	require.NotNil(t, e.FollowersCount)
	assert.Equal(t, "1.5M", e.FollowersCount.Display())
}

func TestReconcile_ReelIsVideo(t *testing.T) {
	r := newReconciler(t)
	html := page(`<meta property="og:type" content="article">`,
		`<script type="application/json">{"is_video":true}</script>`)

	e := r.Reconcile(intercept.Payloads{}, html, "https://www.instagram.com/reel/abc123/")
	assert.Equal(t, models.ContentVideo, e.ContentType)
}

func TestReconcile_ContentType(t *testing.T) {
	r := newReconciler(t)

	tests := []struct {
		name string
		url  string
		html string
		want models.ContentType
	}{
		{"post", "https://www.instagram.com/p/xyz/", page(`<meta property="og:type" content="article">`, ""), models.ContentArticle},
		{"post with meta video flag", "https://www.instagram.com/p/xyz/", page(`<meta property="og:type" content="video.other">`, ""), models.ContentVideo},
		{"post with script is_video", "https://www.instagram.com/p/xyz/", page("", `<script>{"shortcode":"xyz","is_video":true}</script>`), models.ContentVideo},
		{"post with script is_video false", "https://www.instagram.com/p/xyz/", page("", `<script>{"shortcode":"xyz","is_video":false}</script>`), models.ContentArticle},
		{"post with video url", "https://www.instagram.com/p/xyz/", page("", `<script>var d = {"video_url":"https://cdn.test/v.mp4"};</script>`), models.ContentVideo},
		{"profile", "https://www.instagram.com/alice/", page("", ""), models.ContentProfile},
		{"reels tab is a profile", "https://www.instagram.com/alice/reels/", page("", ""), models.ContentProfile},
		{"tv path is a profile", "https://www.instagram.com/tv/abc/", page("", ""), models.ContentProfile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Reconcile(intercept.Payloads{}, tt.html, tt.url).ContentType)
		})
	}
}

func TestReconcile_UsernamePriority(t *testing.T) {
	r := newReconciler(t)
	metaHead := `<meta property="og:title" content="Meta Person (@frommeta) • Instagram photos and videos">` +
		`<meta name="twitter:title" content="Meta Person (@fromtwitter) • Instagram">` +
		`<meta property="profile:username" content="fromprop">`

	tests := []struct {
		name string
		head string
		body string
		want string
	}{
		{"script wins over meta", metaHead, `<script type="application/json">{"username":"fromscript"}</script>`, "fromscript"},
		{"script pattern wins over meta", metaHead, `<script>x("username":"frompattern")</script>`, "frompattern"},
		{"twitter title before property", metaHead, "", "fromtwitter"},
		{"property before og title", `<meta property="og:title" content="Meta Person (@frommeta) • Instagram"><meta property="profile:username" content="fromprop">`, "", "fromprop"},
		{"og title last", `<meta property="og:title" content="Meta Person (@frommeta) • Instagram">`, "", "frommeta"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := r.Reconcile(intercept.Payloads{}, page(tt.head, tt.body), "https://www.instagram.com/p/abc/")
			assert.Equal(t, tt.want, e.Username)
		})
	}
}

func TestReconcile_BusinessFieldsAlwaysPresent(t *testing.T) {
	r := newReconciler(t)

	for _, url := range []string{
		"https://www.instagram.com/nobody/",
		"https://www.instagram.com/p/abc/",
		"https://www.instagram.com/reel/abc/",
	} {
		t.Run(url, func(t *testing.T) {
			e := r.Reconcile(intercept.Payloads{}, "", url)
			m := marshal(t, e)

			for _, k := range []string{"business_email", "business_phone_number", "business_category_name"} {
				v, ok := m[k]
				assert.True(t, ok, "missing %s", k)
				assert.Nil(t, v)
			}
			assert.Equal(t, url, m["url"])
			assert.Contains(t, m, "content_type")
			assert.NotContains(t, m, "likes_count")
			assert.NotContains(t, m, "followers_count")
			assert.NotContains(t, m, "is_private")
		})
	}
}

func TestReconcile_EmptyBusinessNormalised(t *testing.T) {
	r := newReconciler(t)
	api := payload(t, intercept.ClassAPI,
		"https://www.instagram.com/api/v1/users/web_profile_info/?username=shop",
		`{"data":{"user":{"username":"shop","full_name":"Shop","biography":"","business_email":"","business_phone_number":"  ","business_category_name":"Retail","is_business_account":true}}}`)

	e := r.Reconcile(intercept.NewPayloads(api), "", "https://www.instagram.com/shop/")

	assert.Nil(t, e.BusinessEmail)
	assert.Nil(t, e.BusinessPhoneNumber)
	require.NotNil(t, e.BusinessCategoryName)
	assert.Equal(t, "Retail", *e.BusinessCategoryName)
	require.NotNil(t, e.IsBusinessAccount)
	assert.True(t, *e.IsBusinessAccount)
}

func TestReconcile_ProfileSourcePriority(t *testing.T) {
	r := newReconciler(t)
	api := payload(t, intercept.ClassAPI,
		"https://www.instagram.com/api/v1/users/web_profile_info/?username=alice",
		`{"data":{"user":{"username":"alice","full_name":"From API","edge_followed_by":{"count":1200},"edge_follow":{"count":80},"is_private":false,"is_verified":true,
			"bio_links":[{"title":"site","url":"https://alice.test"}]}},"status":"ok"}`)
	gql := payload(t, intercept.ClassGraphQL,
		"https://www.instagram.com/graphql/query/?doc_id=1",
		`{"data":{"user":{"username":"alice","full_name":"From GraphQL","biography":"bio from graphql","edge_followed_by":{"count":999}}}}`)
	html := page(`<meta property="og:description" content="5M Followers, 10 Following, 3 Posts - See Instagram photos">`, "")

	e := r.Reconcile(intercept.NewPayloads(gql, api), html, "https://www.instagram.com/alice/")

	assert.Equal(t, "From API", e.FullName)
	assert.Equal(t, "bio from graphql", e.Biography)
	require.NotNil(t, e.FollowersCount)
	assert.Equal(t, int64(1200), e.FollowersCount.Value)
	assert.Equal(t, "1.2K", e.FollowersCount.Display())
	require.NotNil(t, e.FollowingCount)
	assert.Equal(t, "80", e.FollowingCount.Display())
	require.Len(t, e.BioLinks, 1)
	assert.Equal(t, "https://alice.test", e.BioLinks[0].URL)
	require.NotNil(t, e.IsPrivate)
	assert.False(t, *e.IsPrivate)
}

func TestReconcile_ProfileFallsBackToMeta(t *testing.T) {
	r := newReconciler(t)
	html := page(`<meta property="og:title" content="Alice Smith (@alice) • Instagram photos and videos">`+
		`<meta property="og:description" content="1,234 Followers, 56 Following, 7 Posts - See Instagram photos and videos from Alice Smith (@alice)">`, "")

	e := r.Reconcile(intercept.Payloads{}, html, "https://www.instagram.com/alice/")

	assert.Equal(t, "alice", e.Username)
	assert.Equal(t, "Alice Smith", e.FullName)
	require.NotNil(t, e.FollowersCount)
	assert.Equal(t, int64(1234), e.FollowersCount.Value)
	require.NotNil(t, e.FollowingCount)
	assert.Equal(t, int64(56), e.FollowingCount.Value)
}

func TestReconcile_PostCountsMetaBeforeScript(t *testing.T) {
	r := newReconciler(t)
	html := page(
		`<meta property="og:description" content="12K likes, 345 comments - alice on January 2, 2024: &quot;sunset&quot;">`,
		`<script>{"shortcode":"abc","like_count":1,"comment_count":2,"caption":{"text":"from script"},"owner":{"username":"alice"}}</script>`)

	e := r.Reconcile(intercept.Payloads{}, html, "https://www.instagram.com/p/abc/")

	assert.Equal(t, models.ContentArticle, e.ContentType)
	require.NotNil(t, e.LikesCount)
	assert.Equal(t, "12K", e.LikesCount.Display())
	require.NotNil(t, e.CommentsCount)
	assert.Equal(t, "345", e.CommentsCount.Display())
	assert.Equal(t, "sunset", e.Caption)
	assert.Equal(t, "2024-01-02", e.PostDate)
}

func TestReconcile_PostCountsFromScriptThenPayload(t *testing.T) {
	r := newReconciler(t)

	scriptOnly := page("", `<script>x({"like_count":42})</script>`)
	e := r.Reconcile(intercept.Payloads{}, scriptOnly, "https://www.instagram.com/p/abc/")
	require.NotNil(t, e.LikesCount)
	assert.Equal(t, "42", e.LikesCount.Display())
	assert.Nil(t, e.CommentsCount)

	gql := payload(t, intercept.ClassGraphQL, "https://www.instagram.com/graphql/query/?doc_id=9",
		`{"data":{"xdt_shortcode_media":{"shortcode":"abc","edge_media_preview_like":{"count":2500},"edge_media_to_comment":{"count":0},"owner":{"username":"bob"},"taken_at_timestamp":1704153600}}}`)
	e = r.Reconcile(intercept.NewPayloads(gql), page("", ""), "https://www.instagram.com/p/abc/")
	require.NotNil(t, e.LikesCount)
	assert.Equal(t, "2.5K", e.LikesCount.Display())
	require.NotNil(t, e.CommentsCount, "a known zero is not absent")
	assert.Equal(t, "0", e.CommentsCount.Display())
	assert.Equal(t, "bob", e.Username)
	assert.Equal(t, "2024-01-02T00:00:00Z", e.PostDate)
}

func TestReconcile_MalformedPayloadDoesNotBlockOthers(t *testing.T) {
	r := newReconciler(t)
	i := intercept.New(intercept.NewClassifier(intercept.DefaultMarkers()), intercept.NewStore())

	_, err := i.OnResponse(intercept.Response{URL: "https://www.instagram.com/graphql/query/?doc_id=bad", Body: []byte(`{"data":{`)})
	require.Error(t, err)
	_, err = i.OnResponse(intercept.Response{
		URL:  "https://www.instagram.com/api/v1/users/web_profile_info/?username=carol",
		Body: []byte(`{"data":{"user":{"username":"carol","full_name":"Carol","edge_followed_by":{"count":10}}}}`),
	})
	require.NoError(t, err)

	e := r.Reconcile(i.Store().Snapshot(), "", "https://www.instagram.com/carol/")
	assert.Equal(t, "carol", e.Username)
	assert.Equal(t, "Carol", e.FullName)
}

func TestReconcile_ProfileIgnoresOtherAccounts(t *testing.T) {
	r := newReconciler(t)
	api := payload(t, intercept.ClassAPI,
		"https://www.instagram.com/api/v1/users/web_profile_info/?username=bob",
		`{"data":{"user":{"username":"bob","full_name":"Bob B","edge_followed_by":{"count":900}}}}`)
	gql := payload(t, intercept.ClassGraphQL,
		"https://www.instagram.com/graphql/query/?doc_id=2",
		`{"data":{"users":[{"username":"bob","full_name":"Bob B","edge_followed_by":{"count":900}},
			{"username":"carol","full_name":"Carol C","edge_followed_by":{"count":10}}]}}`)

	e := r.Reconcile(intercept.NewPayloads(api, gql), "", "https://www.instagram.com/Carol/")
	assert.Equal(t, "carol", e.Username)
	assert.Equal(t, "Carol C", e.FullName)
	require.NotNil(t, e.FollowersCount)
	assert.Equal(t, int64(10), e.FollowersCount.Value)

	e = r.Reconcile(intercept.NewPayloads(api), "", "https://www.instagram.com/carol/")
	assert.Empty(t, e.Username)
	assert.Empty(t, e.FullName)
	assert.Nil(t, e.FollowersCount)
}

func TestProfileHandle(t *testing.T) {
	assert.Equal(t, "carol", profileHandle("https://www.instagram.com/Carol/"))
	assert.Equal(t, "carol", profileHandle("https://www.instagram.com/carol?hl=en"))
	assert.Empty(t, profileHandle("https://www.instagram.com/"))
	assert.Empty(t, profileHandle("https://www.instagram.com/carol/reels/"))
	assert.Empty(t, profileHandle("https://www.instagram.com/p/abc/"))
}

func TestNewReconciler_RejectsBadPatterns(t *testing.T) {
	p := DefaultPatterns()
	p.Script = append(p.Script, Pattern{Field: "x", Expr: "(unclosed"})
	_, err := NewReconciler(p)
	assert.Error(t, err)

	p = DefaultPatterns()
	p.Description = []Pattern{{Field: "x", Expr: "no group"}}
	_, err = NewReconciler(p)
	assert.Error(t, err)
}
