package browser

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/igextract/intercept"
)

// configToProto maps human-readable config strings to Rod protocol resource types.
var configToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
}

// replayTypes are the resource types whose responses are loaded through the
// replay client and handed to the interceptor.
var replayTypes = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeXHR:   true,
	proto.NetworkResourceTypeFetch: true,
}

// adDomains is a set of tracking domains blocked when BlockAds is enabled.
var adDomains = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"connect.facebook.net":  {},
	"adnxs.com":             {},
	"scorecardresearch.com": {},
	"hotjar.com":            {},
	"mixpanel.com":          {},
	"segment.io":            {},
}

// isAdDomain checks if a hostname (or any parent domain) is in the ad blocklist.
func isAdDomain(host string) bool {
	host = strings.ToLower(host)
	for {
		if _, ok := adDomains[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
}

// blockedSet builds an O(1) lookup from config names; unknown names are skipped.
func blockedSet(names []string) map[proto.NetworkResourceType]struct{} {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(names))
	for _, name := range names {
		if rt, ok := configToProto[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	return blocked
}

// setupHijack installs the request interceptor. Every request is reported
// to OnRequest; XHR and fetch responses are loaded through the replay
// client, reported to OnResponse and fulfilled to the page unchanged.
// Blocked resource types and ad domains are failed.
func (p *Page) setupHijack(blockedTypes []string, blockAds bool) *rod.HijackRouter {
	blocked := blockedSet(blockedTypes)

	router := p.page.HijackRequests()

	// Pattern "*" + empty resourceType = intercept ALL requests.
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		u := ctx.Request.URL()
		rt := ctx.Request.Type()

		if _, shouldBlock := blocked[rt]; shouldBlock {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		if blockAds && isAdDomain(u.Hostname()) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}

		p.emitRequest(intercept.Request{
			URL:          u.String(),
			Method:       ctx.Request.Method(),
			ResourceType: string(rt),
			Headers:      fromHeadersMap(ctx.Request.Headers()),
			Timestamp:    time.Now(),
		})

		if !replayTypes[rt] {
			ctx.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}

		if err := ctx.LoadResponse(p.client, true); err != nil {
			slog.Debug("hijack: replay failed, continuing in browser", "url", u.String(), "error", err)
			ctx.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}

		payload := ctx.Response.Payload()
		p.emitResponse(intercept.Response{
			URL:       u.String(),
			Method:    ctx.Request.Method(),
			Status:    payload.ResponseCode,
			Headers:   fromHeaderEntries(payload.ResponseHeaders),
			Body:      payload.Body,
			Timestamp: time.Now(),
		})
	})

	// router.Run() blocks, so it must live in its own goroutine.
	// It will exit when router.Stop() is called.
	go router.Run()

	return router
}

func fromHeaderEntries(entries []*proto.FetchHeaderEntry) http.Header {
	h := make(http.Header, len(entries))
	for _, e := range entries {
		if e != nil {
			h.Add(e.Name, e.Value)
		}
	}
	return h
}
