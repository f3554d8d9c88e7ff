package rodremote

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// block fails every request of the listed resource types.
func block(page *rod.Page, types []string) {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[strings.ToLower(t)] = true
	}
	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if blocked(set, string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

// blocked maps a CDP resource type onto the plural names used in Config.
func blocked(set map[string]bool, resType string) bool {
	t := strings.ToLower(resType)
	switch t {
	case "image", "font", "stylesheet":
		return set[t+"s"] || set[t]
	}
	return set[t]
}
