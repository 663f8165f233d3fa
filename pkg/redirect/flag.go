package redirect

import (
	"net/url"
	"strings"
)

// AppendFlag adds "<flag>=true" to raw, using "&" when raw already has a
// query and "?" otherwise. The flag goes before any fragment so the browser
// still sends it.
func AppendFlag(raw, flag string) string {
	base, frag, hasFrag := strings.Cut(raw, "#")
	param := url.QueryEscape(flag) + "=true"
	switch {
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
		base += param
	case strings.Contains(base, "?"):
		base += "&" + param
	default:
		base += "?" + param
	}
	if hasFrag {
		return base + "#" + frag
	}
	return base
}
