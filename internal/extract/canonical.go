package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Tracking query parameters stripped during link canonicalization.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"utm_id":       true,
	"fbclid":       true,
	"gclid":        true,
	"mc_cid":       true,
	"mc_eid":       true,
	"ref":          true,
	"source":       true,
}

// CanonicalLink normalizes a link for dedup purposes: scheme and host are
// lowercased, tracking parameters and fragments are dropped, and a trailing
// slash on the path is removed. Unparseable links are returned trimmed.
func CanonicalLink(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.RawQuery != "" {
		query := u.Query()
		for param := range query {
			if trackingParams[strings.ToLower(param)] {
				query.Del(param)
			}
		}
		u.RawQuery = query.Encode()
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// NormalizeText lowercases and collapses whitespace runs to single spaces.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ContentHash computes the dedup key for an item: a 64-bit hash over the
// canonical tuple of normalized title, canonical link, and normalized
// content. The same logical article always hashes identically regardless of
// tracking parameters or whitespace differences.
func ContentHash(title, link, content string) string {
	h := xxhash.New()
	h.WriteString(NormalizeText(title))
	h.WriteString("|")
	h.WriteString(CanonicalLink(link))
	h.WriteString("|")
	h.WriteString(NormalizeText(content))
	return fmt.Sprintf("%016x", h.Sum64())
}
