package normalize

import (
	"net/url"
	"sort"
	"strings"
	"unicode"
)

var trackingQueryKeys = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
	"cmpid":   {},
	"ocid":    {},
}

// CanonicalURL lower-cases scheme and host, drops default ports, fragments and
// tracking parameters, and sorts the remaining query. Unusable input returns "".
func CanonicalURL(raw string) (canonical string, host string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", ""
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", ""
	}
	if parsed.Host == "" {
		return "", ""
	}

	hostname := strings.ToLower(parsed.Hostname())
	parsed.Host = hostname
	if port := parsed.Port(); port != "" {
		defaultPort := (parsed.Scheme == "http" && port == "80") || (parsed.Scheme == "https" && port == "443")
		if !defaultPort {
			parsed.Host = hostname + ":" + port
		}
	}

	parsed.Fragment = ""
	parsed.RawFragment = ""
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if strings.HasSuffix(path, "/") && path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	parsed.Path = path
	parsed.RawPath = ""

	q := parsed.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			continue
		}
		if _, ok := trackingQueryKeys[lower]; ok {
			q.Del(key)
		}
	}
	if len(q) > 0 {
		keys := make([]string, 0, len(q))
		for key := range q {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		reordered := url.Values{}
		for _, key := range keys {
			values := q[key]
			sort.Strings(values)
			for _, value := range values {
				reordered.Add(key, value)
			}
		}
		parsed.RawQuery = reordered.Encode()
	} else {
		parsed.RawQuery = ""
	}

	return parsed.String(), strings.TrimPrefix(hostname, "www.")
}

// titleFromURL turns the last path segment into words, e.g. /2026/10/fed-holds-rates.html -> "fed holds rates".
func titleFromURL(canonical string) string {
	parsed, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		segment := segments[i]
		if dot := strings.LastIndex(segment, "."); dot > 0 {
			segment = segment[:dot]
		}
		words := strings.FieldsFunc(segment, func(r rune) bool {
			return r == '-' || r == '_' || r == '+'
		})
		letters := 0
		for _, word := range words {
			for _, r := range word {
				if unicode.IsLetter(r) {
					letters++
				}
			}
		}
		if len(words) >= 2 && letters >= 6 {
			return strings.Join(words, " ")
		}
	}
	return ""
}
