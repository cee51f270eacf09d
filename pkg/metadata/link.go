// Package metadata combines raw page metadata and extracts the pointer to the
// next page from it.
//
// The fetcher delivers the response URL, status, headers and, for JSON
// pages, the body. HeaderCombiner adds the values servers commonly use for
// pagination (Link relations, page and item counts). The extractors turn the
// combined metadata into a pagination.ParsedMetadata:
//
//	extractor := metadata.FirstOf(
//		metadata.LinkExtractor{},
//		metadata.JSONPathExtractor{},
//		metadata.PageCountExtractor{},
//	)
package metadata

import (
	"strings"
)

// Link is a single target from a Link header (RFC 8288).
type Link struct {
	URL    string
	Rel    string
	Params map[string]string
}

// ParseLinkHeader parses one or more Link header values. A link with several
// space separated relation types is returned once per relation. Malformed
// entries are skipped.
func ParseLinkHeader(values ...string) []Link {
	var links []Link
	for _, value := range values {
		for _, entry := range splitOutsideQuotes(value, ',') {
			links = append(links, parseLink(entry)...)
		}
	}
	return links
}

func parseLink(entry string) []Link {
	entry = strings.TrimSpace(entry)
	if !strings.HasPrefix(entry, "<") {
		return nil
	}
	end := strings.IndexByte(entry, '>')
	if end < 0 {
		return nil
	}
	target := strings.TrimSpace(entry[1:end])

	params := make(map[string]string)
	for _, param := range splitOutsideQuotes(entry[end+1:], ';') {
		param = strings.TrimSpace(param)
		if param == "" {
			continue
		}
		key, value, _ := strings.Cut(param, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if _, seen := params[key]; !seen {
			params[key] = value
		}
	}

	rels := strings.Fields(strings.ToLower(params["rel"]))
	if len(rels) == 0 {
		return nil
	}
	links := make([]Link, 0, len(rels))
	for _, rel := range rels {
		links = append(links, Link{URL: target, Rel: rel, Params: params})
	}
	return links
}

// LinksByRel maps relation types to targets. The first link wins for a
// repeated relation.
func LinksByRel(links []Link) map[string]string {
	out := make(map[string]string, len(links))
	for _, l := range links {
		if _, ok := out[l.Rel]; !ok {
			out[l.Rel] = l.URL
		}
	}
	return out
}

// splitOutsideQuotes splits s at sep, ignoring separators inside quoted
// strings and inside <...>.
func splitOutsideQuotes(s string, sep byte) []string {
	var (
		parts    []string
		inQuotes bool
		inURL    bool
		start    int
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"' && !inURL:
			inQuotes = !inQuotes
		case c == '<' && !inQuotes:
			inURL = true
		case c == '>' && !inQuotes:
			inURL = false
		case c == sep && !inQuotes && !inURL:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
