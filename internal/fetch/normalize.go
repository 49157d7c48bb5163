// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

package fetch

import (
	"strings"

	"golang.org/x/net/html"
)

// Normalize parses a raw HTML body and serializes it back as plain text,
// keeping only textual content in document order. Script and style bodies
// are dropped. The result is lower-cased, ready for regex evaluation.
//
// Non-HTML bodies pass through mostly unchanged since the tokenizer treats
// them as one text node.
func Normalize(body string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	var b strings.Builder
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.ToLower(strings.Join(strings.Fields(b.String()), " "))
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if isNonText(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if isNonText(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isNonText(tag string) bool {
	return tag == "script" || tag == "style" || tag == "noscript"
}
