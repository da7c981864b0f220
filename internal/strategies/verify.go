package strategies

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/ascribo/internal/browser"
)

// URL fragments that signal a post-signup redirect
var successURLTokens = []string{
	"thank",
	"thanks",
	"success",
	"confirm",
	"welcome",
	"subscribed",
}

// Phrases that signal an inline confirmation message. Matched against the
// rendered body text, lowercased.
var successPhrases = []string{
	"thank you",
	"thanks for subscribing",
	"thanks for signing up",
	"you're subscribed",
	"you are subscribed",
	"successfully subscribed",
	"subscription confirmed",
	"confirm your subscription",
	"confirm your email",
	"check your email",
	"check your inbox",
	"almost finished",
	"welcome aboard",
	"you're on the list",
	"you are on the list",
}

// verifySubmission decides whether a submit actually registered. A URL
// redirect is checked first since it is the cheapest and strongest signal;
// otherwise the rendered body text is scanned for confirmation phrases.
// Returns the matched signal for the attempt trace.
func verifySubmission(page browser.Page) (bool, string) {
	if currentURL, err := page.URL(); err == nil {
		lowered := strings.ToLower(currentURL)
		for _, token := range successURLTokens {
			if strings.Contains(lowered, token) {
				return true, "url:" + token
			}
		}
	}

	html, err := page.HTML()
	if err != nil {
		return false, ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, ""
	}

	bodyText := strings.ToLower(doc.Find("body").Text())
	for _, phrase := range successPhrases {
		if strings.Contains(bodyText, phrase) {
			return true, "content:" + phrase
		}
	}

	return false, ""
}
