// Package blockdetect classifies fetched pages as anti-bot challenges.
package blockdetect

import (
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Reason codes for blocked verdicts.
const (
	ReasonChallengeURL     = "splashui_challenge"
	ReasonCaptcha          = "captcha"
	ReasonChallenge        = "challenge"
	ReasonMissingContainer = "missing_listing_container"
)

// blockTokens are phrases marketplaces serve on interstitial challenge
// pages instead of search results.
var blockTokens = []string{
	"pardon our interruption",
	"captcha",
	"verify you are human",
	"human verification",
	"robot check",
	"robot",
	"challenge",
	"splashui",
}

var captchaTokens = []string{"captcha", "hcaptcha", "recaptcha"}

// Tokens returns the challenge-page phrases used for detection, so
// callers can purge cached responses that match them.
func Tokens() []string {
	return append([]string(nil), blockTokens...)
}

// snippetLen bounds the diagnostic snippet captured from blocked pages.
const snippetLen = 200

// Verdict is the result of classifying one response. Detection is
// pure: no state is modified and no requests are issued.
type Verdict struct {
	Blocked bool
	Reason  string
	// Snippet holds the start of the offending page for diagnostics.
	Snippet string
}

// Detector classifies responses for one marketplace. The container
// selector is the marketplace's expected listing-results marker; a
// success response without it is treated as blocked.
type Detector struct {
	containerSelector string
}

// New creates a detector expecting the given listing-container
// selector. An empty selector disables the missing-container check.
func New(containerSelector string) *Detector {
	return &Detector{containerSelector: containerSelector}
}

// Detect classifies a fetched page. Checks run in a fixed order: the
// response URL, block phrases in body or title, then the absence of
// the listing container on an otherwise successful response.
func (d *Detector) Detect(finalURL string, status int, body string) Verdict {
	if IsChallengeURL(finalURL) {
		return blockedVerdict(ReasonChallengeURL, body)
	}

	lowered := strings.ToLower(body)
	title := strings.ToLower(pageTitle(body))
	for _, token := range blockTokens {
		if !strings.Contains(lowered, token) && !strings.Contains(title, token) {
			continue
		}
		for _, captcha := range captchaTokens {
			if strings.Contains(lowered, captcha) || strings.Contains(title, captcha) {
				return blockedVerdict(ReasonCaptcha, body)
			}
		}
		return blockedVerdict(ReasonChallenge, body)
	}

	if status == http.StatusOK && d.containerSelector != "" && !hasContainer(body, d.containerSelector) {
		return blockedVerdict(ReasonMissingContainer, body)
	}

	return Verdict{}
}

// IsChallengeURL reports whether a URL points at a known anti-bot
// challenge path.
func IsChallengeURL(rawURL string) bool {
	lowered := strings.ToLower(rawURL)
	if strings.Contains(lowered, "/splashui/challenge") {
		return true
	}
	return strings.Contains(lowered, "splashui") && strings.Contains(lowered, "challenge")
}

func blockedVerdict(reason, body string) Verdict {
	return Verdict{Blocked: true, Reason: reason, Snippet: snippet(body)}
}

func snippet(body string) string {
	trimmed := strings.TrimSpace(body)
	if len(trimmed) > snippetLen {
		return trimmed[:snippetLen]
	}
	return trimmed
}

func pageTitle(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	return doc.Find("title").First().Text()
}

func hasContainer(body, selector string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return false
	}
	return doc.Find(selector).Length() > 0
}
