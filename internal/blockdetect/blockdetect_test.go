package blockdetect_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ishaqmohammed8765-png/flipscan/internal/blockdetect"
)

const resultsPage = `<html><head><title>results</title></head><body>
<ul class="srp-results"><li class="s-item">item</li></ul></body></html>`

func TestChallengeURLBlocksRegardlessOfContent(t *testing.T) {
	d := blockdetect.New("ul.srp-results")

	v := d.Detect("https://www.ebay.co.uk/splashui/challenge?ap=1", http.StatusOK, resultsPage)
	assert.True(t, v.Blocked)
	assert.Equal(t, blockdetect.ReasonChallengeURL, v.Reason)
}

func TestBlockTokenInBody(t *testing.T) {
	d := blockdetect.New("ul.srp-results")

	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{
			name:   "interstitial phrase",
			body:   `<html><title>Pardon Our Interruption</title><body></body></html>`,
			reason: blockdetect.ReasonChallenge,
		},
		{
			name:   "captcha outranks generic challenge",
			body:   `<html><body>complete this challenge: solve the reCAPTCHA below</body></html>`,
			reason: blockdetect.ReasonCaptcha,
		},
		{
			name:   "robot check",
			body:   `<html><title>Robot Check</title><body></body></html>`,
			reason: blockdetect.ReasonChallenge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := d.Detect("https://www.ebay.co.uk/sch/i.html", http.StatusOK, tt.body)
			assert.True(t, v.Blocked)
			assert.Equal(t, tt.reason, v.Reason)
			assert.NotEmpty(t, v.Snippet)
		})
	}
}

func TestMissingContainerOn200(t *testing.T) {
	d := blockdetect.New("ul.srp-results")

	// No keyword match anywhere, but the listing container is absent.
	body := `<html><head><title>search</title></head><body><p>nothing here</p></body></html>`
	v := d.Detect("https://www.ebay.co.uk/sch/i.html", http.StatusOK, body)
	assert.True(t, v.Blocked)
	assert.Equal(t, blockdetect.ReasonMissingContainer, v.Reason)

	// Non-200 responses are not classified by the container check.
	v = d.Detect("https://www.ebay.co.uk/sch/i.html", http.StatusBadGateway, body)
	assert.False(t, v.Blocked)
}

func TestHealthyPagePasses(t *testing.T) {
	d := blockdetect.New("ul.srp-results")
	v := d.Detect("https://www.ebay.co.uk/sch/i.html", http.StatusOK, resultsPage)
	assert.False(t, v.Blocked)
	assert.Empty(t, v.Reason)
}
