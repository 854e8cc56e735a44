package publish

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
)

// sessionCookie is one entry of the credential blob. The field names follow
// the common browser-export format so blobs from other tools load as is.
type sessionCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

func parseCookies(blob string) ([]sessionCookie, error) {
	var cookies []sessionCookie
	if err := json.Unmarshal([]byte(strings.TrimSpace(blob)), &cookies); err != nil {
		return nil, fmt.Errorf("decode cookie blob: %w", err)
	}
	return cookies, nil
}

func (c sessionCookie) params() *network.SetCookieParams {
	p := network.SetCookie(c.Name, c.Value).
		WithDomain(c.Domain).
		WithHTTPOnly(c.HTTPOnly).
		WithSecure(c.Secure)
	if c.Path != "" {
		p = p.WithPath(c.Path)
	}
	if c.Expires > 0 {
		sec := int64(c.Expires)
		exp := cdp.TimeSinceEpoch(time.Unix(sec, int64((c.Expires-float64(sec))*1e9)))
		p = p.WithExpires(&exp)
	}
	switch strings.ToLower(c.SameSite) {
	case "strict":
		p = p.WithSameSite(network.CookieSameSiteStrict)
	case "lax":
		p = p.WithSameSite(network.CookieSameSiteLax)
	case "none":
		p = p.WithSameSite(network.CookieSameSiteNone)
	}
	return p
}

func fromNetwork(in []*network.Cookie) []sessionCookie {
	out := make([]sessionCookie, 0, len(in))
	for _, c := range in {
		out = append(out, sessionCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return out
}

func encodeCookies(cookies []sessionCookie) (string, error) {
	data, err := json.Marshal(cookies)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
