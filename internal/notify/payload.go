// Package notify delivers web push notifications to technicians.
//
// ParsePayload and ResolveClick describe what the receiving browser does
// with a delivered message; no server path calls them.
package notify

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Fallbacks applied to payload fields that are missing or empty.
const (
	DefaultTitle = "Workshop Manager"
	DefaultBody  = "You have a new notification."
	DefaultURL   = "/"
)

// Payload is the JSON body of a push message.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// WithDefaults fills empty fields with the fallbacks.
func (p Payload) WithDefaults() Payload {
	if strings.TrimSpace(p.Title) == "" {
		p.Title = DefaultTitle
	}
	if strings.TrimSpace(p.Body) == "" {
		p.Body = DefaultBody
	}
	if strings.TrimSpace(p.URL) == "" {
		p.URL = DefaultURL
	}
	return p
}

// ParsePayload decodes a received push message. Anything undecodable yields
// the default payload.
func ParsePayload(data []byte) Payload {
	var p Payload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			p = Payload{}
		}
	}
	return p.WithDefaults()
}

// ClickAction is what a notification click should do.
type ClickAction struct {
	// Focus is true when an open window already shows URL; Window is its
	// index. Otherwise URL should be opened in a new window.
	Focus  bool
	Window int
	URL    string
}

// ResolveClick resolves target against origin and returns the first window
// whose URL equals the absolute result exactly, or an open action.
func ResolveClick(origin, target string, windows []string) (ClickAction, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return ClickAction{}, fmt.Errorf("parse origin: %w", err)
	}
	if strings.TrimSpace(target) == "" {
		target = DefaultURL
	}
	ref, err := url.Parse(target)
	if err != nil {
		return ClickAction{}, fmt.Errorf("parse target: %w", err)
	}
	absolute := base.ResolveReference(ref).String()

	for i, w := range windows {
		if w == absolute {
			return ClickAction{Focus: true, Window: i, URL: absolute}, nil
		}
	}
	return ClickAction{Window: -1, URL: absolute}, nil
}
