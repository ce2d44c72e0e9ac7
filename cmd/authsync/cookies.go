package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/foodly/authsync"
	"golang.org/x/net/publicsuffix"
)

// hintCookies is the hint key under which the session cookies are kept
// between invocations, the CLI's stand-in for the browser cookie store.
const hintCookies = "sessionCookies"

type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// sessionJar is a public suffix aware cookie jar that also remembers the
// full cookies the server set, since http.CookieJar.Cookies only hands back
// names and values.
type sessionJar struct {
	inner http.CookieJar
	now   func() time.Time

	mu   sync.Mutex
	seen map[string]storedCookie
}

var _ http.CookieJar = (*sessionJar)(nil)

func newSessionJar() (*sessionJar, error) {
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &sessionJar{inner: inner, now: time.Now, seen: map[string]storedCookie{}}, nil
}

func (j *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	now := j.now()
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		key := c.Name + ";" + path

		expires := c.Expires
		if c.MaxAge > 0 {
			expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		if c.MaxAge < 0 || (!expires.IsZero() && !expires.After(now)) {
			delete(j.seen, key)
			continue
		}
		j.seen[key] = storedCookie{Name: c.Name, Value: c.Value, Path: path, Expires: expires}
	}
	j.mu.Unlock()

	j.inner.SetCookies(u, cookies)
}

func (j *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	return j.inner.Cookies(u)
}

// stored returns the live cookies, ordered by key.
func (j *sessionJar) stored() []storedCookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	keys := make([]string, 0, len(j.seen))
	for key, c := range j.seen {
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]storedCookie, 0, len(keys))
	for _, key := range keys {
		out = append(out, j.seen[key])
	}
	return out
}

func restoreCookies(ctx context.Context, hints authsync.HintStore, jar *sessionJar, base *url.URL) error {
	raw, ok, err := hints.Get(ctx, hintCookies)
	if err != nil || !ok || raw == "" {
		return err
	}

	var stored []storedCookie
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return err
	}

	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		cookies = append(cookies, &http.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Path:    c.Path,
			Expires: c.Expires,
		})
	}
	jar.SetCookies(base, cookies)
	return nil
}

func persistCookies(ctx context.Context, hints authsync.HintStore, jar *sessionJar) error {
	stored := jar.stored()
	if len(stored) == 0 {
		return hints.Delete(ctx, hintCookies)
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return hints.Set(ctx, hintCookies, string(data))
}
