package transport

import "net/url"

// redact hides the verifyKey query parameter before a URL is logged.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("verifyKey") {
		q.Set("verifyKey", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
