package bot

import (
	"net/url"
	"strconv"
	"strings"
)

// LinkConfig identifies the gateway and the bot account to log in as.
type LinkConfig struct {
	APIURL    string
	VerifyKey string
	QQ        int64
}

// URL derives the websocket address of the gateway's combined channel:
// <ws|wss>://<host>/all?verifyKey=<key>&qq=<qq>.
func (l LinkConfig) URL() (string, error) {
	if strings.TrimSpace(l.APIURL) == "" {
		return "", &ConfigError{Field: "APIURL", Reason: "empty"}
	}
	u, err := url.Parse(l.APIURL)
	if err != nil {
		return "", &ConfigError{Field: "APIURL", Reason: err.Error()}
	}

	var scheme string
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
		scheme = "ws"
	default:
		return "", &ConfigError{Field: "APIURL", Reason: "unsupported scheme " + strconv.Quote(u.Scheme)}
	}
	if u.Host == "" {
		return "", &ConfigError{Field: "APIURL", Reason: "missing host"}
	}
	if l.VerifyKey == "" {
		return "", &ConfigError{Field: "VerifyKey", Reason: "empty"}
	}
	if l.QQ <= 0 {
		return "", &ConfigError{Field: "QQ", Reason: "must be positive"}
	}

	return scheme + "://" + u.Host + "/all" +
		"?verifyKey=" + url.QueryEscape(l.VerifyKey) +
		"&qq=" + strconv.FormatInt(l.QQ, 10), nil
}
