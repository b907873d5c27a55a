// Package oauth1 implements the subset of OAuth 1.0a request signing that
// legacy media-upload endpoints still require: RFC 3986 parameter encoding,
// HMAC-SHA1 signature base strings, and Authorization header assembly.
package oauth1

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Credentials is the OAuth 1.0a quadruple: the application's consumer pair
// plus the per-account token pair.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	Token          string
	TokenSecret    string
}

// Signer produces Authorization headers for signed requests. Nonce and Now
// are overridable so signatures are reproducible under test.
type Signer struct {
	Creds Credentials
	Nonce func() string
	Now   func() time.Time
}

// Signer is a convenience for one-off request signing.
func (c Credentials) Signer() *Signer {
	return NewSigner(c)
}

func NewSigner(creds Credentials) *Signer {
	return &Signer{
		Creds: creds,
		Nonce: randomNonce,
		Now:   time.Now,
	}
}

func randomNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// AuthorizationHeader signs (method, rawURL, params) and returns the value
// for the Authorization header. Query parameters embedded in rawURL and the
// request parameters in params both participate in the signature; params must
// only contain form-encoded body or query parameters, never multipart bodies.
func (s *Signer) AuthorizationHeader(method, rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse request url: %w", err)
	}

	oauthParams := map[string]string{
		"oauth_consumer_key":     s.Creds.ConsumerKey,
		"oauth_nonce":            s.Nonce(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(s.Now().Unix(), 10),
		"oauth_token":            s.Creds.Token,
		"oauth_version":          "1.0",
	}

	signature := s.sign(method, u, params, oauthParams)
	oauthParams["oauth_signature"] = signature

	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=\"%s\"", percentEncode(k), percentEncode(oauthParams[k])))
	}

	return "OAuth " + strings.Join(pairs, ", "), nil
}

// sign builds the signature base string from the method, the base URL and
// the union of oauth, query and request parameters, then HMAC-SHA1s it with
// consumerSecret&tokenSecret.
func (s *Signer) sign(method string, u *url.URL, params url.Values, oauthParams map[string]string) string {
	type pair struct{ key, value string }
	var pairs []pair

	for k, vs := range params {
		for _, v := range vs {
			pairs = append(pairs, pair{percentEncode(k), percentEncode(v)})
		}
	}
	for k, vs := range u.Query() {
		for _, v := range vs {
			pairs = append(pairs, pair{percentEncode(k), percentEncode(v)})
		}
	}
	for k, v := range oauthParams {
		pairs = append(pairs, pair{percentEncode(k), percentEncode(v)})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value < pairs[j].value
	})

	encoded := make([]string, 0, len(pairs))
	for _, p := range pairs {
		encoded = append(encoded, p.key+"="+p.value)
	}
	paramString := strings.Join(encoded, "&")

	baseURL := u.Scheme + "://" + u.Host + u.Path
	baseString := strings.ToUpper(method) + "&" + percentEncode(baseURL) + "&" + percentEncode(paramString)

	signingKey := percentEncode(s.Creds.ConsumerSecret) + "&" + percentEncode(s.Creds.TokenSecret)
	mac := hmac.New(sha1.New, []byte(signingKey))
	mac.Write([]byte(baseString))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// percentEncode implements RFC 3986 encoding: unreserved characters pass
// through, everything else becomes uppercase %XX.
func percentEncode(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			b.WriteString(fmt.Sprintf("%%%02X", c))
		}
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') || c == '-' || c == '.' || c == '_' || c == '~'
}
