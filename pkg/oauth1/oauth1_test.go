package oauth1

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

// Known-answer vector from the Twitter request-signing documentation.
func referenceSigner() *Signer {
	s := NewSigner(Credentials{
		ConsumerKey:    "xvz1evFS4wEEPTGEFPHBog",
		ConsumerSecret: "kAcSOqF21Fu85e7zjz7ZN2U4ZRhfV3WpwPAoE3Z7kBw",
		Token:          "370773112-GmHxMAgYyLbNEtIKZeRNFsMKPR9EyMZeS9weJAEb",
		TokenSecret:    "LswwdoUaIvS8ltyTt5jkRh4J50vUPVVHtR2YPi5kE",
	})
	s.Nonce = func() string { return "kYjzVBB8Y0ZFabxSWbWovY3uYSQ2pTgmZeNu2VS4cg" }
	s.Now = func() time.Time { return time.Unix(1318622958, 0) }
	return s
}

func referenceParams() url.Values {
	params := url.Values{}
	params.Set("include_entities", "true")
	params.Set("status", "Hello Ladies + Gentlemen, a signed OAuth request!")
	return params
}

func TestAuthorizationHeaderKnownVector(t *testing.T) {
	header, err := referenceSigner().AuthorizationHeader(
		"POST", "https://api.twitter.com/1.1/statuses/update.json", referenceParams())
	if err != nil {
		t.Fatalf("AuthorizationHeader: %v", err)
	}

	if !strings.HasPrefix(header, "OAuth ") {
		t.Fatalf("expected OAuth header prefix, got %q", header)
	}

	want := `oauth_signature="hCtSmYh%2BiHYCEqBWrE7C7hYmtUk%3D"`
	if !strings.Contains(header, want) {
		t.Errorf("expected header to contain %s, got %q", want, header)
	}
}

func TestSignatureIsDeterministic(t *testing.T) {
	first, err := referenceSigner().AuthorizationHeader(
		"POST", "https://api.twitter.com/1.1/statuses/update.json", referenceParams())
	if err != nil {
		t.Fatalf("AuthorizationHeader: %v", err)
	}
	second, err := referenceSigner().AuthorizationHeader(
		"POST", "https://api.twitter.com/1.1/statuses/update.json", referenceParams())
	if err != nil {
		t.Fatalf("AuthorizationHeader: %v", err)
	}

	if first != second {
		t.Errorf("same inputs produced different headers:\n%s\n%s", first, second)
	}
}

func TestSignatureChangesWithAnyParameter(t *testing.T) {
	base, _ := referenceSigner().AuthorizationHeader(
		"POST", "https://api.twitter.com/1.1/statuses/update.json", referenceParams())

	tests := []struct {
		name   string
		mutate func() (method, rawURL string, params url.Values)
	}{
		{
			name: "changed param value",
			mutate: func() (string, string, url.Values) {
				p := referenceParams()
				p.Set("status", "a different status")
				return "POST", "https://api.twitter.com/1.1/statuses/update.json", p
			},
		},
		{
			name: "changed method",
			mutate: func() (string, string, url.Values) {
				return "GET", "https://api.twitter.com/1.1/statuses/update.json", referenceParams()
			},
		},
		{
			name: "changed url",
			mutate: func() (string, string, url.Values) {
				return "POST", "https://api.twitter.com/1.1/media/upload.json", referenceParams()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method, rawURL, params := tt.mutate()
			got, err := referenceSigner().AuthorizationHeader(method, rawURL, params)
			if err != nil {
				t.Fatalf("AuthorizationHeader: %v", err)
			}
			if got == base {
				t.Error("expected mutated request to produce a different signature")
			}
		})
	}
}

func TestQueryParametersParticipateInSignature(t *testing.T) {
	withQuery, err := referenceSigner().AuthorizationHeader(
		"POST", "https://upload.twitter.com/1.1/media/upload.json?command=INIT", nil)
	if err != nil {
		t.Fatalf("AuthorizationHeader: %v", err)
	}
	withoutQuery, err := referenceSigner().AuthorizationHeader(
		"POST", "https://upload.twitter.com/1.1/media/upload.json", nil)
	if err != nil {
		t.Fatalf("AuthorizationHeader: %v", err)
	}

	if withQuery == withoutQuery {
		t.Error("expected query string to change the signature")
	}
}

func TestPercentEncode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ladies + Gentlemen", "Ladies%20%2B%20Gentlemen"},
		{"An encoded string!", "An%20encoded%20string%21"},
		{"Dogs, Cats & Mice", "Dogs%2C%20Cats%20%26%20Mice"},
		{"☃", "%E2%98%83"},
		{"safe-string_1.0~", "safe-string_1.0~"},
	}

	for _, tt := range tests {
		if got := percentEncode(tt.in); got != tt.want {
			t.Errorf("percentEncode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
