package mqtt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidKey is returned when a shared access key is not valid base64.
var ErrInvalidKey = errors.New("invalid shared access key")

// SASToken is a shared access signature for one resource.
type SASToken struct {
	Resource  string
	Signature string
	Expiry    time.Time
	KeyName   string
}

// NewSASToken signs resource with the base64 key, valid until expiry.
func NewSASToken(resource, key, keyName string, expiry time.Time) (*SASToken, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	sr := url.QueryEscape(resource)
	se := strconv.FormatInt(expiry.Unix(), 10)

	mac := hmac.New(sha256.New, raw)
	mac.Write([]byte(sr + "\n" + se))

	return &SASToken{
		Resource:  resource,
		Signature: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		Expiry:    time.Unix(expiry.Unix(), 0),
		KeyName:   keyName,
	}, nil
}

// String renders the token in SharedAccessSignature form.
func (t *SASToken) String() string {
	s := fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%d",
		url.QueryEscape(t.Resource), url.QueryEscape(t.Signature), t.Expiry.Unix())
	if t.KeyName != "" {
		s += "&skn=" + url.QueryEscape(t.KeyName)
	}
	return s
}

// Expired reports whether the token is no longer valid at now.
func (t *SASToken) Expired(now time.Time) bool {
	return !now.Before(t.Expiry)
}

// ParseSASToken parses a SharedAccessSignature string.
func ParseSASToken(s string) (*SASToken, error) {
	body, ok := strings.CutPrefix(s, "SharedAccessSignature ")
	if !ok {
		return nil, fmt.Errorf("%w: missing SharedAccessSignature prefix", ErrInvalidKey)
	}
	vals, err := url.ParseQuery(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	se, err := strconv.ParseInt(vals.Get("se"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad expiry", ErrInvalidKey)
	}
	if vals.Get("sr") == "" || vals.Get("sig") == "" {
		return nil, fmt.Errorf("%w: missing sr or sig", ErrInvalidKey)
	}
	return &SASToken{
		Resource:  vals.Get("sr"),
		Signature: vals.Get("sig"),
		Expiry:    time.Unix(se, 0),
		KeyName:   vals.Get("skn"),
	}, nil
}
