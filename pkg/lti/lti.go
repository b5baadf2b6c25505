// Package lti builds LTI 1.1 basic launch requests signed with OAuth 1.0a HMAC-SHA1.
package lti

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleInstructor = "Instructor"
	RoleLearner    = "Learner"
)

// Consumer holds the credentials shared with a tool provider.
type Consumer struct {
	Key    string
	Secret string
}

// Launch describes the user and resource a launch request is made for.
type Launch struct {
	UserID            string
	FullName          string
	Email             string
	Staff             bool
	Locale            string
	ContextID         string
	ContextTitle      string
	ContextLabel      string
	ResourceLinkID    string
	ResourceLinkTitle string
	InstanceGUID      string
	InstanceName      string
	// Extra literals are signed together with the launch parameters.
	Extra map[string]string
}

// Request is a launch request ready to be signed for a target URL.
type Request struct {
	consumer Consumer
	params   url.Values
	now      func() time.Time
	nonce    func() string
}

// NewRequest prepares the launch parameters for the consumer.
func NewRequest(consumer Consumer, launch Launch) *Request {
	params := url.Values{}
	params.Set("lti_version", "LTI-1p0")
	params.Set("lti_message_type", "basic-lti-launch-request")
	params.Set("resource_link_id", launch.ResourceLinkID)
	params.Set("resource_link_title", launch.ResourceLinkTitle)
	params.Set("user_id", launch.UserID)
	params.Set("lis_person_name_full", launch.FullName)
	params.Set("lis_person_contact_email_primary", launch.Email)
	params.Set("context_id", launch.ContextID)
	params.Set("context_title", launch.ContextTitle)
	params.Set("context_label", launch.ContextLabel)
	params.Set("launch_presentation_locale", launch.Locale)
	params.Set("launch_presentation_document_target", "iframe")
	params.Set("tool_consumer_instance_guid", launch.InstanceGUID)
	params.Set("tool_consumer_instance_name", launch.InstanceName)

	role := RoleLearner
	if launch.Staff {
		role = RoleInstructor
	}
	params.Set("roles", role)

	for key, value := range launch.Extra {
		params.Set(key, value)
	}

	return &Request{
		consumer: consumer,
		params:   params,
		now:      time.Now,
		nonce: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

// Parameters returns a copy of the unsigned launch parameters.
func (r *Request) Parameters() url.Values {
	return cloneValues(r.params)
}

// SignPostParameters returns the launch parameters plus the OAuth fields for a POST to target.
func (r *Request) SignPostParameters(target string) (url.Values, error) {
	return r.sign("POST", target)
}

// SignGetQuery returns target with the signed launch parameters appended to its query.
func (r *Request) SignGetQuery(target string) (string, error) {
	signed, err := r.sign("GET", target)
	if err != nil {
		return "", err
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid launch url: %w", err)
	}
	query := parsed.Query()
	for key, values := range signed {
		query[key] = values
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (r *Request) sign(method, target string) (url.Values, error) {
	params := cloneValues(r.params)
	params.Set("oauth_consumer_key", r.consumer.Key)
	params.Set("oauth_signature_method", "HMAC-SHA1")
	params.Set("oauth_timestamp", strconv.FormatInt(r.now().Unix(), 10))
	params.Set("oauth_nonce", r.nonce())
	params.Set("oauth_version", "1.0")
	params.Set("oauth_callback", "about:blank")

	signature, err := Signature(method, target, params, r.consumer.Secret, "")
	if err != nil {
		return nil, err
	}
	params.Set("oauth_signature", signature)
	return params, nil
}

// Signature computes the OAuth 1.0a HMAC-SHA1 signature of a request. Query parameters
// already present in target are part of the signed parameter set.
func Signature(method, target string, params url.Values, consumerSecret, tokenSecret string) (string, error) {
	base, err := BaseString(method, target, params)
	if err != nil {
		return "", err
	}

	key := percentEncode(consumerSecret) + "&" + percentEncode(tokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether the oauth_signature in params matches the request.
func Verify(method, target string, params url.Values, consumerSecret string) bool {
	presented := params.Get("oauth_signature")
	if presented == "" {
		return false
	}
	unsigned := cloneValues(params)
	unsigned.Del("oauth_signature")

	expected, err := Signature(method, target, unsigned, consumerSecret, "")
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(presented))
}

// BaseString builds the OAuth signature base string.
func BaseString(method, target string, params url.Values) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid launch url: %w", err)
	}

	all := cloneValues(params)
	for key, values := range parsed.Query() {
		all[key] = append(all[key], values...)
	}

	pairs := make([]string, 0, len(all))
	for key, values := range all {
		if key == "oauth_signature" {
			continue
		}
		for _, value := range values {
			pairs = append(pairs, percentEncode(key)+"="+percentEncode(value))
		}
	}
	sort.Strings(pairs)

	return strings.ToUpper(method) + "&" +
		percentEncode(normalizedURL(parsed)) + "&" +
		percentEncode(strings.Join(pairs, "&")), nil
}

func normalizedURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host = host + ":" + port
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

func percentEncode(value string) string {
	encoded := url.QueryEscape(value)
	encoded = strings.ReplaceAll(encoded, "+", "%20")
	return encoded
}

func cloneValues(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for key, items := range values {
		out[key] = append([]string(nil), items...)
	}
	return out
}

// SameDomain reports whether two URLs share scheme and host.
func SameDomain(a, b string) bool {
	left, err := url.Parse(a)
	if err != nil {
		return false
	}
	right, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(left.Scheme, right.Scheme) && strings.EqualFold(left.Host, right.Host)
}
