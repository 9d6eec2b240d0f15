package http

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	neturl "net/url"
	"strings"
)

// DigestCredentials answers an RFC 7616 challenge with MD5.
type DigestCredentials struct {
	Username string
	Password string
}

type digestChallenge struct {
	Realm  string
	Nonce  string
	Qop    string
	Opaque string
}

// ParseWWWAuthenticate splits a Digest challenge into its parameters.
func ParseWWWAuthenticate(header string) map[string]string {
	result := make(map[string]string)
	header = strings.TrimSpace(header)
	if len(header) >= 7 && strings.EqualFold(header[:7], "digest ") {
		header = header[7:]
	}

	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if idx := strings.Index(part, "="); idx != -1 {
			key := strings.TrimSpace(part[:idx])
			result[key] = strings.Trim(strings.TrimSpace(part[idx+1:]), `"`)
		}
	}
	return result
}

// Authorize builds the Authorization header for one retry of the request.
func (d *DigestCredentials) Authorize(method, rawURL, challenge string) (string, error) {
	params := ParseWWWAuthenticate(challenge)
	ch := digestChallenge{
		Realm:  params["realm"],
		Nonce:  params["nonce"],
		Qop:    params["qop"],
		Opaque: params["opaque"],
	}
	if ch.Nonce == "" {
		return "", fmt.Errorf("digest challenge has no nonce")
	}

	uri := rawURL
	if u, err := neturl.Parse(rawURL); err == nil {
		uri = u.RequestURI()
	}

	var nc, cnonce string
	if ch.Qop != "" {
		nc = "00000001"
		var err error
		cnonce, err = generateCnonce()
		if err != nil {
			return "", err
		}
		if strings.Contains(ch.Qop, "auth") {
			ch.Qop = "auth"
		}
	}

	ha1 := md5Hash(d.Username + ":" + ch.Realm + ":" + d.Password)
	ha2 := md5Hash(method + ":" + uri)
	var response string
	if ch.Qop != "" {
		response = md5Hash(strings.Join([]string{ha1, ch.Nonce, nc, cnonce, ch.Qop, ha2}, ":"))
	} else {
		response = md5Hash(ha1 + ":" + ch.Nonce + ":" + ha2)
	}

	parts := []string{
		fmt.Sprintf(`username="%s"`, d.Username),
		fmt.Sprintf(`realm="%s"`, ch.Realm),
		fmt.Sprintf(`nonce="%s"`, ch.Nonce),
		fmt.Sprintf(`uri="%s"`, uri),
		fmt.Sprintf(`response="%s"`, response),
	}
	if ch.Qop != "" {
		parts = append(parts, "qop="+ch.Qop, "nc="+nc, fmt.Sprintf(`cnonce="%s"`, cnonce))
	}
	if ch.Opaque != "" {
		parts = append(parts, fmt.Sprintf(`opaque="%s"`, ch.Opaque))
	}
	return "Digest " + strings.Join(parts, ", "), nil
}

func generateCnonce() (string, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func md5Hash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
