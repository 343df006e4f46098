package openpayments

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const signatureLabel = "sig1"

// ErrInvalidSignature is returned by VerifyRequest.
var ErrInvalidSignature = errors.New("invalid http message signature")

// signRequest adds Content-Digest, Signature-Input and Signature headers
// covering the method, target URI, authorization and body headers.
func signRequest(req *http.Request, body []byte, id *Identity, created time.Time) {
	components := []string{"@method", "@target-uri"}
	if req.Header.Get("Authorization") != "" {
		components = append(components, "authorization")
	}
	if len(body) > 0 {
		req.Header.Set("Content-Digest", contentDigest(body))
		components = append(components, "content-digest", "content-length", "content-type")
	}

	params := signatureParams(components, created.Unix(), id.KeyID)
	base := signatureBase(req, req.URL.String(), body, components, params)
	sig := ed25519.Sign(id.PrivateKey, []byte(base))

	req.Header.Set("Signature-Input", signatureLabel+"="+params)
	req.Header.Set("Signature", signatureLabel+"=:"+base64.StdEncoding.EncodeToString(sig)+":")
}

// VerifyRequest checks the signature of an inbound request produced by a
// Client. body must be the full request body already read from r.
func VerifyRequest(r *http.Request, body []byte, pub ed25519.PublicKey) error {
	input := r.Header.Get("Signature-Input")
	params, ok := strings.CutPrefix(input, signatureLabel+"=")
	if !ok {
		return fmt.Errorf("%w: missing Signature-Input", ErrInvalidSignature)
	}
	end := strings.Index(params, ")")
	if !strings.HasPrefix(params, "(") || end < 0 {
		return fmt.Errorf("%w: malformed Signature-Input", ErrInvalidSignature)
	}
	var components []string
	for _, c := range strings.Fields(params[1:end]) {
		components = append(components, strings.Trim(c, `"`))
	}

	raw := r.Header.Get("Signature")
	encoded, ok := strings.CutPrefix(raw, signatureLabel+"=:")
	if !ok || !strings.HasSuffix(encoded, ":") {
		return fmt.Errorf("%w: malformed Signature", ErrInvalidSignature)
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSuffix(encoded, ":"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if len(body) > 0 && r.Header.Get("Content-Digest") != contentDigest(body) {
		return fmt.Errorf("%w: content digest mismatch", ErrInvalidSignature)
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	target := scheme + "://" + r.Host + r.URL.RequestURI()
	base := signatureBase(r, target, body, components, params)
	if !ed25519.Verify(pub, []byte(base), sig) {
		return fmt.Errorf("%w: verification failed", ErrInvalidSignature)
	}
	return nil
}

func signatureParams(components []string, created int64, keyID string) string {
	quoted := make([]string, len(components))
	for i, c := range components {
		quoted[i] = strconv.Quote(c)
	}
	return fmt.Sprintf("(%s);created=%d;keyid=%q", strings.Join(quoted, " "), created, keyID)
}

func signatureBase(r *http.Request, target string, body []byte, components []string, params string) string {
	var b strings.Builder
	for _, c := range components {
		var value string
		switch c {
		case "@method":
			value = r.Method
		case "@target-uri":
			value = target
		case "content-length":
			value = strconv.Itoa(len(body))
		default:
			value = r.Header.Get(c)
		}
		fmt.Fprintf(&b, "%q: %s\n", c, value)
	}
	fmt.Fprintf(&b, "%q: %s", "@signature-params", params)
	return b.String()
}

func contentDigest(body []byte) string {
	sum := sha512.Sum512(body)
	return "sha-512=:" + base64.StdEncoding.EncodeToString(sum[:]) + ":"
}
