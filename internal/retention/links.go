// Package retention generates encrypted cancellation links and splices them
// into generated replies for retention-category requests.
package retention

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// DefaultBaseURL is the customer-facing cancellation endpoint.
const DefaultBaseURL = "https://levhaolam.com/pay/subscriptions/cancel"

type linkPayload struct {
	SubscriptionID string `json:"subscription_id"`
	Email          string `json:"email"`
}

// LinkGenerator mints AES-256-GCM encrypted cancellation tokens. The key is
// derived from a shared password with SHA-256, matching the format the
// cancellation page expects.
type LinkGenerator struct {
	baseURL string
	key     []byte
}

// NewLinkGenerator creates a generator from the shared link password.
// An empty password yields a generator whose CancelLink always returns "",
// which downstream treats as "no link available".
func NewLinkGenerator(password, baseURL string) *LinkGenerator {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	g := &LinkGenerator{baseURL: baseURL}
	if password != "" {
		sum := sha256.Sum256([]byte(password))
		g.key = sum[:]
	}
	return g
}

// CancelLink returns the full cancellation URL with an encrypted token, or ""
// when no key is configured.
func (g *LinkGenerator) CancelLink(subscriptionRef, email string) (string, error) {
	if g.key == nil {
		return "", nil
	}

	payload, err := json.Marshal(linkPayload{SubscriptionID: subscriptionRef, Email: email})
	if err != nil {
		return "", fmt.Errorf("marshal link payload: %w", err)
	}

	block, err := aes.NewCipher(g.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, payload, nil)
	token := base64.URLEncoding.EncodeToString(append(nonce, sealed...))

	return g.baseURL + "?al=" + token, nil
}

// decodeToken is the inverse of CancelLink's token encoding, used in tests to
// verify the round trip.
func (g *LinkGenerator) decodeToken(token string) (subscriptionRef, email string, err error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", "", fmt.Errorf("decode token: %w", err)
	}

	block, err := aes.NewCipher(g.key)
	if err != nil {
		return "", "", err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", "", fmt.Errorf("token too short")
	}

	plain, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		return "", "", fmt.Errorf("open token: %w", err)
	}

	var p linkPayload
	if err := json.Unmarshal(plain, &p); err != nil {
		return "", "", fmt.Errorf("unmarshal payload: %w", err)
	}
	return p.SubscriptionID, p.Email, nil
}

var cancelPhraseRe = regexp.MustCompile(`(?i)(cancellation page|cancel page|cancellation link|cancel link)`)

// InjectCancelLink substitutes cancel-link placeholders in a reply with the
// actual URL. When the reply carries no placeholder, the first generic
// "cancellation page" style phrase is linked instead.
func InjectCancelLink(reply, cancelURL string) string {
	// Double-brace form first, or the single-brace pass leaves stray braces.
	result := strings.ReplaceAll(reply, "[CANCEL_LINK]", cancelURL)
	result = strings.ReplaceAll(result, "{{cancel_link}}", cancelURL)
	result = strings.ReplaceAll(result, "{cancel_link}", cancelURL)

	if !strings.Contains(result, cancelURL) {
		replaced := false
		result = cancelPhraseRe.ReplaceAllStringFunc(result, func(m string) string {
			if replaced {
				return m
			}
			replaced = true
			return fmt.Sprintf(`<a href="%s">cancellation page</a>`, cancelURL)
		})
	}
	return result
}
