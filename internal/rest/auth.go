package rest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

// Auth signs private REST requests. The signature is an HMAC-SHA256 over
// timestamp, method, path and body, hex encoded.
type Auth struct {
	clientID  string
	apiSecret string
	now       func() time.Time
}

// NewAuth returns a signer for the given credentials.
func NewAuth(clientID, apiSecret string) *Auth {
	return &Auth{clientID: clientID, apiSecret: apiSecret, now: time.Now}
}

// Apply adds the authentication headers to req. body must be the exact bytes
// sent as the request payload, nil for body-less requests.
func (a *Auth) Apply(req *http.Request, body []byte) {
	timestamp := strconv.FormatInt(a.now().UnixMilli(), 10)
	req.Header.Set("x-auth-apikey", a.clientID)
	req.Header.Set("x-auth-timestamp", timestamp)
	req.Header.Set("x-auth-signature", a.sign(timestamp, req.Method, req.URL.RequestURI(), body))
}

func (a *Auth) sign(timestamp, method, requestURI string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(a.apiSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(method))
	mac.Write([]byte(requestURI))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
