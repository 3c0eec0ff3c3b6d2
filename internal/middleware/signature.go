package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marinapark/booking-backend/internal/clock"
	"github.com/marinapark/booking-backend/internal/dto"
	"github.com/marinapark/booking-backend/internal/provider"
)

// MaxSignatureSkew bounds how old a signed request may be.
const MaxSignatureSkew = 300 * time.Second

// VerifySignature authenticates provider-originated callbacks with the
// same timestamped HMAC scheme used for outbound requests: the MAC
// covers "<unix seconds>.<raw body>".
func VerifySignature(secret string, clk clock.Clock) gin.HandlerFunc {
	if clk == nil {
		clk = clock.New()
	}

	reject := func(c *gin.Context, msg string) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "unauthenticated",
			Code:    dto.CodeUnauthenticated,
			Message: msg,
		})
	}

	return func(c *gin.Context) {
		ts := c.GetHeader(provider.HeaderTimestamp)
		sig := c.GetHeader(provider.HeaderSignature)
		if ts == "" || sig == "" {
			reject(c, "missing signature headers")
			return
		}

		unix, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			reject(c, "malformed timestamp")
			return
		}
		now := clk.Now().Unix()
		if unix < now-int64(MaxSignatureSkew.Seconds()) || unix > now+int64(MaxSignatureSkew.Seconds()) {
			reject(c, "stale timestamp")
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			reject(c, "unreadable body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(ts))
		mac.Write([]byte("."))
		mac.Write(body)
		want := "sha256=" + hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(want), []byte(strings.TrimSpace(sig))) {
			reject(c, "signature mismatch")
			return
		}

		c.Next()
	}
}
