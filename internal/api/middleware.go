package api

import (
	"bytes"
	"crypto/hmac"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/nimbusapi/nimbus-sdk-go/internal/errors"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/core"
)

// maxClockSkew bounds how far a signed request's date may drift from
// server time before the signature is rejected.
const maxClockSkew = 15 * time.Minute

// RequestLogger returns a middleware that logs each request
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Debug("request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// CORS returns a middleware that handles CORS
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, x-ms-date, x-ms-content-sha256, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// Recovery returns a middleware that recovers from panics
func Recovery() gin.HandlerFunc {
	return gin.Recovery()
}

// SharedKeyAuth returns a middleware that verifies the HMAC-SHA256 request
// signature against cred. The request body is restored after hashing so
// handlers can still read it.
func SharedKeyAuth(cred *core.KeyCredential) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := verifySignature(c.Request, cred); err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func verifySignature(r *http.Request, cred *core.KeyCredential) error {
	credentialID, signature, err := core.ParseAuthorization(r.Header.Get(core.HeaderAuthorization))
	if err != nil {
		return apperrors.NewUnauthorizedError("invalid authorization header")
	}
	if credentialID != cred.ID() {
		return apperrors.NewUnauthorizedError("unknown credential")
	}

	dateHeader := r.Header.Get(core.HeaderDate)
	date, err := time.Parse(http.TimeFormat, dateHeader)
	if err != nil {
		return apperrors.NewUnauthorizedError("invalid request date")
	}
	if skew := time.Since(date); skew > maxClockSkew || skew < -maxClockSkew {
		return apperrors.NewUnauthorizedError("request date outside allowed window")
	}

	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return apperrors.NewBadRequestError("unreadable request body")
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}
	if core.ComputeContentHash(body) != r.Header.Get(core.HeaderContentHash) {
		return apperrors.NewUnauthorizedError("content hash mismatch")
	}

	stringToSign := core.BuildStringToSign(r.Method, r.URL.RequestURI(), dateHeader, r.Host, r.Header.Get(core.HeaderContentHash))
	expected := cred.ComputeSignature(stringToSign)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return apperrors.NewUnauthorizedError("signature mismatch")
	}
	return nil
}
