package proxy

import (
	"encoding/hex"
	"net/http"
	"time"

	"github.com/eternisai/cursor-bridge/internal/clock"
	"github.com/eternisai/cursor-bridge/internal/errors"
	"github.com/eternisai/cursor-bridge/internal/token"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Utility generators mirroring the device identity material the pool
// creates, handy when wiring credentials by hand.

// GenUUID handles GET /gen/uuid.
func (s *Server) GenUUID(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"uuid": uuid.NewString()})
}

// GenHash handles GET /gen/hash: a fresh 64-hex client key.
func (s *Server) GenHash(c *gin.Context) {
	key := token.NewClientKey()
	c.JSON(http.StatusOK, gin.H{"hash": hex.EncodeToString(key[:])})
}

// GenChecksum handles GET /gen/checksum: a device checksum in the
// upstream's format.
func (s *Server) GenChecksum(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"checksum": token.NewChecksum()})
}

type ntpSyncRequest struct {
	// OffsetMillis is the externally measured clock correction; the NTP
	// measurement itself happens outside the core.
	OffsetMillis int64 `json:"offset_millis"`
}

// NtpSync handles POST /ntp/sync: store the measured skew delta.
func (s *Server) NtpSync(c *gin.Context) {
	var req ntpSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.AbortWithBadRequest(c, "invalid request body", nil)
		return
	}
	clock.SetSkew(time.Duration(req.OffsetMillis) * time.Millisecond)
	c.JSON(http.StatusOK, gin.H{
		"skew_millis": clock.Skew().Milliseconds(),
		"now":         clock.LocalTimestamp(),
	})
}
