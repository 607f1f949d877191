package checklist

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// canonicalString is the fixed-order, pipe-joined input of the integrity
// hash. The timestamp makes each finalization unique in practice; everything
// else ties the hash to who answered what, where, from which device.
func canonicalString(ts time.Time, actorID, unitID, templateID, scopeID, clientIP, deviceID string) string {
	return strings.Join([]string{
		ts.UTC().Format(time.RFC3339),
		actorID,
		unitID,
		templateID,
		scopeID,
		clientIP,
		deviceID,
	}, "|")
}

// integrityHash is the hex SHA-256 of the canonical string.
func integrityHash(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// protocolCode derives the human-readable finalization protocol:
// PREFIX-YYYYMMDD-<first 8 hash hex chars, uppercased>. Computed exactly once
// per finalization and stored; the later manager-signature addition never
// recomputes it.
func protocolCode(prefix string, ts time.Time, hash string) string {
	return prefix + "-" + ts.UTC().Format("20060102") + "-" + strings.ToUpper(hash[:8])
}
