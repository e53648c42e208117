package redisstore

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/MrEthical07/tokenguard/token"
)

// ErrCorruptRecord is returned when a stored hash cannot be decoded.
var ErrCorruptRecord = errors.New("corrupt refresh token record")

func decodeToken(f map[string]string) (*token.RefreshToken, error) {
	status, err := token.ParseStatus(f["status"])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	expires, err := parseMicros(f["expires"])
	if err != nil {
		return nil, err
	}
	created, err := parseMicros(f["created"])
	if err != nil {
		return nil, err
	}
	modified, err := parseMicros(f["modified"])
	if err != nil {
		return nil, err
	}

	t := &token.RefreshToken{
		ID:           f["id"],
		TokenHash:    f["hash"],
		UserID:       f["user"],
		DeviceID:     f["device"],
		Status:       status,
		ExpiresAt:    expires,
		ReplacedByID: f["replaced"],
		CreatedAt:    created,
		ModifiedAt:   modified,
	}
	if v := f["revoked"]; v != "" {
		revoked, err := parseMicros(v)
		if err != nil {
			return nil, err
		}
		t.RevokedAt = &revoked
	}
	if t.ID == "" || t.UserID == "" {
		return nil, ErrCorruptRecord
	}
	return t, nil
}

func parseMicros(v string) (time.Time, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return time.UnixMicro(n).UTC(), nil
}

func sortByCreated(ts []*token.RefreshToken) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].CreatedAt.Before(ts[j].CreatedAt) })
}
