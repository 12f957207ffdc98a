/*
Copyright © 2026 santistebanc
*/

package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// randomHex returns n crypto-random bytes hex-encoded, used for
// per-connection identifiers.
func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// randomCode returns an n-character code drawn from charset using
// rejection sampling to avoid modulo bias.
func randomCode(n int, charset string) string {
	maxByte := byte(255 - (256 % len(charset)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		for _, b := range buf {
			if b <= maxByte {
				out = append(out, charset[int(b)%len(charset)])
				if len(out) == n {
					return string(out)
				}
			}
		}
	}
}

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(bytes)/float64(div),
		"kMGTPE"[exp])
}
