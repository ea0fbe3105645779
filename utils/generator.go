package utils

import (
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const objectKeySuffixLength = 8
const letterBytes = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateObjectKey builds a storage key for an uploaded attachment,
// keeping the original extension but none of the client-supplied name.
func GenerateObjectKey(filename string) string {
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))

	b := make([]byte, objectKeySuffixLength)
	for i := range b {
		b[i] = letterBytes[seededRand.Intn(len(letterBytes))]
	}

	ext := strings.ToLower(filepath.Ext(filename))
	return uuid.New().String() + "_" + string(b) + ext
}
