package util

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	r "math/rand"
	"os"
	"time"

	"github.com/vmihailenco/msgpack"
)

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func init() {
	r.Seed(time.Now().UnixNano())
}

// Map is a shorthand for map of string to interface
type Map map[string]interface{}

// RandString generates a random alphabetic string of the given length
func RandString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[r.Int63()%int64(len(letterBytes))]
	}
	return string(b)
}

// ToBytes returns msgpack encoded representation of s.
func ToBytes(s interface{}) []byte {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).
		SortMapKeys(true).
		UseCompactEncoding(true).
		Encode(s); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// ToObject decodes bytes produced by ToBytes into dest
func ToObject(bs []byte, dest interface{}) error {
	return msgpack.NewDecoder(bytes.NewBuffer(bs)).Decode(dest)
}

// ToHex encodes a byte slice to hex, optionally without a 0x prefix
func ToHex(bs []byte, noPrefix ...bool) string {
	if len(noPrefix) > 0 && noPrefix[0] {
		return hex.EncodeToString(bs)
	}
	return "0x" + hex.EncodeToString(bs)
}

// EncodeNumber serializes a number to BigEndian
func EncodeNumber(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

// DecodeNumber deserializes a number from BigEndian
func DecodeNumber(encNum []byte) uint64 {
	return binary.BigEndian.Uint64(encNum)
}

// MustToJSON converts the given obj to valid JSON. Panics if unsuccessful.
func MustToJSON(obj interface{}) string {
	res, err := json.Marshal(obj)
	if err != nil {
		panic(err)
	}
	return string(res)
}

// IsFileOk checks if a path exists and it is a regular file
func IsFileOk(path string) bool {
	s, err := os.Stat(path)
	if err != nil {
		return false
	}
	return s.Mode().IsRegular()
}
