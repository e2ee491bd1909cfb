package randutil

import (
	"math/rand"
	"time"
)

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var rnd = rand.New(rand.NewSource(time.Now().UnixNano()))

func Int63n() int64 {
	return rnd.Int63()
}

func Uint64n() uint64 {
	return rnd.Uint64()
}

// StringN returns a random alphanumeric string of length n.
func StringN(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rnd.Intn(len(letters))]
	}
	return string(b)
}
