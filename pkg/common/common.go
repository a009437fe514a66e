package common

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"

	"github.com/bwmarrin/snowflake"
)

const (
	ENABLED  = "enabled"
	DISABLED = "disabled"
)

var (
	snowflakeNode *snowflake.Node
	snowflakeOnce sync.Once
)

// UUIDint64 returns a process-unique int64 identifier.
func UUIDint64() int64 {
	snowflakeOnce.Do(func() {
		var err error
		snowflakeNode, err = snowflake.NewNode(1)
		if err != nil {
			panic(err)
		}
	})
	return snowflakeNode.Generate().Int64()
}

// UUID returns a process-unique string identifier.
func UUID() string {
	snowflakeOnce.Do(func() {
		var err error
		snowflakeNode, err = snowflake.NewNode(1)
		if err != nil {
			panic(err)
		}
	})
	return snowflakeNode.Generate().String()
}

// GetSecretSalt reads the password salt from the environment, falling back
// to a fixed development value.
func GetSecretSalt() string {
	salt := os.Getenv("WAPLEX_SECRET_SALT")
	if salt == "" {
		salt = "waplex-default-salt"
	}
	return salt
}

// Sha256HashWithSalt hashes src with the given salt appended.
func Sha256HashWithSalt(src, salt string) string {
	h := sha256.New()
	h.Write([]byte(src + salt))
	return hex.EncodeToString(h.Sum(nil))
}

// FileExists reports whether path exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
