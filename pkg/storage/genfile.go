package storage

import (
	"bufio"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

const alphanumerics = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const generateBlock = 1 << 20

// Generate writes sizeMB mebibytes of random alphanumeric content to path,
// creating parent directories as needed.
func Generate(path string, sizeMB int) error {
	return GenerateBytes(path, int64(sizeMB)<<20)
}

// GenerateBytes writes exactly n random alphanumeric bytes to path. Content
// is produced in one mebibyte blocks so large files never sit in memory.
func GenerateBytes(path string, n int64) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	w := bufio.NewWriterSize(f, generateBlock)
	block := make([]byte, generateBlock)
	for n > 0 {
		size := int64(len(block))
		if n < size {
			size = n
		}
		for i := int64(0); i < size; i++ {
			block[i] = alphanumerics[rng.Intn(len(alphanumerics))]
		}
		if _, err := w.Write(block[:size]); err != nil {
			return err
		}
		n -= size
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}
