package cryptoutil

import (
	"io"

	"github.com/minio/sio"
)

// EncryptReader returns a reader producing the DARE (sio) encryption of r.
func EncryptReader(r io.Reader, key []byte) (io.Reader, error) {
	return sio.EncryptReader(r, sio.Config{Key: key})
}
