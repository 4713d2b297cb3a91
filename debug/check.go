package debug

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// CheckSum is the hex SHA-256 of an emitted image, logged after each build so
// two runs can be compared.
func CheckSum(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}

// HexDump writes b in `hexdump -C` layout.
func HexDump(w io.Writer, b []byte) error {
	d := hex.Dumper(w)
	if _, err := d.Write(b); err != nil {
		return err
	}
	return d.Close()
}
