package blobstore

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"sync/atomic"
	"time"
)

// IDLength is the length of a blob id in hex characters.
const IDLength = 24

var (
	machineID = readMachineID()
	counter   = readRandomUint32()
)

func readMachineID() [3]byte {
	var mid [3]byte
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		_, _ = io.ReadFull(rand.Reader, mid[:])
		return mid
	}
	hw := make([]byte, 32)
	copy(hw, hostname)
	copy(mid[:], hw[:3])
	return mid
}

func readRandomUint32() uint32 {
	var b [4]byte
	_, _ = io.ReadFull(rand.Reader, b[:])
	return binary.BigEndian.Uint32(b[:])
}

// newID returns a fresh 12-byte id as 24 lowercase hex characters.
// Layout: 4 bytes unix seconds, 3 bytes machine, 2 bytes pid, 3 bytes counter.
func newID() string {
	var id [12]byte
	binary.BigEndian.PutUint32(id[0:4], uint32(time.Now().Unix()))
	copy(id[4:7], machineID[:])
	binary.BigEndian.PutUint16(id[7:9], uint16(os.Getpid()))
	c := atomic.AddUint32(&counter, 1)
	id[9] = byte(c >> 16)
	id[10] = byte(c >> 8)
	id[11] = byte(c)
	return hex.EncodeToString(id[:])
}

// ValidID reports whether id has the shape of a blob id.
func ValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
