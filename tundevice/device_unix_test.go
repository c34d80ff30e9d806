//go:build unix

package tundevice

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestDevice_Detach(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()

	cleanups := 0
	d := NewDevice("tun7", r, func() error {
		cleanups++
		return nil
	})

	fd, err := d.Detach()
	require.NoError(t, err)
	defer unix.Close(fd)

	// The duplicate still reads from the pipe
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	buf := make([]byte, 1)
	n, err := unix.Read(fd, buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Host cleanup belongs to the new owner
	require.NoError(t, d.Close())
	assert.Equal(t, 0, cleanups)

	_, err = d.Detach()
	assert.Error(t, err)
}
