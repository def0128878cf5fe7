package backend

import (
	"bufio"
	"bytes"
	"io"
	"os"
)

const compareChunkSize = 32 * 1024

// sameContent compares both readers byte by byte.
func sameContent(a, b io.Reader) (bool, error) {
	ba := make([]byte, compareChunkSize)
	bb := make([]byte, compareChunkSize)
	ra := bufio.NewReaderSize(a, compareChunkSize)
	rb := bufio.NewReaderSize(b, compareChunkSize)
	for {
		na, errA := io.ReadFull(ra, ba)
		nb, errB := io.ReadFull(rb, bb)
		if !bytes.Equal(ba[:na], bb[:nb]) {
			return false, nil
		}
		endA := errA == io.EOF || errA == io.ErrUnexpectedEOF
		endB := errB == io.EOF || errB == io.ErrUnexpectedEOF
		if errA != nil && !endA {
			return false, errA
		}
		if errB != nil && !endB {
			return false, errB
		}
		if endA || endB {
			return endA == endB, nil
		}
	}
}

// sameFile compares the contents of two files.
func sameFile(a, b string) (bool, error) {
	fa, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer fa.Close()

	fb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer fb.Close()

	sa, err := fa.Stat()
	if err != nil {
		return false, err
	}
	sb, err := fb.Stat()
	if err != nil {
		return false, err
	}
	if sa.Size() != sb.Size() {
		return false, nil
	}
	return sameContent(fa, fb)
}

// sameAsFile compares r with the contents of file.
func sameAsFile(r io.Reader, file string) (bool, error) {
	f, err := os.Open(file)
	if err != nil {
		return false, err
	}
	defer f.Close()
	return sameContent(r, f)
}
