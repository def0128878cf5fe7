package dump

import (
	"bytes"
	"context"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type (
	// Exporter writes a data snapshot.
	Exporter interface {
		Export(ctx context.Context, w io.Writer) error
	}
	// Importer loads a data snapshot.
	Importer interface {
		Import(ctx context.Context, r io.Reader) error
	}
)

// FileType is the detected content type of an import file.
type FileType int

const (
	TypeUnknown FileType = iota
	TypeJSON
	TypeSQL
	TypeZIP
)

func (t FileType) String() string {
	switch t {
	case TypeJSON:
		return "json"
	case TypeSQL:
		return "sql"
	case TypeZIP:
		return "zip"
	default:
		return "unknown"
	}
}

const sniffLen = 512

var (
	zipMagic    = []byte("PK\x03\x04")
	sqlKeywords = [][]byte{
		[]byte("--"), []byte("/*"),
		[]byte("BEGIN"), []byte("CREATE"), []byte("INSERT"), []byte("PRAGMA"),
		[]byte("SET"), []byte("SELECT"), []byte("DROP"), []byte("ALTER"), []byte("COPY"),
	}
)

// DetectType inspects the head of r.
func DetectType(r io.Reader) (FileType, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return TypeUnknown, err
	}
	return detect(head[:n]), nil
}

// DetectFile inspects the head of the file at path.
func DetectFile(path string) (FileType, error) {
	f, err := os.Open(path)
	if err != nil {
		return TypeUnknown, err
	}
	defer f.Close()
	return DetectType(f)
}

func detect(head []byte) FileType {
	if bytes.HasPrefix(head, zipMagic) {
		return TypeZIP
	}
	trimmed := bytes.TrimLeft(head, " \t\r\n\ufeff")
	if len(trimmed) == 0 {
		return TypeUnknown
	}
	if trimmed[0] == '[' || trimmed[0] == '{' {
		return TypeJSON
	}
	upper := bytes.ToUpper(trimmed)
	for _, kw := range sqlKeywords {
		if bytes.HasPrefix(upper, kw) {
			return TypeSQL
		}
	}
	return TypeUnknown
}
