package wheel

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// One row of a RECORD file.
type RecordEntry struct {
	Path string // Path relative to the install root, slash separated.
	Hash string // "sha256=<urlsafe base64 without padding>", empty for RECORD itself.
	Size int64  // Size in bytes, -1 when unknown.
}

// Parses a RECORD file.
func ParseRecord(r io.Reader) ([]RecordEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var out []RecordEntry
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: RECORD: %v", ErrMalformed, err)
		}
		if len(row) == 0 || row[0] == "" {
			continue
		}
		if len(row) != 3 {
			return nil, fmt.Errorf("%w: RECORD row %q", ErrMalformed, strings.Join(row, ","))
		}

		e := RecordEntry{Path: row[0], Hash: row[1], Size: -1}
		if row[2] != "" {
			size, err := strconv.ParseInt(row[2], 10, 64)
			if err != nil || size < 0 {
				return nil, fmt.Errorf("%w: RECORD size %q for %s", ErrMalformed, row[2], row[0])
			}
			e.Size = size
		}
		out = append(out, e)
	}
}

// Writes entries in RECORD format.
func WriteRecord(w io.Writer, entries []RecordEntry) error {
	cw := csv.NewWriter(w)
	for _, e := range entries {
		size := ""
		if e.Size >= 0 {
			size = strconv.FormatInt(e.Size, 10)
		}
		if err := cw.Write([]string{e.Path, e.Hash, size}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Returns the RECORD hash of body.
func HashOf(body []byte) string {
	sum := sha256.Sum256(body)
	return "sha256=" + base64.RawURLEncoding.EncodeToString(sum[:])
}

// Computes the RECORD hash and size of everything read from r.
func hashReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	return "sha256=" + base64.RawURLEncoding.EncodeToString(h.Sum(nil)), n, nil
}
