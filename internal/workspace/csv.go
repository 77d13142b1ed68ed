package workspace

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// ReadRecords reads all CSV records, skipping a leading UTF-8 byte-order mark.
// Records may have differing field counts.
func ReadRecords(r io.Reader) ([][]string, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(byteOrderMark)); err == nil && bytes.Equal(head, byteOrderMark) {
		if _, err := br.Discard(len(byteOrderMark)); err != nil {
			return nil, err
		}
	}
	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader.ReadAll()
}

// WriteRecords writes a byte-order mark followed by the CSV records.
func WriteRecords(w io.Writer, records [][]string) error {
	if _, err := w.Write(byteOrderMark); err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(records); err != nil {
		return err
	}
	return writer.Error()
}
