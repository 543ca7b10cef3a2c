package dbn

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// DBN file layout: the magic "DBN", a version byte, a little-endian uint32
// metadata length, the metadata body padded to 8 bytes, then records back
// to back with no framing beyond their own headers.
const (
	fileMagic = "DBN"

	// DefaultSymbolCstrLen is the symbol field width used when the metadata
	// does not carry one.
	DefaultSymbolCstrLen = 71

	datasetCstrLen   = 16
	metadataReserved = 53
	metadataFixedLen = datasetCstrLen + 2 + 8 + 8 + 8 + 1 + 1 + 1 + 2 + metadataReserved + 4

	nullSchema = 0xFFFF
	nullSType  = 0xFF
)

// ErrNotDBN is returned when a stream does not start with the DBN magic.
var ErrNotDBN = errors.New("not a DBN stream")

// FileWriter writes a metadata preamble followed by encoded records. It is
// not safe for concurrent use.
type FileWriter struct {
	w       *bufio.Writer
	closer  io.Closer
	records uint64
}

// NewFileWriter writes the preamble for md to w. Records written later are
// re-encoded without the gateway send timestamp, so the preamble always
// declares ts_out false.
func NewFileWriter(w io.Writer, md *Metadata) (*FileWriter, error) {
	if md == nil {
		return nil, errors.New("dbn file: metadata is required")
	}
	pre, err := encodePreamble(md)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{w: bufio.NewWriter(w)}
	if _, err := fw.w.Write(pre); err != nil {
		return nil, fmt.Errorf("dbn file: write metadata: %w", err)
	}
	return fw, nil
}

// CreateFile creates (or truncates) path and writes the preamble for md.
// Close flushes and closes the file.
func CreateFile(path string, md *Metadata) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("dbn file: %w", err)
	}
	fw, err := NewFileWriter(f, md)
	if err != nil {
		f.Close()
		return nil, err
	}
	fw.closer = f
	return fw, nil
}

// Write encodes r and appends it.
func (fw *FileWriter) Write(r Record) error {
	buf, err := Encode(r)
	if err != nil {
		return fmt.Errorf("dbn file: %w", err)
	}
	return fw.write(buf)
}

// WriteRaw appends one record already in wire form. The header must
// declare the buffer's length.
func (fw *FileWriter) WriteRaw(data []byte) error {
	if len(data) < 16 || len(data)%4 != 0 || int(data[0])*4 != len(data) {
		return fmt.Errorf("dbn file: %w: %d bytes", ErrLengthMismatch, len(data))
	}
	return fw.write(data)
}

func (fw *FileWriter) write(buf []byte) error {
	if _, err := fw.w.Write(buf); err != nil {
		return fmt.Errorf("dbn file: write record: %w", err)
	}
	fw.records++
	return nil
}

// Records returns the number of records written.
func (fw *FileWriter) Records() uint64 { return fw.records }

// Flush writes buffered data to the underlying writer.
func (fw *FileWriter) Flush() error {
	if err := fw.w.Flush(); err != nil {
		return fmt.Errorf("dbn file: flush: %w", err)
	}
	return nil
}

// Close flushes and, for files opened by CreateFile, closes the file.
func (fw *FileWriter) Close() error {
	err := fw.Flush()
	if fw.closer != nil {
		if cerr := fw.closer.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("dbn file: close: %w", cerr)
		}
		fw.closer = nil
	}
	return err
}

func encodePreamble(md *Metadata) ([]byte, error) {
	cstrLen := int(md.SymbolCstrLen)
	if cstrLen == 0 {
		cstrLen = DefaultSymbolCstrLen
	}
	if len(md.Dataset) >= datasetCstrLen {
		return nil, fmt.Errorf("dbn file: dataset %q longer than %d bytes", md.Dataset, datasetCstrLen-1)
	}

	body := make([]byte, metadataFixedLen, 512)
	putCString(body[:datasetCstrLen], md.Dataset)
	off := datasetCstrLen
	schema := uint16(nullSchema)
	if md.Schema != nil {
		schema = uint16(*md.Schema)
	}
	binary.LittleEndian.PutUint16(body[off:], schema)
	binary.LittleEndian.PutUint64(body[off+2:], md.Start)
	binary.LittleEndian.PutUint64(body[off+10:], md.End)
	binary.LittleEndian.PutUint64(body[off+18:], md.Limit)
	off += 26
	body[off] = nullSType
	if md.STypeIn != nil {
		body[off] = uint8(*md.STypeIn)
	}
	body[off+1] = uint8(md.STypeOut)
	body[off+2] = 0 // ts_out
	binary.LittleEndian.PutUint16(body[off+3:], uint16(cstrLen))
	// reserved bytes and a zero schema definition length follow

	var err error
	for _, list := range [][]string{md.Symbols, md.Partial, md.NotFound} {
		if body, err = appendSymbols(body, list, cstrLen); err != nil {
			return nil, err
		}
	}
	body = binary.LittleEndian.AppendUint32(body, uint32(len(md.Mappings)))
	for _, m := range md.Mappings {
		if body, err = appendSymbol(body, m.RawSymbol, cstrLen); err != nil {
			return nil, err
		}
		body = binary.LittleEndian.AppendUint32(body, uint32(len(m.Intervals)))
		for _, iv := range m.Intervals {
			start, err := packDate(iv.StartDate)
			if err != nil {
				return nil, err
			}
			end, err := packDate(iv.EndDate)
			if err != nil {
				return nil, err
			}
			body = binary.LittleEndian.AppendUint32(body, start)
			body = binary.LittleEndian.AppendUint32(body, end)
			if body, err = appendSymbol(body, iv.Symbol, cstrLen); err != nil {
				return nil, err
			}
		}
	}
	for (len(body)+8)%8 != 0 {
		body = append(body, 0)
	}

	version := md.Version
	if version == 0 {
		version = 3
	}
	out := make([]byte, 0, 8+len(body))
	out = append(out, fileMagic...)
	out = append(out, version)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...), nil
}

func appendSymbols(dst []byte, symbols []string, cstrLen int) ([]byte, error) {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(symbols)))
	var err error
	for _, s := range symbols {
		if dst, err = appendSymbol(dst, s, cstrLen); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func appendSymbol(dst []byte, s string, cstrLen int) ([]byte, error) {
	if len(s) >= cstrLen {
		return nil, fmt.Errorf("dbn file: symbol %q longer than %d bytes", s, cstrLen-1)
	}
	n := len(dst)
	dst = append(dst, make([]byte, cstrLen)...)
	copy(dst[n:], s)
	return dst, nil
}

// packDate turns YYYY-MM-DD into the YYYYMMDD integer form. An empty date
// packs to 0.
func packDate(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return 0, fmt.Errorf("dbn file: mapping date: %w", err)
	}
	return uint32(d.Year()*10000 + int(d.Month())*100 + d.Day()), nil
}

func unpackDate(v uint32) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", v/10000, v/100%100, v%100)
}

// FileReader reads what FileWriter writes.
type FileReader struct {
	r  *bufio.Reader
	md *Metadata
}

// NewFileReader reads and parses the preamble from r.
func NewFileReader(r io.Reader) (*FileReader, error) {
	br := bufio.NewReader(r)
	var prefix [8]byte
	if _, err := io.ReadFull(br, prefix[:]); err != nil {
		return nil, fmt.Errorf("dbn file: read prefix: %w", err)
	}
	if string(prefix[:3]) != fileMagic {
		return nil, ErrNotDBN
	}
	body := make([]byte, binary.LittleEndian.Uint32(prefix[4:]))
	if _, err := io.ReadFull(br, body); err != nil {
		return nil, fmt.Errorf("dbn file: read metadata: %w", err)
	}
	md, err := decodePreamble(prefix[3], body)
	if err != nil {
		return nil, err
	}
	return &FileReader{r: br, md: md}, nil
}

// Metadata returns the parsed preamble.
func (fr *FileReader) Metadata() *Metadata { return fr.md }

// Next returns the next record, or io.EOF after the last one.
func (fr *FileReader) Next() (Record, error) {
	head, err := fr.r.Peek(2)
	if err == io.EOF && len(head) == 0 {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("dbn file: read header: %w", io.ErrUnexpectedEOF)
	}
	if head[0] < 4 {
		return nil, fmt.Errorf("dbn file: %w: header declares %d bytes", ErrLengthMismatch, int(head[0])*4)
	}
	buf := make([]byte, int(head[0])*4)
	if _, err := io.ReadFull(fr.r, buf); err != nil {
		return nil, fmt.Errorf("dbn file: read record: %w", io.ErrUnexpectedEOF)
	}
	return Decode(buf, RType(head[1]))
}

type preambleReader struct {
	buf []byte
	err error
}

func (p *preambleReader) take(n int) []byte {
	if p.err != nil {
		return make([]byte, n)
	}
	if len(p.buf) < n {
		p.err = fmt.Errorf("dbn file: metadata truncated: %w", io.ErrUnexpectedEOF)
		return make([]byte, n)
	}
	b := p.buf[:n]
	p.buf = p.buf[n:]
	return b
}

func (p *preambleReader) u32() uint32 { return binary.LittleEndian.Uint32(p.take(4)) }

func (p *preambleReader) symbols(cstrLen int) []string {
	n := int(p.u32())
	out := make([]string, 0, min(n, 1024))
	for i := 0; i < n && p.err == nil; i++ {
		out = append(out, cString(p.take(cstrLen)))
	}
	return out
}

func decodePreamble(version uint8, body []byte) (*Metadata, error) {
	p := &preambleReader{buf: body}
	fixed := p.take(metadataFixedLen)
	if p.err != nil {
		return nil, p.err
	}

	md := &Metadata{
		Version: version,
		Dataset: cString(fixed[:datasetCstrLen]),
	}
	off := datasetCstrLen
	if s := binary.LittleEndian.Uint16(fixed[off:]); s != nullSchema {
		schema := Schema(s)
		md.Schema = &schema
	}
	md.Start = binary.LittleEndian.Uint64(fixed[off+2:])
	md.End = binary.LittleEndian.Uint64(fixed[off+10:])
	md.Limit = binary.LittleEndian.Uint64(fixed[off+18:])
	off += 26
	if fixed[off] != nullSType {
		st := SType(fixed[off])
		md.STypeIn = &st
	}
	md.STypeOut = SType(fixed[off+1])
	md.TsOut = fixed[off+2] != 0
	md.SymbolCstrLen = binary.LittleEndian.Uint16(fixed[off+3:])
	if def := binary.LittleEndian.Uint32(fixed[metadataFixedLen-4:]); def != 0 {
		p.take(int(def))
	}

	cstrLen := int(md.SymbolCstrLen)
	md.Symbols = p.symbols(cstrLen)
	md.Partial = p.symbols(cstrLen)
	md.NotFound = p.symbols(cstrLen)
	n := int(p.u32())
	for i := 0; i < n && p.err == nil; i++ {
		m := SymbolMapping{RawSymbol: cString(p.take(cstrLen))}
		k := int(p.u32())
		for j := 0; j < k && p.err == nil; j++ {
			m.Intervals = append(m.Intervals, MappingInterval{
				StartDate: unpackDate(p.u32()),
				EndDate:   unpackDate(p.u32()),
				Symbol:    cString(p.take(cstrLen)),
			})
		}
		md.Mappings = append(md.Mappings, m)
	}
	if p.err != nil {
		return nil, p.err
	}
	if md.TsOut {
		return nil, errors.New("dbn file: records with a send timestamp suffix are not supported")
	}
	return md, nil
}
