package snapshot

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/libraz/mygramdb-go/internal/tablectx"
)

// dumpMagic/dumpVersion tag the binary layout so LOAD can refuse a dump from
// an incompatible build rather than silently misinterpreting it.
const (
	dumpMagic   = "MYGRAMDUMP"
	dumpVersion = uint32(1)
)

// PositionSource supplies the replication position a dump's header records,
// and is seeded back from it on LOAD (the replication applier, in
// production).
type PositionSource interface {
	CurrentPosition() string
	SetPosition(pos string)
}

// Dump implements the server.Persister port: SAVE/LOAD write and read a
// single length-prefixed binary file with a header containing the
// replication start position, followed by each table's document store and
// inverted index, serialized directly from their internal tables rather
// than by re-tokenizing text the index never retains.
type Dump struct {
	tables     func(name string) (*tablectx.Context, bool)
	tableNames func() []string
	position   PositionSource
	baseDir    string
}

// NewDump builds a Dump persister that writes/reads files under dir.
func NewDump(tables func(name string) (*tablectx.Context, bool), tableNames func() []string, position PositionSource, dir string) *Dump {
	return &Dump{tables: tables, tableNames: tableNames, position: position, baseDir: dir}
}

// Save writes a full dump to a timestamped file under the configured
// directory and returns its path.
func (d *Dump) Save() (string, error) {
	if err := os.MkdirAll(d.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("create dump directory: %w", err)
	}
	path := filepath.Join(d.baseDir, fmt.Sprintf("mygramdb-%s.dump", time.Now().UTC().Format("20060102-150405")))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create dump file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := d.writeTo(w); err != nil {
		return "", err
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush dump file: %w", err)
	}
	return path, nil
}

// Load restores the most recently written dump under the configured
// directory and returns its path. Every table context named in the dump
// must already exist (created from configuration) and is cleared before
// restore.
func (d *Dump) Load() (string, error) {
	path, err := d.latestDumpPath()
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open dump file: %w", err)
	}
	defer f.Close()

	if err := d.readFrom(bufio.NewReader(f)); err != nil {
		return "", err
	}
	return path, nil
}

func (d *Dump) latestDumpPath() (string, error) {
	entries, err := os.ReadDir(d.baseDir)
	if err != nil {
		return "", fmt.Errorf("read dump directory: %w", err)
	}
	var latest string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if latest == "" || e.Name() > latest {
			latest = e.Name()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%w: no dump file found under %s", domain.ErrNotFound, d.baseDir)
	}
	return filepath.Join(d.baseDir, latest), nil
}

func (d *Dump) writeTo(w io.Writer) error {
	if err := writeString(w, dumpMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, dumpVersion); err != nil {
		return err
	}
	position := ""
	if d.position != nil {
		position = d.position.CurrentPosition()
	}
	if err := writeString(w, position); err != nil {
		return err
	}

	names := d.tableNames()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		ctx, ok := d.tables(name)
		if !ok {
			continue
		}
		if err := writeTable(w, name, ctx); err != nil {
			return fmt.Errorf("write table %s: %w", name, err)
		}
	}
	return nil
}

func writeTable(w io.Writer, name string, ctx *tablectx.Context) error {
	ctx.RLock()
	defer ctx.RUnlock()

	if err := writeString(w, name); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(ctx.Store.NextDocID())); err != nil {
		return err
	}

	docIDs := ctx.Store.AllDocIDs()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(docIDs))); err != nil {
		return err
	}
	for _, id := range docIDs {
		doc, ok := ctx.Store.GetDocument(id)
		if !ok {
			continue
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(id)); err != nil {
			return err
		}
		if err := writeBytes(w, doc.PK); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(doc.Filters))); err != nil {
			return err
		}
		for col, val := range doc.Filters {
			if err := writeString(w, col); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, uint8(val.Kind())); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, val.RawBits()); err != nil {
				return err
			}
			if err := writeBytes(w, val.Bytes()); err != nil {
				return err
			}
		}
	}

	var writeErr error
	tokenCount := 0
	ctx.Index.ForEachToken(func(string, []domain.DocID) { tokenCount++ })
	if err := binary.Write(w, binary.LittleEndian, uint32(tokenCount)); err != nil {
		return err
	}
	ctx.Index.ForEachToken(func(token string, docIDs []domain.DocID) {
		if writeErr != nil {
			return
		}
		if err := writeString(w, token); err != nil {
			writeErr = err
			return
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(docIDs))); err != nil {
			writeErr = err
			return
		}
		for _, id := range docIDs {
			if err := binary.Write(w, binary.LittleEndian, uint32(id)); err != nil {
				writeErr = err
				return
			}
		}
	})
	return writeErr
}

func (d *Dump) readFrom(r io.Reader) error {
	magic, err := readString(r)
	if err != nil {
		return err
	}
	if magic != dumpMagic {
		return fmt.Errorf("%w: not a mygramdb dump file", domain.ErrInvalidInput)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != dumpVersion {
		return fmt.Errorf("%w: unsupported dump version %d", domain.ErrInvalidInput, version)
	}
	position, err := readString(r)
	if err != nil {
		return err
	}
	if d.position != nil {
		d.position.SetPosition(position)
	}

	var tableCount uint32
	if err := binary.Read(r, binary.LittleEndian, &tableCount); err != nil {
		return err
	}
	for i := uint32(0); i < tableCount; i++ {
		if err := readTable(r, d.tables); err != nil {
			return err
		}
	}
	return nil
}

func readTable(r io.Reader, tables func(string) (*tablectx.Context, bool)) error {
	name, err := readString(r)
	if err != nil {
		return err
	}
	ctx, ok := tables(name)
	if !ok {
		return fmt.Errorf("%w: dump references unconfigured table %s", domain.ErrTableUnknown, name)
	}

	ctx.Lock()
	defer ctx.Unlock()
	ctx.Store.Clear()
	ctx.Index.Clear()

	var nextID uint32
	if err := binary.Read(r, binary.LittleEndian, &nextID); err != nil {
		return err
	}

	var docCount uint32
	if err := binary.Read(r, binary.LittleEndian, &docCount); err != nil {
		return err
	}
	for i := uint32(0); i < docCount; i++ {
		var id uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return err
		}
		pk, err := readBytes(r)
		if err != nil {
			return err
		}
		var filterCount uint32
		if err := binary.Read(r, binary.LittleEndian, &filterCount); err != nil {
			return err
		}
		filters := make(map[string]domain.FilterValue, filterCount)
		for j := uint32(0); j < filterCount; j++ {
			col, err := readString(r)
			if err != nil {
				return err
			}
			var kind uint8
			if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
				return err
			}
			var raw uint64
			if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
				return err
			}
			rawBytes, err := readBytes(r)
			if err != nil {
				return err
			}
			filters[col] = domain.NewFilterFromRaw(domain.FilterKind(kind), raw, rawBytes)
		}
		ctx.Store.LoadDocument(domain.DocID(id), pk, filters)
	}
	ctx.Store.SetNextDocID(domain.DocID(nextID))

	var tokenCount uint32
	if err := binary.Read(r, binary.LittleEndian, &tokenCount); err != nil {
		return err
	}
	for i := uint32(0); i < tokenCount; i++ {
		token, err := readString(r)
		if err != nil {
			return err
		}
		var postingCount uint32
		if err := binary.Read(r, binary.LittleEndian, &postingCount); err != nil {
			return err
		}
		docIDs := make([]domain.DocID, postingCount)
		for j := uint32(0); j < postingCount; j++ {
			var id uint32
			if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
				return err
			}
			docIDs[j] = domain.DocID(id)
		}
		ctx.Index.LoadToken(token, docIDs)
	}
	return nil
}

func writeString(w io.Writer, s string) error { return writeBytes(w, []byte(s)) }

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
