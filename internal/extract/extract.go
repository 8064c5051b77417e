// Package extract lists the declarations a Nim module exports, using the
// compiler's JSON documentation output.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nimp/internal/logging"
	"nimp/internal/tactile"
)

// Kind is the declaration kind of a record.
type Kind int

const (
	KindType Kind = iota
	KindProc
)

func (k Kind) String() string {
	switch k {
	case KindType:
		return "type"
	case KindProc:
		return "proc"
	default:
		return "unknown"
	}
}

// Record is one exported declaration.
type Record struct {
	Kind Kind
	Name string
	Code string
	Line int
}

// Extractor lists the declarations of a library in source order.
type Extractor interface {
	Extract(ctx context.Context, libPath string) ([]Record, error)
}

// docKinds maps jsondoc symbol kinds to record kinds. Iterators, templates,
// macros and methods are not smoke-called.
var docKinds = map[string]Kind{
	"skType": KindType,
	"skProc": KindProc,
	"skFunc": KindProc,
}

type docEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Code string `json:"code"`
	Line int    `json:"line"`
}

type docFile struct {
	Entries []docEntry `json:"entries"`
}

// Decode reads a jsondoc document and returns its type and procedure records.
func Decode(r io.Reader) ([]Record, error) {
	var doc docFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode jsondoc: %w", err)
	}
	records := make([]Record, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		kind, ok := docKinds[e.Type]
		if !ok {
			continue
		}
		records = append(records, Record{Kind: kind, Name: e.Name, Code: e.Code, Line: e.Line})
	}
	return records, nil
}

// NimDoc extracts records by running `nim jsondoc`.
type NimDoc struct {
	executor tactile.Executor
	binary   string
	docPath  string
	timeout  time.Duration
}

// NewNimDoc returns an extractor writing the intermediate document to docPath.
func NewNimDoc(executor tactile.Executor, binary, docPath string, timeout time.Duration) *NimDoc {
	return &NimDoc{executor: executor, binary: binary, docPath: docPath, timeout: timeout}
}

// Extract implements Extractor.
func (n *NimDoc) Extract(ctx context.Context, libPath string) ([]Record, error) {
	timer := logging.StartTimer(logging.CategoryExtract, "jsondoc "+filepath.Base(libPath))
	defer timer.Stop()

	if err := os.MkdirAll(filepath.Dir(n.docPath), 0755); err != nil {
		return nil, fmt.Errorf("create doc dir: %w", err)
	}
	// a stale document from an earlier library must not be read back
	if err := os.Remove(n.docPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale doc: %w", err)
	}

	res, err := n.executor.Execute(ctx, tactile.Command{
		Binary:    n.binary,
		Arguments: []string{"jsondoc", "-o:" + n.docPath, libPath},
		Timeout:   n.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("run %s jsondoc: %w", n.binary, err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("run %s jsondoc: %s", n.binary, res.Error)
	}
	if res.Killed {
		return nil, fmt.Errorf("%s jsondoc killed: %s", n.binary, res.KillReason)
	}

	f, err := os.Open(n.docPath)
	if err != nil {
		return nil, fmt.Errorf("jsondoc %s produced no document (exit %d): %s",
			libPath, res.ExitCode, lastLines(res.Output(), 5))
	}
	defer f.Close()

	if res.ExitCode != 0 {
		logging.Get(logging.CategoryExtract).Warn("jsondoc %s exited %d, using its output", libPath, res.ExitCode)
	}

	records, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", libPath, err)
	}
	logging.Extract("%s: %d records", libPath, len(records))
	return records, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// Static is an Extractor over fixed records, keyed by library path.
type Static map[string][]Record

// Extract implements Extractor.
func (s Static) Extract(_ context.Context, libPath string) ([]Record, error) {
	records, ok := s[libPath]
	if !ok {
		return nil, fmt.Errorf("no records for %s", libPath)
	}
	return records, nil
}
