package engine

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf16"

	"pdf-redactor/internal/models"

	"github.com/klauspost/compress/zlib"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const flateDecode = "FlateDecode"

// metadataKeys are the document information entries reported by Inspect.
var metadataKeys = []string{"Title", "Author", "Subject", "Keywords", "Creator", "Producer", "CreationDate", "ModDate"}

func init() {
	// Keep pdfcpu from creating its configuration directory in $HOME.
	model.ConfigPath = "disable"
}

// PDFCPU implements Engine with github.com/pdfcpu/pdfcpu.
type PDFCPU struct {
	opts Options
}

// NewPDFCPU returns a pdfcpu-backed engine.
func NewPDFCPU(opts Options) *PDFCPU {
	if opts.Level < 0 {
		opts.Level = 0
	}
	if opts.Level > 9 {
		opts.Level = 9
	}
	return &PDFCPU{opts: opts}
}

func (e *PDFCPU) configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.WriteObjectStream = e.opts.Compress
	conf.WriteXRefStream = e.opts.Compress
	return conf
}

func (e *PDFCPU) read(op, path string) (*model.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &EngineError{Op: op, Path: path, Err: err}
	}
	defer f.Close()

	ctx, err := api.ReadValidateAndOptimize(f, e.configuration())
	if err != nil {
		return nil, &EngineError{Op: op, Path: path, Err: fmt.Errorf("pdfcpu read: %w", err)}
	}
	return ctx, nil
}

// contentStream is one decoded page content stream.
type contentStream struct {
	objNr int
	entry *model.XRefTableEntry
	sd    types.StreamDict
}

// pageContents returns the decoded content streams of a page in order.
func pageContents(ctx *model.Context, pageNr int) ([]contentStream, error) {
	d, _, _, err := ctx.PageDict(pageNr, false)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}
	obj, found := d.Find("Contents")
	if !found || obj == nil {
		return nil, nil
	}

	var refs []types.IndirectRef
	switch o := obj.(type) {
	case types.IndirectRef:
		entry, ok := ctx.FindTableEntryForIndRef(&o)
		if !ok || entry == nil {
			return nil, fmt.Errorf("page %d: missing content object %s", pageNr, o)
		}
		if arr, isArr := entry.Object.(types.Array); isArr {
			refs = indirectRefs(arr)
		} else {
			refs = []types.IndirectRef{o}
		}
	case types.Array:
		refs = indirectRefs(o)
	default:
		return nil, fmt.Errorf("page %d: unexpected contents type %T", pageNr, obj)
	}

	streams := make([]contentStream, 0, len(refs))
	for _, ref := range refs {
		ref := ref
		entry, ok := ctx.FindTableEntryForIndRef(&ref)
		if !ok || entry == nil || entry.Free {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if err := sd.Decode(); err != nil {
			return nil, fmt.Errorf("page %d: decode content stream %s: %w", pageNr, ref, err)
		}
		streams = append(streams, contentStream{objNr: ref.ObjectNumber.Value(), entry: entry, sd: sd})
	}
	return streams, nil
}

func indirectRefs(arr types.Array) []types.IndirectRef {
	refs := make([]types.IndirectRef, 0, len(arr))
	for _, o := range arr {
		if ref, ok := o.(types.IndirectRef); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

// ExtractText implements Engine.
func (e *PDFCPU) ExtractText(path string) (string, error) {
	ctx, err := e.read("extract", path)
	if err != nil {
		return "", err
	}

	var pages []string
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		streams, err := pageContents(ctx, pageNr)
		if err != nil {
			return "", &EngineError{Op: "extract", Path: path, Err: err}
		}
		var parts []string
		for _, s := range streams {
			text, err := extractContentText(s.sd.Content)
			if err != nil {
				return "", &EngineError{Op: "extract", Path: path, Err: fmt.Errorf("page %d: %w", pageNr, err)}
			}
			if text != "" {
				parts = append(parts, text)
			}
		}
		pages = append(pages, strings.Join(parts, "\n"))
	}
	return strings.Join(pages, "\n"), nil
}

// Rewrite implements Engine.
func (e *PDFCPU) Rewrite(path string, substitute func(string) string) (Result, error) {
	ctx, err := e.read("rewrite", path)
	if err != nil {
		return Result{}, err
	}

	seen := make(map[int]bool)
	changed := 0
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		streams, err := pageContents(ctx, pageNr)
		if err != nil {
			return Result{}, &EngineError{Op: "rewrite", Path: path, Err: err}
		}
		for _, s := range streams {
			// Content streams can be shared between pages.
			if seen[s.objNr] {
				continue
			}
			seen[s.objNr] = true

			content, n, err := rewriteContent(s.sd.Content, substitute)
			if err != nil {
				return Result{}, &EngineError{Op: "rewrite", Path: path, Err: fmt.Errorf("page %d: %w", pageNr, err)}
			}
			changed += n
			if n == 0 && e.opts.Compress {
				continue
			}
			if err := e.encode(&s.sd, content); err != nil {
				return Result{}, &EngineError{Op: "encode", Path: path, Err: err}
			}
			s.entry.Object = s.sd
		}
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return Result{}, &EngineError{Op: "write", Path: path, Err: err}
	}
	return Result{Data: buf.Bytes(), ChangedOperators: changed}, nil
}

// encode stores content in sd, Flate-compressed at the configured level when
// compression is on and uncompressed otherwise.
func (e *PDFCPU) encode(sd *types.StreamDict, content []byte) error {
	sd.Content = content
	delete(sd.Dict, "DecodeParms")

	raw := content
	if e.opts.Compress {
		var buf bytes.Buffer
		w, err := zlib.NewWriterLevel(&buf, e.opts.Level)
		if err != nil {
			return err
		}
		if _, err := w.Write(content); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		raw = buf.Bytes()
		sd.FilterPipeline = []types.PDFFilter{{Name: flateDecode}}
		sd.Dict["Filter"] = types.Name(flateDecode)
	} else {
		sd.FilterPipeline = nil
		delete(sd.Dict, "Filter")
	}

	sd.Raw = raw
	length := int64(len(raw))
	sd.StreamLength = &length
	sd.Dict["Length"] = types.Integer(len(raw))
	return nil
}

// Inspect implements Engine.
func (e *PDFCPU) Inspect(path string) (models.DocumentInfo, error) {
	info := models.DocumentInfo{Path: path}

	fi, err := os.Stat(path)
	if err != nil {
		return info, &EngineError{Op: "inspect", Path: path, Err: err}
	}
	info.FileSize = fi.Size()
	info.Version = headerVersion(path)

	ctx, err := e.read("inspect", path)
	if err != nil {
		return info, err
	}
	info.Pages = ctx.PageCount
	info.Encrypted = ctx.Encrypt != nil

	for _, entry := range ctx.Table {
		if entry == nil || entry.Free {
			continue
		}
		if entry.Compressed {
			info.UsesCompression = true
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if _, found := sd.Find("Filter"); found {
			info.CompressedStreams++
		}
	}
	if info.CompressedStreams > 0 {
		info.UsesCompression = true
	}

	info.Metadata = documentMetadata(ctx)
	return info, nil
}

func headerVersion(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	head := make([]byte, 16)
	n, _ := io.ReadFull(f, head)
	line := string(head[:n])
	if !strings.HasPrefix(line, "%PDF-") {
		return ""
	}
	line = strings.TrimPrefix(line, "%PDF-")
	if i := strings.IndexAny(line, "\r\n \t%"); i >= 0 {
		line = line[:i]
	}
	return line
}

func documentMetadata(ctx *model.Context) map[string]string {
	if ctx.Info == nil {
		return nil
	}
	obj, err := ctx.Dereference(*ctx.Info)
	if err != nil {
		return nil
	}
	d, ok := obj.(types.Dict)
	if !ok {
		return nil
	}

	meta := make(map[string]string)
	for _, key := range metadataKeys {
		v, found := d.Find(key)
		if !found {
			continue
		}
		v, err := ctx.Dereference(v)
		if err != nil {
			continue
		}
		if s := textString(v); s != "" {
			meta[key] = s
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// textString decodes a PDF text string (PDFDocEncoding or UTF-16BE with BOM).
func textString(o types.Object) string {
	var raw []byte
	switch v := o.(type) {
	case types.StringLiteral:
		b, _, err := parseLiteral([]byte("("+string(v)+")"), 0)
		if err != nil {
			return string(v)
		}
		raw = b
	case types.HexLiteral:
		b, err := hex.DecodeString(string(v))
		if err != nil {
			return ""
		}
		raw = b
	case types.Name:
		return string(v)
	default:
		return ""
	}

	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		u := make([]uint16, 0, (len(raw)-2)/2)
		for i := 2; i+1 < len(raw); i += 2 {
			u = append(u, uint16(raw[i])<<8|uint16(raw[i+1]))
		}
		return string(utf16.Decode(u))
	}
	return strings.TrimSpace(string(raw))
}

// SortedMetadataKeys returns the keys of m in display order.
func SortedMetadataKeys(m map[string]string) []string {
	order := make(map[string]int, len(metadataKeys))
	for i, k := range metadataKeys {
		order[k] = i
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iok := order[keys[i]]
		oj, jok := order[keys[j]]
		if iok && jok {
			return oi < oj
		}
		if iok != jok {
			return iok
		}
		return keys[i] < keys[j]
	})
	return keys
}
