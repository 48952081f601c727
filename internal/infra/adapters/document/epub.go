// Package document reads uploaded EPUB books into speakable text.
package document

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	nethtml "golang.org/x/net/html"

	"snipr-audio/internal/domain"
	"snipr-audio/internal/domain/ports/adapter"
	"snipr-audio/internal/textproc"
)

var _ adapter.DocumentReader = (*EPUBReader)(nil)

const (
	epubMimeType     = "application/epub+zip"
	containerPath    = "META-INF/container.xml"
	defaultMaxText   = 64 << 20
	defaultMaxMember = 16 << 20
)

// EPUBReader walks the OPF spine and concatenates chapter text in reading
// order. Non-linear spine items such as footnote pages are skipped.
type EPUBReader struct {
	maxMember int64
	maxText   int
	stripTags *bluemonday.Policy
	log       zerolog.Logger
}

func NewEPUBReader(logger *zerolog.Logger) *EPUBReader {
	return &EPUBReader{
		maxMember: defaultMaxMember,
		maxText:   defaultMaxText,
		stripTags: bluemonday.StrictPolicy(),
		log:       logger.With().Str("component", "epub").Logger(),
	}
}

type container struct {
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	Metadata struct {
		Titles       []string `xml:"title"`
		Creators     []string `xml:"creator"`
		Descriptions []string `xml:"description"`
	} `xml:"metadata"`
	Manifest []struct {
		ID        string `xml:"id,attr"`
		Href      string `xml:"href,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"manifest>item"`
	Spine []struct {
		IDRef  string `xml:"idref,attr"`
		Linear string `xml:"linear,attr"`
	} `xml:"spine>itemref"`
}

func (r *EPUBReader) Read(ctx context.Context, data []byte) (adapter.Article, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return adapter.Article{}, fmt.Errorf("%w: not an epub archive: %v", domain.ErrExtraction, err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}
	if f, ok := files["mimetype"]; ok {
		mt, err := r.member(f)
		if err != nil {
			return adapter.Article{}, err
		}
		if strings.TrimSpace(string(mt)) != epubMimeType {
			return adapter.Article{}, fmt.Errorf("%w: unexpected mimetype %q", domain.ErrExtraction, mt)
		}
	}

	opfPath, err := r.rootfile(files)
	if err != nil {
		return adapter.Article{}, err
	}
	var pkg opfPackage
	if err := r.decode(files, opfPath, &pkg); err != nil {
		return adapter.Article{}, err
	}

	hrefs := make(map[string]string, len(pkg.Manifest))
	for _, item := range pkg.Manifest {
		if item.MediaType == "application/xhtml+xml" || item.MediaType == "text/html" {
			hrefs[item.ID] = item.Href
		}
	}

	var b strings.Builder
	chapters := 0
	for _, ref := range pkg.Spine {
		if err := ctx.Err(); err != nil {
			return adapter.Article{}, err
		}
		href, ok := hrefs[ref.IDRef]
		if !ok || ref.Linear == "no" {
			continue
		}
		name, err := resolve(opfPath, href)
		if err != nil {
			return adapter.Article{}, err
		}
		f, ok := files[name]
		if !ok {
			r.log.Debug().Str("member", name).Msg("spine item missing from archive")
			continue
		}
		raw, err := r.member(f)
		if err != nil {
			return adapter.Article{}, err
		}
		text := strings.TrimSpace(chapterText(raw))
		if text == "" {
			continue
		}
		if b.Len()+len(text) > r.maxText {
			return adapter.Article{}, fmt.Errorf("%w: book text exceeds %d bytes", domain.ErrExtraction, r.maxText)
		}
		b.WriteString(text)
		b.WriteString("\n\n")
		chapters++
	}

	clean := textproc.Normalize(b.String())
	if clean == "" {
		return adapter.Article{}, fmt.Errorf("%w: no readable chapters", domain.ErrExtraction)
	}
	out := adapter.Article{
		Title:     r.plain(first(pkg.Metadata.Titles)),
		CleanText: clean,
		Excerpt:   r.plain(first(pkg.Metadata.Descriptions)),
		Byline:    r.plain(strings.Join(pkg.Metadata.Creators, ", ")),
	}
	r.log.Debug().
		Str("title", out.Title).
		Int("chapters", chapters).
		Int("words", textproc.WordCount(clean)).
		Msg("epub read")
	return out, nil
}

func (r *EPUBReader) rootfile(files map[string]*zip.File) (string, error) {
	var c container
	if err := r.decode(files, containerPath, &c); err != nil {
		return "", err
	}
	for _, rf := range c.Rootfiles {
		if rf.FullPath != "" && (rf.MediaType == "" || rf.MediaType == "application/oebps-package+xml") {
			return rf.FullPath, nil
		}
	}
	return "", fmt.Errorf("%w: container lists no package document", domain.ErrExtraction)
}

func (r *EPUBReader) decode(files map[string]*zip.File, name string, v any) error {
	f, ok := files[name]
	if !ok {
		return fmt.Errorf("%w: missing %s", domain.ErrExtraction, name)
	}
	raw, err := r.member(f)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: parse %s: %v", domain.ErrExtraction, name, err)
	}
	return nil
}

// member reads one archive entry, refusing entries that inflate past maxMember.
func (r *EPUBReader) member(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrExtraction, f.Name, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, r.maxMember+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrExtraction, f.Name, err)
	}
	if int64(len(raw)) > r.maxMember {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", domain.ErrExtraction, f.Name, r.maxMember)
	}
	return raw, nil
}

func (r *EPUBReader) plain(s string) string {
	return strings.TrimSpace(html.UnescapeString(r.stripTags.Sanitize(s)))
}

// resolve maps a manifest href to its archive path. Hrefs are relative to
// the package document and may be percent-encoded.
func resolve(opfPath, href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: bad manifest href %q", domain.ErrExtraction, href)
	}
	return path.Join(path.Dir(opfPath), u.Path), nil
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "blockquote": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "tr": true, "hr": true, "pre": true,
}

var skipTags = map[string]bool{"head": true, "script": true, "style": true}

// chapterText flattens an XHTML chapter, breaking at block elements.
func chapterText(raw []byte) string {
	z := nethtml.NewTokenizer(bytes.NewReader(raw))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case nethtml.ErrorToken:
			return b.String()
		case nethtml.StartTagToken, nethtml.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipTags[tag] {
				if tt == nethtml.StartTagToken {
					skip++
				}
			} else if blockTags[tag] {
				b.WriteString("\n\n")
			}
		case nethtml.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipTags[tag] && skip > 0 {
				skip--
			} else if blockTags[tag] {
				b.WriteString("\n\n")
			}
		case nethtml.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func first(vals []string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
