package parser

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"mime"
	"net/http"
	"path"
	"regexp"
	"strings"

	"code.sajari.com/docconv/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html/charset"
)

const (
	MimeHTML     = "text/html"
	MimeXHTML    = "application/xhtml+xml"
	MimeText     = "text/plain"
	MimeMarkdown = "text/markdown"
	MimePDF      = "application/pdf"
	MimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeBinary   = "application/octet-stream"
)

// Result is the extracted text of a fetched resource
type Result struct {
	Title       string
	Text        string
	ContentType string
}

// noise is removed from HTML before text extraction
const noise = "script, style, noscript, nav, header, footer, aside, form, iframe, svg, template"

// blocks are mapped to paragraph breaks
const blocks = "p, h1, h2, h3, h4, h5, h6, li, pre, blockquote, figcaption, td, th, dt, dd"

var extensionTypes = map[string]string{
	".html":     MimeHTML,
	".htm":      MimeHTML,
	".txt":      MimeText,
	".md":       MimeMarkdown,
	".markdown": MimeMarkdown,
	".pdf":      MimePDF,
	".docx":     MimeDOCX,
	".xlsx":     MimeXLSX,
}

// DetectType resolves the media type of a response. The header wins unless
// it is missing or generic, then the URL extension and finally content sniffing decide.
func DetectType(header, source string, data []byte) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil && mt != MimeBinary {
			return mt
		}
	}
	if mt, ok := extensionTypes[strings.ToLower(path.Ext(urlPath(source)))]; ok {
		return mt
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

func urlPath(source string) string {
	if i := strings.IndexAny(source, "?#"); i >= 0 {
		source = source[:i]
	}
	return source
}

// Parse extracts the title and plain text from data. contentType is the raw
// Content-Type header value, which may carry a charset parameter.
func Parse(contentType, source string, data []byte) (*Result, error) {
	mt := DetectType(contentType, source, data)
	log.Debug().Str("source", source).Str("content_type", mt).Int("bytes", len(data)).Msg("Parsing content")

	var (
		title, text string
		err         error
	)
	switch mt {
	case MimeHTML, MimeXHTML:
		title, text, err = parseHTML(contentType, data)
	case MimeMarkdown, "text/x-markdown":
		title, text, err = parseMarkdown(data)
	case MimeText:
		text, err = parseText(contentType, data)
	case MimePDF:
		text, err = parsePDF(data)
	case MimeDOCX:
		text, err = parseDOCX(data)
	case MimeXLSX:
		text, err = parseXLSX(data)
	default:
		title, text, err = parseOther(mt, data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s content: %w", mt, err)
	}

	return &Result{
		Title:       clean(title),
		Text:        strings.TrimSpace(strings.ToValidUTF8(text, "")),
		ContentType: mt,
	}, nil
}

func parseHTML(contentType string, data []byte) (string, string, error) {
	r, err := charset.NewReader(bytes.NewReader(data), contentType)
	if err != nil {
		return "", "", err
	}
	return parseHTMLReader(r)
}

func parseHTMLReader(r io.Reader) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", "", err
	}

	title := doc.Find("title").First().Text()
	if strings.TrimSpace(title) == "" {
		title = doc.Find("h1").First().Text()
	}

	doc.Find(noise).Remove()

	var paragraphs []string
	doc.Find(blocks).Each(func(_ int, s *goquery.Selection) {
		// nested blocks are covered by their outermost block
		if s.ParentsFiltered(blocks).Length() > 0 {
			return
		}
		var text string
		if goquery.NodeName(s) == "pre" {
			text = strings.TrimSpace(s.Text())
		} else {
			text = clean(s.Text())
		}
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	// pages without block markup still carry text in the body
	if len(paragraphs) == 0 {
		if body := clean(doc.Find("body").Text()); body != "" {
			paragraphs = append(paragraphs, body)
		}
	}

	return title, strings.Join(paragraphs, "\n\n"), nil
}

func parseMarkdown(data []byte) (string, string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			gmhtml.WithHardWraps(),
		),
	)
	var buf bytes.Buffer
	if err := md.Convert(data, &buf); err != nil {
		return "", "", err
	}
	return parseHTMLReader(&buf)
}

func parseText(contentType string, data []byte) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(data), contentType)
	if err != nil {
		return "", err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parsePDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, strings.TrimSpace(text))
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

var (
	docxParagraphRe = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	docxTextRe      = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?>(.*?)</w:t>`)
)

func parseDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	defer r.Close()

	return docxText(r.Editable().GetContent()), nil
}

// docxText pulls the run text out of WordprocessingML, one paragraph per w:p
func docxText(content string) string {
	var paragraphs []string
	for _, p := range docxParagraphRe.FindAllString(content, -1) {
		var sb strings.Builder
		for _, m := range docxTextRe.FindAllStringSubmatch(p, -1) {
			sb.WriteString(html.UnescapeString(m[1]))
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

func parseXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sheets []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			log.Warn().Err(err).Str("sheet", sheetName).Msg("Skipping unreadable sheet")
			continue
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		sheets = append(sheets, text.String())
	}
	return strings.Join(sheets, "\n"), nil
}

func parseOther(mimeType string, data []byte) (string, string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		return "", "", err
	}
	return res.Meta["title"], res.Body, nil
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
