package parser

import (
	"archive/zip"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"resume-rag/internal/config"
	"resume-rag/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

// Parser is implemented by document loaders that turn a file into ordered chunks.
type Parser interface {
	ParseDocument(filePath string) ([]models.Chunk, error)
}

type ParserConfig struct {
	Config *config.RAGConfig
}

var (
	docxTokenRe  = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>|</w:p>|<w:br\s[^>]*w:type="page"[^>]*/>`)
	pptxTokenRe  = regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>|</a:p>`)
	slideNameRe  = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// New returns a loader using cfg for optional sub-page chunking. A nil cfg keeps one
// chunk per page.
func New(cfg *config.RAGConfig) *ParserConfig {
	if cfg == nil {
		cfg = &config.RAGConfig{}
	}
	return &ParserConfig{Config: cfg}
}

// ParseDocument loads filePath and returns its chunks in page order. Every failure,
// including a document without any extractable text, wraps models.ErrLoad.
func ParseDocument(filePath string, cfg *config.RAGConfig) ([]models.Chunk, error) {
	return New(cfg).ParseDocument(filePath)
}

func (p *ParserConfig) ParseDocument(filePath string) ([]models.Chunk, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrLoad, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", models.ErrLoad, filePath)
	}

	pages, err := extractPages(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrLoad, filePath, err)
	}

	source := filepath.Base(filePath)
	var chunks []models.Chunk
	for i, page := range pages {
		page = normalizeText(page)
		if page == "" {
			log.Debug().Str("file", source).Int("page", i+1).Msg("Skipping page without text")
			continue
		}
		chunks = append(chunks, p.getChunks(page, i+1, source)...)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s has no extractable text", models.ErrLoad, filePath)
	}

	log.Debug().Str("file", source).Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Parsed document")
	return chunks, nil
}

// extractPages returns the raw text of each page-level unit, in document order.
func extractPages(filePath string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		return parsePDF(filePath)
	case ".docx":
		return parseDOCX(filePath)
	case ".pptx":
		return parsePPTX(filePath)
	case ".xlsx", ".xlsm":
		return parseXLSX(filePath)
	case ".md", ".markdown":
		return parseMarkdown(filePath)
	case ".txt":
		return parseText(filePath)
	default:
		return nil, fmt.Errorf("unsupported file format: %q", ext)
	}
}

func parsePDF(filePath string) (pages []string, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("corrupt pdf: %v", r)
		}
	}()

	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages = make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, pageText)
	}
	return pages, nil
}

func parseDOCX(filePath string) ([]string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return extractDocxPages(r.Editable().GetContent()), nil
}

// extractDocxPages converts WordprocessingML into text, one entry per explicit page break.
func extractDocxPages(xmlContent string) []string {
	var pages []string
	var page strings.Builder
	for _, m := range docxTokenRe.FindAllStringSubmatch(xmlContent, -1) {
		switch {
		case strings.HasPrefix(m[0], "<w:t"):
			page.WriteString(html.UnescapeString(m[1]))
		case m[0] == "</w:p>":
			page.WriteString("\n")
		default:
			pages = append(pages, page.String())
			page.Reset()
		}
	}
	return append(pages, page.String())
}

func parsePPTX(filePath string) ([]string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		m := slideNameRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: num, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	pages := make([]string, 0, len(slides))
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", s.num, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", s.num, err)
		}
		pages = append(pages, extractTextFromXML(string(data)))
	}
	return pages, nil
}

func parseXLSX(filePath string) ([]string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		var text strings.Builder
		text.WriteString(sheetName + "\n")
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		pages = append(pages, text.String())
	}
	return pages, nil
}

// parseText treats form feeds as page breaks, the way pdftotext writes them.
func parseText(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(data), "\f"), nil
}

func extractTextFromXML(xmlContent string) string {
	var text strings.Builder
	for _, m := range pptxTokenRe.FindAllStringSubmatch(xmlContent, -1) {
		if m[0] == "</a:p>" {
			text.WriteString("\n")
			continue
		}
		text.WriteString(html.UnescapeString(m[1]))
	}
	return text.String()
}

// normalizeText trims trailing spaces on each line and collapses runs of blank lines.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// chunk content into chunks of at most maxChars runes, overlapping by overlapChars runes
func chunkContent(content string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}

	runes := []rune(strings.TrimSpace(content))
	contentLen := len(runes)
	if contentLen == 0 {
		return nil
	}
	if contentLen <= maxChars {
		return []string{string(runes)}
	}

	var chunks []string
	start := 0
	for start < contentLen {
		end := min(start+maxChars, contentLen)

		// prefer a break on a space, newline or period within the last 10% of the chunk
		if end < contentLen {
			lookBack := min(maxChars/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if runes[i] == ' ' || runes[i] == '\n' || runes[i] == '.' {
					end = i + 1
					break
				}
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= contentLen {
			break
		}

		next := end - overlapChars
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// getChunks returns the chunks for one page. Without a chunk size the page is a single chunk.
func (p *ParserConfig) getChunks(content string, pageNumber int, source string) []models.Chunk {
	if p.Config.ChunkSize <= 0 {
		return []models.Chunk{{
			Content:        content,
			PageNumber:     pageNumber,
			ChunkID:        1,
			SourceFilename: source,
		}}
	}

	var chunks []models.Chunk
	for i, chunkString := range chunkContent(content, p.Config.ChunkSize, p.Config.ChunkOverlap) {
		chunks = append(chunks, models.Chunk{
			Content:        chunkString,
			PageNumber:     pageNumber,
			ChunkID:        i + 1,
			SourceFilename: source,
		})
	}
	return chunks
}
