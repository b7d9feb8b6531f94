package classify

import "strings"

// Category buckets a MIME type for processing routing.
type Category string

const (
	CategoryText    Category = "text"
	CategoryPDF     Category = "pdf"
	CategoryDocx    Category = "docx"
	CategoryODF     Category = "odf"
	CategoryExcel   Category = "excel"
	CategoryAudio   Category = "audio"
	CategoryArchive Category = "archive"
	CategoryOther   Category = "other"
)

var mimeCategories = map[string]Category{
	"text/plain":               CategoryText,
	"text/markdown":            CategoryText,
	"text/html":                CategoryText,
	"application/json":         CategoryText,
	"application/rtf":          CategoryText,
	"application/octet-stream": CategoryText, // generic binary, often markdown
	"text/csv":                 CategoryText,
	"text/tab-separated-values": CategoryText,

	"application/pdf": CategoryPDF,

	"application/msword": CategoryDocx,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": CategoryDocx,

	"application/vnd.oasis.opendocument.text":         CategoryODF,
	"application/vnd.oasis.opendocument.presentation": CategoryODF,
	"application/vnd.oasis.opendocument.spreadsheet":  CategoryODF,

	"application/vnd.ms-excel": CategoryExcel,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": CategoryExcel,

	"audio/mpeg":  CategoryAudio,
	"audio/wav":   CategoryAudio,
	"audio/ogg":   CategoryAudio,
	"audio/webm":  CategoryAudio,
	"audio/flac":  CategoryAudio,
	"audio/aac":   CategoryAudio,
	"audio/x-m4a": CategoryAudio,
	"audio/mp4":   CategoryAudio,
	"audio/m4a":   CategoryAudio,

	"application/zip":              CategoryArchive,
	"application/x-zip-compressed": CategoryArchive,
	"application/x-tar":            CategoryArchive,
	"application/gzip":             CategoryArchive,
	"application/x-gzip":           CategoryArchive,
	"application/x-bzip2":          CategoryArchive,
	"application/x-7z-compressed":  CategoryArchive,
	"application/x-rar-compressed": CategoryArchive,
}

var mimePrefixCategories = []struct {
	prefix   string
	category Category
}{
	{"text/", CategoryText},
	{"audio/", CategoryAudio},
}

// MimeType classifies a MIME type into a category. Parameters are stripped
// and matching is case-insensitive; unknown types map to CategoryOther.
func MimeType(mimeType string) Category {
	normalized := strings.ToLower(mimeType)
	if idx := strings.Index(normalized, ";"); idx >= 0 {
		normalized = normalized[:idx]
	}
	normalized = strings.TrimSpace(normalized)

	if category, ok := mimeCategories[normalized]; ok {
		return category
	}
	for _, entry := range mimePrefixCategories {
		if strings.HasPrefix(normalized, entry.prefix) {
			return entry.category
		}
	}
	return CategoryOther
}

// Extractable reports whether the extract stage can produce text for the
// category without external recognition services.
func (c Category) Extractable() bool {
	return c == CategoryText
}
