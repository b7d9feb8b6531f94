package stages

import (
	"fmt"
	"strings"
)

const frontmatterFence = "---"

// artifactHeader is the metadata block written at the top of every text
// artifact. The structure stage reads it back to recover the file and region
// identifiers without re-parsing object paths.
type artifactHeader struct {
	FileID    string
	RegionID  string
	Category  string
	Method    string
	WordCount int
	Source    string
}

func renderArtifact(header artifactHeader, body string) string {
	var b strings.Builder
	b.WriteString(frontmatterFence + "\n")
	fmt.Fprintf(&b, "file_id: %s\n", header.FileID)
	fmt.Fprintf(&b, "region_id: %s\n", header.RegionID)
	fmt.Fprintf(&b, "category: %s\n", header.Category)
	fmt.Fprintf(&b, "method: %s\n", header.Method)
	fmt.Fprintf(&b, "word_count: %d\n", header.WordCount)
	fmt.Fprintf(&b, "source: %s\n", header.Source)
	b.WriteString(frontmatterFence + "\n")
	b.WriteString(body)
	return b.String()
}

func parseArtifact(artifact string) (artifactHeader, string, error) {
	rest, found := strings.CutPrefix(artifact, frontmatterFence+"\n")
	if !found {
		return artifactHeader{}, "", fmt.Errorf("artifact lacks a frontmatter header")
	}
	headerText, body, found := strings.Cut(rest, frontmatterFence+"\n")
	if !found {
		return artifactHeader{}, "", fmt.Errorf("artifact frontmatter is unterminated")
	}

	var header artifactHeader
	for _, line := range strings.Split(headerText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return artifactHeader{}, "", fmt.Errorf("malformed frontmatter line %q", line)
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "file_id":
			header.FileID = value
		case "region_id":
			header.RegionID = value
		case "category":
			header.Category = value
		case "method":
			header.Method = value
		case "word_count":
			fmt.Sscanf(value, "%d", &header.WordCount)
		case "source":
			header.Source = value
		}
	}
	if header.FileID == "" {
		return artifactHeader{}, "", fmt.Errorf("frontmatter lacks a file_id")
	}
	return header, body, nil
}
