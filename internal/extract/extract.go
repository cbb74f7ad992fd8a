package extract

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Document is the text of one course file, labeled with its origin.
type Document struct {
	Course string
	File   string
	Text   string
}

// textExtensions are the formats read natively. Binary formats (pdf, docx)
// are skipped with a warning rather than failing the whole ingestion.
var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".csv":  true,
	".html": true,
	".htm":  true,
}

// FromFile reads one file into a Document, or nil if the format is not
// extractable.
func FromFile(course, path string) *Document {
	ext := strings.ToLower(filepath.Ext(path))
	if !textExtensions[ext] {
		log.Printf("WARN: skipping unsupported file format %s", path)
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("ERROR: failed to read %s: %v", path, err)
		return nil
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil
	}
	return &Document{Course: course, File: filepath.Base(path), Text: text}
}

// FromDir walks a directory of downloaded course files. The first path
// element under dir is treated as the course name.
func FromDir(dir string) []Document {
	var docs []Document
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		course := "General"
		if parts := strings.Split(rel, string(filepath.Separator)); len(parts) > 1 {
			course = parts[0]
		}
		if doc := FromFile(course, path); doc != nil {
			docs = append(docs, *doc)
		}
		return nil
	})
	if err != nil {
		log.Printf("ERROR: failed to walk %s: %v", dir, err)
	}
	return docs
}

// Labeled returns the text prefixed with its course and file labels, the
// form that gets chunked and indexed so retrieval can cite the origin.
func (d Document) Labeled() string {
	return fmt.Sprintf("Course: %s, File: %s, Content: %s", d.Course, d.File, d.Text)
}
