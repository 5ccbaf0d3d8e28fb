package delivery

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts model tokens in text.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter picks the encoding for model, falling back to cl100k_base
// for unknown models. The encoding tables are fetched on first use.
func NewTokenCounter(model string) (TokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &tiktokenCounter{enc: enc}, nil
}

func (t *tiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Digest summarises a dated output file.
type Digest struct {
	File    string
	Prompts int
	Chars   int
	Tokens  int // -1 when no counter is configured
}

// DigestFile reads path and counts prompts (non-blank lines), characters
// and, with a non-nil counter, tokens.
func DigestFile(path string, counter TokenCounter) (Digest, error) {
	d := Digest{File: path, Tokens: -1}

	data, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("read output: %w", err)
	}
	text := string(data)

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		d.Prompts++
		d.Chars += utf8.RuneCountInString(line)
	}
	if err := sc.Err(); err != nil {
		return d, fmt.Errorf("scan output: %w", err)
	}

	if counter != nil {
		d.Tokens = counter.Count(text)
	}
	return d, nil
}

// Compose fills in subject and body for the delivery of one dated file.
// {date} in subject is replaced by date.
func Compose(subject, date, repo string, d Digest) (string, string) {
	subject = strings.ReplaceAll(subject, "{date}", date)

	var b strings.Builder
	fmt.Fprintf(&b, "Midjourney prompts for %s.\n\n", date)
	if repo != "" {
		fmt.Fprintf(&b, "Repository: %s\n", repo)
	}
	fmt.Fprintf(&b, "File: %s\n", filepath.Base(d.File))
	fmt.Fprintf(&b, "Prompts: %d\n", d.Prompts)
	fmt.Fprintf(&b, "Characters: %d\n", d.Chars)
	if d.Tokens >= 0 {
		fmt.Fprintf(&b, "Tokens: %d\n", d.Tokens)
	}
	b.WriteString("\nThe file is attached.\n")
	return subject, b.String()
}
