// Package normalize cleans extracted text and merges tables back into it.
package normalize

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"document-index/internal/models"
	"document-index/internal/nlp"

	"github.com/rs/zerolog/log"
)

var (
	scriptStyleRe = regexp.MustCompile(models.ScriptStyleRegex)
	tagRe         = regexp.MustCompile(models.TagRegex)
	urlRe         = regexp.MustCompile(models.URLRegex)
	emailRe       = regexp.MustCompile(models.EmailRegex)
	entityRe      = regexp.MustCompile(models.EntityRegex)
	controlRe     = regexp.MustCompile(models.ControlRegex)
	spaceRe       = regexp.MustCompile(models.SpaceRegex)
	disallowedRe  = regexp.MustCompile(models.DisallowedRegex)
	hyphenWrapRe  = regexp.MustCompile(models.HyphenWrapRegex)
	multiSpaceRe  = regexp.MustCompile(models.MultiSpaceRegex)
)

// Normalizer cleans raw text and, when the pipeline can, reduces it to lemmas.
type Normalizer struct {
	nlp nlp.Pipeline
}

func New(p nlp.Pipeline) *Normalizer {
	return &Normalizer{nlp: p}
}

// Clean strips markup, URLs, e-mail addresses and entities, collapses
// whitespace, drops characters outside [a-zA-Z0-9\s.,!?-] and lowercases.
// With a lemmatizer the result is the space-joined lemmas of the content
// tokens. Lemmatizer failures fall back to the regex-cleaned text.
func (n *Normalizer) Clean(ctx context.Context, text, fileName string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	cleaned := RegexClean(text)
	log.Debug().Str("file", fileName).Int("before", len(text)).Int("after", len(cleaned)).Msg("Regex cleaning done")

	if !n.nlp.CanLemmatize() {
		return cleaned
	}
	lemmas, err := n.nlp.Lemmatize(ctx, cleaned)
	if err != nil {
		log.Error().Err(err).Str("file", fileName).Msg("Lemmatization failed, keeping regex-cleaned text")
		return cleaned
	}
	return strings.Join(lemmas, " ")
}

// RegexClean is the lemmatizer-free part of Clean.
func RegexClean(text string) string {
	text = scriptStyleRe.ReplaceAllString(text, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = urlRe.ReplaceAllString(text, "")
	text = emailRe.ReplaceAllString(text, "")
	text = entityRe.ReplaceAllString(text, " ")
	text = controlRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
	text = disallowedRe.ReplaceAllString(text, "")
	return strings.ToLower(text)
}

// Reconstruct joins words hyphenated across line breaks, appends one numbered
// block per table after the body and collapses runs of whitespace.
func Reconstruct(text string, tables []models.Table, fileName string) string {
	if text == "" && len(tables) == 0 {
		return ""
	}
	out := hyphenWrapRe.ReplaceAllString(text, "$1$2")

	var blocks []string
	for i, t := range tables {
		blocks = append(blocks, TableBlock(i+1, t, fileName))
	}
	if len(blocks) > 0 {
		out += "\n\n" + strings.Join(blocks, "\n\n")
	}
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(out, " "))
}

// TableBlock renders table n as a pipe table between start and end markers.
// The header is the table header or, failing that, its first row; rows of a
// different width are dropped.
func TableBlock(n int, t models.Table, fileName string) string {
	header := t.Header
	rows := t.Rows
	if len(header) == 0 && len(rows) > 0 {
		header, rows = rows[0], rows[1:]
	}

	var body string
	if len(header) == 0 {
		body = "[Empty Table Data]"
	} else {
		var sb strings.Builder
		sb.WriteString(pipeRow(header))
		sep := make([]string, len(header))
		for i := range sep {
			sep[i] = "---"
		}
		sb.WriteString(pipeRow(sep))
		for _, row := range rows {
			if len(row) != len(header) {
				log.Warn().Int("table", n).Str("file", fileName).Int("want", len(header)).Int("got", len(row)).Msg("Dropping table row with mismatched width")
				continue
			}
			sb.WriteString(pipeRow(row))
		}
		body = strings.TrimSpace(sb.String())
	}

	start := fmt.Sprintf(models.TableStartTemplate, n, fileName)
	end := fmt.Sprintf(models.TableEndTemplate, n)
	return "\n\n" + start + "\n" + body + "\n" + end + "\n"
}

func pipeRow(cells []string) string {
	return "| " + strings.Join(cells, " | ") + " |\n"
}
