package normalize

import (
	"context"
	"errors"
	"testing"

	"document-index/internal/models"
	"document-index/internal/nlp"

	"github.com/stretchr/testify/assert"
)

type stubLemmatizer struct {
	lemmas []string
	err    error
	input  string
}

func (s *stubLemmatizer) Lemmatize(_ context.Context, text string) ([]string, error) {
	s.input = text
	return s.lemmas, s.err
}

func TestRegexClean(t *testing.T) {
	in := "<html><script>var x = 1;</script><style>p{}</style><p>Visit https://example.com or\nwrite to ops@example.com today!</p>\t Fish &amp; Chips: $5 #1</html>"
	assert.Equal(t, "visit or write to today! fish chips 5 1", RegexClean(in))
}

func TestCleanWithoutNLP(t *testing.T) {
	n := New(nlp.Disabled())
	assert.Equal(t, "hello world.", n.Clean(context.Background(), "  Hello\n\nWORLD. ", "a.txt"))
	assert.Equal(t, "", n.Clean(context.Background(), " \n\t", "a.txt"))
}

func TestCleanLemmatizes(t *testing.T) {
	stub := &stubLemmatizer{lemmas: []string{"cat", "run"}}
	n := New(nlp.New(stub, nil))

	assert.Equal(t, "cat run", n.Clean(context.Background(), "The Cats are RUNNING", "a.txt"))
	assert.Equal(t, "the cats are running", stub.input)
}

func TestCleanFallsBackOnLemmatizerError(t *testing.T) {
	n := New(nlp.New(&stubLemmatizer{err: errors.New("model crashed")}, nil))
	assert.Equal(t, "the cats are running", n.Clean(context.Background(), "The Cats are RUNNING", "a.txt"))
}

func TestReconstructJoinsHyphenatedWords(t *testing.T) {
	assert.Equal(t, "a wonderful day", Reconstruct("a wonder-\n  ful day", nil, "f.pdf"))
	assert.Equal(t, "", Reconstruct("", nil, "f.pdf"))
}

func TestReconstructAppendsNumberedTables(t *testing.T) {
	tables := []models.Table{
		{Header: []string{"name", "qty"}, Rows: [][]string{{"bolt", "3"}, {"broken"}, {"nut", "5"}}},
		{Rows: [][]string{{"a", "b"}, {"1", "2"}}},
	}

	out := Reconstruct("body text", tables, "parts.pdf")

	assert.Equal(t,
		"body text [START OF TABLE 1 extracted from parts.pdf]\n| name | qty |\n| --- | --- |\n| bolt | 3 |\n| nut | 5 |\n[END OF TABLE 1] "+
			"[START OF TABLE 2 extracted from parts.pdf]\n| a | b |\n| --- | --- |\n| 1 | 2 |\n[END OF TABLE 2]",
		out)
}

func TestTableBlockEmpty(t *testing.T) {
	assert.Contains(t, TableBlock(3, models.Table{}, "x.csv"), "[Empty Table Data]")
}
