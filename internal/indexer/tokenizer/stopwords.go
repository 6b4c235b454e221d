package tokenizer

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// StopWords is a set of lowercase tokens dropped during normalisation.
type StopWords map[string]struct{}

// Contains reports whether word is in the set.
func (s StopWords) Contains(word string) bool {
	_, ok := s[word]
	return ok
}

// english is the standard 179-word English list. Entries keep their
// apostrophes because tokens are compared before any punctuation handling.
var english = []string{
	"i", "me", "my", "myself", "we", "our", "ours", "ourselves",
	"you", "you're", "you've", "you'll", "you'd", "your", "yours", "yourself", "yourselves",
	"he", "him", "his", "himself", "she", "she's", "her", "hers", "herself",
	"it", "it's", "its", "itself", "they", "them", "their", "theirs", "themselves",
	"what", "which", "who", "whom", "this", "that", "that'll", "these", "those",
	"am", "is", "are", "was", "were", "be", "been", "being",
	"have", "has", "had", "having", "do", "does", "did", "doing",
	"a", "an", "the", "and", "but", "if", "or", "because", "as", "until", "while",
	"of", "at", "by", "for", "with", "about", "against", "between", "into", "through",
	"during", "before", "after", "above", "below", "to", "from", "up", "down",
	"in", "out", "on", "off", "over", "under", "again", "further", "then", "once",
	"here", "there", "when", "where", "why", "how", "all", "any", "both", "each",
	"few", "more", "most", "other", "some", "such", "no", "nor", "not", "only",
	"own", "same", "so", "than", "too", "very", "s", "t", "can", "will", "just",
	"don", "don't", "should", "should've", "now", "d", "ll", "m", "o", "re", "ve", "y",
	"ain", "aren", "aren't", "couldn", "couldn't", "didn", "didn't", "doesn", "doesn't",
	"hadn", "hadn't", "hasn", "hasn't", "haven", "haven't", "isn", "isn't", "ma",
	"mightn", "mightn't", "mustn", "mustn't", "needn", "needn't", "shan", "shan't",
	"shouldn", "shouldn't", "wasn", "wasn't", "weren", "weren't", "won", "won't",
	"wouldn", "wouldn't",
}

// English returns a fresh copy of the English stop-word set.
func English() StopWords {
	set := make(StopWords, len(english))
	for _, w := range english {
		set[w] = struct{}{}
	}
	return set
}

// LoadStopWords reads one stop word per line. Blank lines and lines starting
// with '#' are skipped; words are lowercased.
func LoadStopWords(path string) (StopWords, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening stop-word file %s: %w", path, err)
	}
	defer f.Close()

	set := make(StopWords)
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		w := strings.ToLower(strings.TrimSpace(scan.Text()))
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		set[w] = struct{}{}
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("reading stop-word file %s: %w", path, err)
	}
	return set, nil
}
