// Package stats computes the aggregate views behind the stats endpoint from
// the SQL mirror: activity per day, media type distribution, most active
// senders, most used commands and a word cloud over recent message text.
package stats

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nkuznetsov/tgarchive/internal/storage"
)

const (
	defaultDays    = 30
	maxDays        = 365
	topLimit       = 10
	wordCloudLimit = 50
	textSampleCap  = 5000
	minWordLength  = 3
)

// Store is the slice of the SQL mirror the aggregator reads.
type Store interface {
	MessagesByDay(ctx context.Context, days int) ([]storage.DayCount, error)
	MessageTypeCounts(ctx context.Context, days int) ([]storage.NameCount, error)
	TopUsers(ctx context.Context, days, limit int) ([]storage.NameCount, error)
	TopCommands(ctx context.Context, days, limit int) ([]storage.NameCount, error)
	RecentTexts(ctx context.Context, days, limit int) ([]string, error)
}

// Report is the stats endpoint payload. Slices are always non-nil so the
// JSON shape stays stable when the mirror is empty or unavailable.
type Report struct {
	Days          int                 `json:"days"`
	MessagesByDay []storage.DayCount  `json:"messagesByDay"`
	MsgTypes      []storage.NameCount `json:"msgTypes"`
	TopUsers      []storage.NameCount `json:"topUsers"`
	TopCommands   []storage.NameCount `json:"topCommands"`
	WordCloud     []storage.NameCount `json:"wordCloud"`
}

type Aggregator struct {
	store  Store
	logger *zerolog.Logger
	folder cases.Caser
}

func NewAggregator(store Store, logger *zerolog.Logger) *Aggregator {
	return &Aggregator{
		store:  store,
		logger: logger,
		folder: cases.Lower(language.Und),
	}
}

// Collect builds a report over the last n days. A nil store or a failing
// query degrades to empty aggregates rather than an error: the archive stays
// usable without its SQL mirror.
func (a *Aggregator) Collect(ctx context.Context, days int) Report {
	if days <= 0 {
		days = defaultDays
	}

	if days > maxDays {
		days = maxDays
	}

	report := emptyReport(days)

	if a.store == nil {
		return report
	}

	if byDay, err := a.store.MessagesByDay(ctx, days); err != nil {
		a.warn("messages by day", err)
	} else if byDay != nil {
		report.MessagesByDay = byDay
	}

	if types, err := a.store.MessageTypeCounts(ctx, days); err != nil {
		a.warn("message type counts", err)
	} else if types != nil {
		report.MsgTypes = types
	}

	if users, err := a.store.TopUsers(ctx, days, topLimit); err != nil {
		a.warn("top users", err)
	} else if users != nil {
		report.TopUsers = users
	}

	if commands, err := a.store.TopCommands(ctx, days, topLimit); err != nil {
		a.warn("top commands", err)
	} else if commands != nil {
		report.TopCommands = commands
	}

	texts, err := a.store.RecentTexts(ctx, days, textSampleCap)
	if err != nil {
		a.warn("recent texts", err)
	} else {
		report.WordCloud = a.WordCloud(texts, wordCloudLimit)
	}

	return report
}

func (a *Aggregator) warn(what string, err error) {
	a.logger.Warn().Err(err).Str("query", what).Msg("stats query failed")
}

// WordCloud folds, tokenizes and counts words across the given texts,
// dropping short tokens, numbers, urls and stopwords. The result is sorted
// by count descending, then alphabetically for a stable order.
func (a *Aggregator) WordCloud(texts []string, limit int) []storage.NameCount {
	counts := make(map[string]int64)

	for _, text := range texts {
		for _, token := range tokenize(text) {
			word := a.folder.String(token)
			if !keepWord(word) {
				continue
			}

			counts[word]++
		}
	}

	out := make([]storage.NameCount, 0, len(counts))
	for word, count := range counts {
		out = append(out, storage.NameCount{Name: word, Count: count})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}

		return out[i].Name < out[j].Name
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\'' && r != '-'
	})
}

func keepWord(word string) bool {
	if len([]rune(word)) < minWordLength {
		return false
	}

	if strings.HasPrefix(word, "http") || strings.HasPrefix(word, "www") {
		return false
	}

	hasLetter := false
	for _, r := range word {
		if unicode.IsLetter(r) {
			hasLetter = true

			break
		}
	}

	if !hasLetter {
		return false
	}

	_, stop := stopwords[word]

	return !stop
}

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"the", "and", "for", "are", "but", "not", "you", "all", "can",
		"her", "was", "one", "our", "out", "day", "get", "has", "him",
		"his", "how", "man", "new", "now", "old", "see", "two", "way",
		"who", "did", "its", "let", "say", "she", "too", "use", "that",
		"this", "with", "have", "from", "they", "will", "what", "when",
		"your", "there", "their", "would", "about", "just", "like",
		"what's", "don't", "it's", "i'm", "been", "were", "than", "then",
		"them", "some", "into", "over", "only", "also", "very", "much",
		"here", "more",
		"это", "как", "что", "так", "его", "она", "они", "оно", "мне",
		"тебе", "меня", "тебя", "если", "когда", "чтобы", "или", "уже",
		"ещё", "еще", "нет", "там", "тут", "вот", "был", "была", "было",
		"были", "есть", "будет", "просто", "очень", "тоже", "только",
	} {
		stopwords[w] = struct{}{}
	}
}

func emptyReport(days int) Report {
	return Report{
		Days:          days,
		MessagesByDay: []storage.DayCount{},
		MsgTypes:      []storage.NameCount{},
		TopUsers:      []storage.NameCount{},
		TopCommands:   []storage.NameCount{},
		WordCloud:     []storage.NameCount{},
	}
}
