package corpus

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/resilience"
)

const sampleCSV = `id,b,c,v,t
1001001,1,1,1,"At the first God made the heaven and the earth."
1001002,1,1,2,"And the earth was waste and without form; and it was dark on the face of the deep: and the Spirit of God was moving on the face of the waters."
1001003,1,1,3,
1001004,one,1,4,"Bad book code."
1001005,1,1,5,"And God gave the light the name of Day, and the dark the name of Night."
43003016,43,3,16,"For God had such love for the world that he gave his only Son"
`

func TestReadCSV(t *testing.T) {
	res, err := ReadCSV(context.Background(), strings.NewReader(sampleCSV), DefaultColumns())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Dropped, "empty text and non-integer book are dropped")
	require.Len(t, res.Records, 4)
	assert.Equal(t, Locator{Group: 1, Subgroup: 1, Position: 1}, res.Records[0].Locator)
	assert.Equal(t, Locator{Group: 43, Subgroup: 3, Position: 16}, res.Records[3].Locator)
	assert.True(t, strings.HasPrefix(res.Records[3].Text, "For God had such love"))
}

func TestReadCSVCustomColumns(t *testing.T) {
	data := "text,book,chapter,verse\nhello world,2,3,4\n"
	cols := Columns{Group: "book", Subgroup: "chapter", Position: "verse", Text: "text"}
	res, err := ReadCSV(context.Background(), strings.NewReader(data), cols)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, Locator{Group: 2, Subgroup: 3, Position: 4}, res.Records[0].Locator)
	assert.Equal(t, "hello world", res.Records[0].Text)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader(""), DefaultColumns())
	assert.Error(t, err)

	_, err = ReadCSV(context.Background(), strings.NewReader("id,b,c\n1,1,1\n"), DefaultColumns())
	assert.ErrorContains(t, err, `column "v" not found`)
}

func TestReadCSVShortRowDropped(t *testing.T) {
	res, err := ReadCSV(context.Background(), strings.NewReader("b,c,v,t\n1,1\n1,1,1,ok\n"), DefaultColumns())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	assert.Len(t, res.Records, 1)
}

func TestCSVSourceLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verses.csv")
	require.NoError(t, os.WriteFile(path, []byte("\ufeff"+sampleCSV), 0o644))
	res, err := NewCSVSource(path, DefaultColumns()).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Records, 4)

	_, err = NewCSVSource(filepath.Join(t.TempDir(), "missing.csv"), DefaultColumns()).Load(context.Background())
	assert.Error(t, err)
}

func TestParseRecord(t *testing.T) {
	rec, err := parseRecord(" 19 ", "23", "1", "The Lord is my keeper")
	require.NoError(t, err)
	assert.Equal(t, Locator{Group: 19, Subgroup: 23, Position: 1}, rec.Locator)

	for _, tc := range [][4]string{
		{"", "1", "1", "x"},
		{"1", "1.5", "1", "x"},
		{"1", "1", "-2", "x"},
		{"1", "1", "1", "   "},
	} {
		_, err := parseRecord(tc[0], tc[1], tc[2], tc[3])
		assert.Error(t, err, "%v", tc)
	}
}

func TestCatalog(t *testing.T) {
	books := Books()
	assert.Equal(t, 66, books.Len())

	name, ok := books.Name(22)
	require.True(t, ok)
	assert.Equal(t, "Song of Solomon", name)

	code, ok := books.Code("  song of solomon ")
	require.True(t, ok)
	assert.Equal(t, 22, code)

	_, ok = books.Code("Maccabees")
	assert.False(t, ok)

	entries := books.Entries()
	assert.Equal(t, CatalogEntry{Code: 1, Name: "Genesis"}, entries[0])
	assert.Equal(t, CatalogEntry{Code: 66, Name: "Revelation"}, entries[65])

	_, err := NewCatalog(map[int]string{1: "John", 2: "JOHN"})
	assert.Error(t, err)
	_, err = NewCatalog(map[int]string{1: " "})
	assert.Error(t, err)
}

func TestTable(t *testing.T) {
	records := []Record{
		{Locator: Locator{1, 1, 1}, Text: "first"},
		{Locator: Locator{1, 1, 2}, Text: "second"},
		{Locator: Locator{99, 1, 1}, Text: "uncatalogued"},
	}
	table, err := NewTable(records, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	row, ok := table.Lookup(Locator{1, 1, 2})
	require.True(t, ok)
	assert.Equal(t, 1, row)
	assert.Equal(t, "Genesis", table.Row(row).Name)
	assert.Equal(t, "99", table.Row(2).Name)
	assert.Equal(t, []string{"first", "second", "uncatalogued"}, table.Texts())

	_, ok = table.Lookup(Locator{2, 1, 1})
	assert.False(t, ok)

	require.NoError(t, table.SetNormalized([]string{"a", "b", "c"}))
	assert.Equal(t, "b", table.Row(1).Normalized)
	assert.Error(t, table.SetNormalized([]string{"a"}))
}

func TestTableRejectsDuplicates(t *testing.T) {
	_, err := NewTable([]Record{
		{Locator: Locator{1, 1, 1}, Text: "a"},
		{Locator: Locator{1, 1, 1}, Text: "b"},
	}, nil)
	assert.ErrorIs(t, err, ErrDuplicateLocator)

	_, err = NewTable([]Record{{Locator: Locator{-1, 1, 1}, Text: "a"}}, nil)
	assert.Error(t, err)
}

func TestSelectQuery(t *testing.T) {
	q := selectQuery("t_bbe", DefaultColumns())
	assert.Equal(t, `SELECT "b"::text, "c"::text, "v"::text, "t" FROM "t_bbe" ORDER BY "b", "c", "v"`, q)
}

func TestOpen(t *testing.T) {
	cfg := config.Default()
	cfg.Corpus.CSVPath = filepath.Join(t.TempDir(), "verses.csv")
	require.NoError(t, os.WriteFile(cfg.Corpus.CSVPath, []byte(sampleCSV), 0o644))

	src, closeFn, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, closeFn())
	res, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Records, 4)

	cfg.Corpus.Source = "ftp"
	_, _, err = Open(context.Background(), cfg)
	assert.Error(t, err)
}

type fakeRows struct {
	rows   [][4]*string
	next   int
	err    error
	closed bool
}

func (f *fakeRows) Next() bool {
	if f.next >= len(f.rows) {
		return false
	}
	f.next++
	return true
}

func (f *fakeRows) Scan(dest ...any) error {
	row := f.rows[f.next-1]
	for i, d := range dest {
		ns := d.(*sql.NullString)
		if row[i] == nil {
			*ns = sql.NullString{}
			continue
		}
		*ns = sql.NullString{String: *row[i], Valid: true}
	}
	return nil
}

func (f *fakeRows) Err() error   { return f.err }
func (f *fakeRows) Close() error { f.closed = true; return nil }

func str(s string) *string { return &s }

func fakeSource(query func(ctx context.Context, q string) (RowScanner, error)) *PostgresSource {
	s := NewPostgresSource(nil, "t_bbe", DefaultColumns(), 3)
	s.query = query
	s.retry = resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return s
}

func TestPostgresSourceDropsNullAndMalformedRows(t *testing.T) {
	rows := &fakeRows{rows: [][4]*string{
		{str("1"), str("1"), str("1"), str("At the first God made the heaven and the earth.")},
		{str("1"), str("1"), nil, str("no verse number")},
		{str("1"), str("1"), str("3"), nil},
		{str("one"), str("1"), str("4"), str("book is not a number")},
		{str("1"), str("1"), str("5"), str("   ")},
		{str("43"), str("3"), str("16"), str("For God had such love for the world")},
	}}
	var seen string
	src := fakeSource(func(_ context.Context, q string) (RowScanner, error) {
		seen = q
		return rows, nil
	})

	res, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, selectQuery("t_bbe", DefaultColumns()), seen)
	assert.Equal(t, 4, res.Dropped)
	require.Len(t, res.Records, 2)
	assert.Equal(t, Locator{Group: 1, Subgroup: 1, Position: 1}, res.Records[0].Locator)
	assert.Equal(t, Locator{Group: 43, Subgroup: 3, Position: 16}, res.Records[1].Locator)
	assert.True(t, rows.closed)
}

func TestPostgresSourceRetries(t *testing.T) {
	calls := 0
	src := fakeSource(func(context.Context, string) (RowScanner, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection reset")
		}
		return &fakeRows{rows: [][4]*string{{str("1"), str("1"), str("1"), str("text")}}}, nil
	})
	res, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, res.Records, 1)

	calls = 0
	src = fakeSource(func(context.Context, string) (RowScanner, error) {
		calls++
		return &fakeRows{err: errors.New("stream broken")}, nil
	})
	_, err = src.Load(context.Background())
	assert.ErrorContains(t, err, "stream broken")
	assert.Equal(t, 3, calls)
}
