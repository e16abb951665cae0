package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/artiklix/kirjasto-harvester/internal/harvest"
)

func testRecord() harvest.ArticleRecord {
	return harvest.ArticleRecord{
		MainCategory: "Sairaudet",
		SubCategory:  "Yleiset sairaudet",
		ListName:     "Yleiset sairaudet",
		ArticleID:    "dlk00001",
		ArticleName:  "Flunssa",
		H2Name:       "Oireet; Hoito",
		H3Name:       "",
		Keywords:     "flunssa, nuha",
	}
}

func TestEnsureSchemaCreatesBothTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS content").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS articles").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertArticleWithContentRunsInOneTransaction(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	rec := testRecord()
	block := harvest.ContentBlock{Description: "Lead", Text: "Body"}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO content").
		WithArgs("Lead", "Body").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery("INSERT INTO articles").
		WithArgs(
			rec.MainCategory,
			rec.SubCategory,
			rec.ListName,
			rec.ArticleID,
			rec.ArticleName,
			rec.H2Name,
			rec.H3Name,
			rec.Keywords,
			int64(7),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectCommit()

	articleID, contentID, err := store.InsertArticleWithContent(context.Background(), rec, block)
	require.NoError(t, err)
	require.Equal(t, int64(42), articleID)
	require.Equal(t, int64(7), contentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertArticleWithContentRollsBackOnArticleFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO content").
		WithArgs("Lead", "Body").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery("INSERT INTO articles").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	_, _, err = store.InsertArticleWithContent(context.Background(), testRecord(),
		harvest.ContentBlock{Description: "Lead", Text: "Body"})

	var storeErr *harvest.StorageError
	require.ErrorAs(t, err, &storeErr)
	require.False(t, storeErr.PreWrite)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertArticleWithContentBeginFailureIsPreWrite(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, _, err = store.InsertArticleWithContent(context.Background(), testRecord(),
		harvest.ContentBlock{Description: "Lead", Text: "Body"})

	var storeErr *harvest.StorageError
	require.ErrorAs(t, err, &storeErr)
	require.True(t, storeErr.PreWrite)
}

func TestInsertArticleForContentWritesNullables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	rec := testRecord()
	rec.SubCategory = ""
	rec.ListName = ""
	rec.Keywords = ""

	mock.ExpectQuery("INSERT INTO articles").
		WithArgs(
			rec.MainCategory,
			nil,
			nil,
			rec.ArticleID,
			rec.ArticleName,
			rec.H2Name,
			rec.H3Name,
			nil,
			int64(9),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(5)))

	articleID, err := store.InsertArticleForContent(context.Background(), rec, 9)
	require.NoError(t, err)
	require.Equal(t, int64(5), articleID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadContentRowsStreamsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	desc := "Lead"
	body := "Body"
	mock.ExpectQuery("SELECT id, description, text FROM content").
		WillReturnRows(pgxmock.NewRows([]string{"id", "description", "text"}).
			AddRow(int64(1), &desc, &body).
			AddRow(int64(2), (*string)(nil), (*string)(nil)))

	type row struct {
		id         int64
		desc, text string
	}
	var got []row
	err = store.LoadContentRows(context.Background(), func(id int64, description, text string) {
		got = append(got, row{id: id, desc: description, text: text})
	})
	require.NoError(t, err)
	require.Equal(t, []row{{1, "Lead", "Body"}, {2, "", ""}}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}
