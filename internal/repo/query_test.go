package repo

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/grimoire/internal/config"
	"github.com/hpungsan/grimoire/internal/db"
	"github.com/hpungsan/grimoire/internal/item"
)

func resultIDs(results []SearchResult) []string {
	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.ItemID
	}
	return ids
}

func TestQuery_FindsByContent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	created, err := r.Create(ctx, prompt("foo", "bar"))
	require.NoError(t, err)

	results, err := r.Query(ctx, QueryInput{Term: "bar"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, created.ID, results[0].ItemID)
	require.Equal(t, item.FieldContent, results[0].MatchedField)

	updated, err := r.Update(ctx, created.ID, 1, item.Patch{Content: stringPtr("baz")})
	require.NoError(t, err)

	results, err = r.Query(ctx, QueryInput{Term: "baz"})
	require.NoError(t, err)
	require.Equal(t, []string{created.ID}, resultIDs(results))
	require.Equal(t, updated, results[0].Item)

	results, err = r.Query(ctx, QueryInput{Term: "bar"})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestQuery_EmptyTerm(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, err := r.Create(ctx, prompt("foo", "bar"))
	require.NoError(t, err)

	for _, term := range []string{"", "   "} {
		results, err := r.Query(ctx, QueryInput{Term: term})
		require.NoError(t, err)
		require.NotNil(t, results)
		require.Empty(t, results)
	}
}

func TestQuery_Ranking(t *testing.T) {
	r := newTestRepo(t, WithClock(fixedClock()))
	ctx := context.Background()

	// Created first so it is the least recently updated
	inContent, err := r.Create(ctx, prompt("first", "talks about review"))
	require.NoError(t, err)
	inDescription, err := r.Create(ctx, item.Candidate{
		Category: item.CategoryPrompt,
		Fields:   item.Fields{Name: stringPtr("second"), Description: stringPtr("for review"), Content: stringPtr("x")},
	})
	require.NoError(t, err)
	inName, err := r.Create(ctx, prompt("code review helper", "x"))
	require.NoError(t, err)
	inTag, err := r.Create(ctx, item.Candidate{
		Category: item.CategoryPrompt,
		Fields:   item.Fields{Name: stringPtr("third"), Content: stringPtr("x"), Tags: []string{"review"}},
	})
	require.NoError(t, err)
	exact, err := r.Create(ctx, prompt("Review", "x"))
	require.NoError(t, err)

	results, err := r.Query(ctx, QueryInput{Term: "REVIEW"})
	require.NoError(t, err)
	require.Equal(t, []string{exact.ID, inTag.ID, inName.ID, inDescription.ID, inContent.ID}, resultIDs(results))

	fields := make([]string, len(results))
	for i, res := range results {
		fields[i] = res.MatchedField
	}
	require.Equal(t, []string{
		item.FieldName, item.FieldTags, item.FieldName, item.FieldDescription, item.FieldContent,
	}, fields)

	limited, err := r.Query(ctx, QueryInput{Term: "review", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{exact.ID, inTag.ID}, resultIDs(limited))
}

func TestQuery_ExactNameIsLiteral(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	exact, err := r.Create(ctx, prompt("two words", "x"))
	require.NoError(t, err)
	longer, err := r.Create(ctx, prompt("two words helper", "x"))
	require.NoError(t, err)

	results, err := r.Query(ctx, QueryInput{Term: "  TWO WORDS "})
	require.NoError(t, err)
	require.Equal(t, []string{exact.ID, longer.ID}, resultIDs(results))
	require.Equal(t, tierExactName, results[0].tier)
	require.Equal(t, tierName, results[1].tier)

	// No name contains the term as typed, so nothing ranks as exact
	results, err = r.Query(ctx, QueryInput{Term: "Two   Words"})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestQuery_TieBreakOnRecency(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	older, err := r.Create(ctx, prompt("a", "shared text"))
	require.NoError(t, err)
	newer, err := r.Create(ctx, prompt("b", "shared text"))
	require.NoError(t, err)

	// Bump the older one so it becomes the most recent
	older, err = r.Update(ctx, older.ID, 1, item.Patch{Description: stringPtr("d")})
	require.NoError(t, err)
	require.Greater(t, older.UpdatedAt, newer.UpdatedAt)

	results, err := r.Query(ctx, QueryInput{Term: "shared"})
	require.NoError(t, err)
	require.Equal(t, []string{older.ID, newer.ID}, resultIDs(results))
}

func TestQuery_ShortTerm(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	goItem, err := r.Create(ctx, item.Candidate{
		Category: item.CategoryPrompt,
		Fields:   item.Fields{Name: stringPtr("lint"), Content: stringPtr("x"), Tags: []string{"go"}},
	})
	require.NoError(t, err)
	_, err = r.Create(ctx, prompt("other", "nothing here"))
	require.NoError(t, err)

	results, err := r.Query(ctx, QueryInput{Term: "go"})
	require.NoError(t, err)
	require.Equal(t, []string{goItem.ID}, resultIDs(results))
	require.Equal(t, item.FieldTags, results[0].MatchedField)

	ecole, err := r.Create(ctx, prompt("École", "leçon"))
	require.NoError(t, err)

	// Case folding must not depend on term length
	for _, term := range []string{"éc", "ÉC", "éco", "ÉCO"} {
		results, err := r.Query(ctx, QueryInput{Term: term})
		require.NoError(t, err, term)
		require.Equal(t, []string{ecole.ID}, resultIDs(results), term)
		require.Equal(t, item.FieldName, results[0].MatchedField, term)
	}
	for _, term := range []string{"Ç", "eÇ", "LEÇ"} {
		results, err := r.Query(ctx, QueryInput{Term: term})
		require.NoError(t, err, term)
		require.Equal(t, []string{ecole.ID}, resultIDs(results), term)
		require.Equal(t, item.FieldContent, results[0].MatchedField, term)
	}
}

func TestQuery_Filters(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	p, err := r.Create(ctx, item.Candidate{
		Category: item.CategoryPrompt,
		Fields:   item.Fields{Name: stringPtr("p"), Content: stringPtr("deploy steps"), Tags: []string{"ops"}},
	})
	require.NoError(t, err)
	c, err := r.Create(ctx, item.Candidate{
		Category: item.CategoryCommand,
		Fields:   item.Fields{Name: stringPtr("c"), Content: stringPtr("deploy now")},
	})
	require.NoError(t, err)

	command := item.CategoryCommand
	results, err := r.Query(ctx, QueryInput{Term: "deploy", Category: &command})
	require.NoError(t, err)
	require.Equal(t, []string{c.ID}, resultIDs(results))

	results, err = r.Query(ctx, QueryInput{Term: "deploy", Tag: stringPtr("OPS")})
	require.NoError(t, err)
	require.Equal(t, []string{p.ID}, resultIDs(results))

	results, err = r.Query(ctx, QueryInput{Term: "deploy", Tag: stringPtr("op")})
	require.NoError(t, err)
	require.Empty(t, results, "tag filter matches whole tags only")
}

func TestQuery_SpecialCharacters(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	special, err := r.Create(ctx, prompt("quotes", `say "hi" 100% of_the time`))
	require.NoError(t, err)
	_, err = r.Create(ctx, prompt("plain", "100 of the time"))
	require.NoError(t, err)

	for _, term := range []string{`"hi"`, "100%", "of_the", "%", "_"} {
		results, err := r.Query(ctx, QueryInput{Term: term})
		require.NoError(t, err, term)
		require.Equal(t, []string{special.ID}, resultIDs(results), term)
	}
}

func TestQuery_RepairsOrphanedEntry(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	created, err := r.Create(ctx, prompt("ghost", "boo"))
	require.NoError(t, err)

	// Remove the row behind the index's back
	_, err = r.DB().Exec(`DELETE FROM items WHERE id = ?`, created.ID)
	require.NoError(t, err)

	results, err := r.Query(ctx, QueryInput{Term: "ghost"})
	require.NoError(t, err)
	require.Empty(t, results)

	docs, err := db.ListIndex(ctx, r.DB())
	require.NoError(t, err)
	require.Empty(t, docs)
	require.Equal(t, 1.0, testutil.ToFloat64(r.Metrics().IndexRepairsTotal.WithLabelValues("removed")))
}

func TestQuery_RepairsStaleEntry(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	created, err := r.Create(ctx, prompt("stale", "old words"))
	require.NoError(t, err)

	// Change content without touching the index
	_, err = r.DB().Exec(`UPDATE items SET content = 'new words' WHERE id = ?`, created.ID)
	require.NoError(t, err)

	// The stale row still surfaces the item, but the term no longer matches it
	results, err := r.Query(ctx, QueryInput{Term: "old"})
	require.NoError(t, err)
	require.Empty(t, results)

	docs, err := db.ListIndex(ctx, r.DB())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "new words", docs[0].Content)

	results, err = r.Query(ctx, QueryInput{Term: "new words"})
	require.NoError(t, err)
	require.Equal(t, []string{created.ID}, resultIDs(results))
}

func TestVerifyIndex(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	kept, err := r.Create(ctx, prompt("kept", "x"))
	require.NoError(t, err)
	missing, err := r.Create(ctx, prompt("missing", "x"))
	require.NoError(t, err)
	orphan, err := r.Create(ctx, prompt("orphan", "x"))
	require.NoError(t, err)

	_, err = db.RemoveFromIndex(ctx, r.DB(), missing.ID)
	require.NoError(t, err)
	_, err = r.DB().Exec(`DELETE FROM items WHERE id = ?`, orphan.ID)
	require.NoError(t, err)

	repaired, err := r.VerifyIndex(ctx)
	require.NoError(t, err)
	want := []string{missing.ID, orphan.ID}
	if want[0] > want[1] {
		want[0], want[1] = want[1], want[0]
	}
	require.Equal(t, want, repaired)

	docs, err := db.ListIndex(ctx, r.DB())
	require.NoError(t, err)
	var ids []string
	for _, d := range docs {
		ids = append(ids, d.ItemID)
	}
	require.ElementsMatch(t, []string{kept.ID, missing.ID}, ids)

	// A clean index needs nothing
	repaired, err = r.VerifyIndex(ctx)
	require.NoError(t, err)
	require.Empty(t, repaired)
}

func TestReindex(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	for _, name := range []string{"one", "two", "three"} {
		_, err := r.Create(ctx, prompt(name, "body"))
		require.NoError(t, err)
	}
	require.NoError(t, db.ClearIndex(ctx, r.DB()))

	n, err := r.Reindex(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	results, err := r.Query(ctx, QueryInput{Term: "body"})
	require.NoError(t, err)
	require.Len(t, results, 3)
}

func TestOpen_VerifiesIndexOnCountMismatch(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	cfg := config.DefaultConfig()

	r, err := Open(ctx, dir, cfg)
	require.NoError(t, err)
	created, err := r.Create(ctx, prompt("survivor", "x"))
	require.NoError(t, err)
	require.NoError(t, db.ClearIndex(ctx, r.DB()))
	require.NoError(t, r.Close())

	r, err = Open(ctx, dir, cfg)
	require.NoError(t, err)
	defer r.Close()

	docs, err := db.ListIndex(ctx, r.DB())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, created.ID, docs[0].ItemID)
}

func TestOperationsAreMetered(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, err := r.Create(ctx, prompt("foo", "bar"))
	require.NoError(t, err)
	_, err = r.Create(ctx, prompt("foo", "bar"))
	require.Error(t, err)

	m := r.Metrics()
	require.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("create", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("create", "DUPLICATE_NAME")))
}
