package db

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/pgvector/pgvector-go"

	"horse.fit/newsdesk/internal/store"
)

// gorm binds "?" placeholders itself, so queries are built with sq.Question.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

func generationsQuery() (string, []any, error) {
	return psql.
		Select(
			"g.generation_id",
			"g.state",
			"g.created_at",
			"g.activated_at",
			"COUNT(s.story_id) AS story_count",
		).
		From("newsdesk.generations g").
		LeftJoin("newsdesk.stories s ON s.generation_id = g.generation_id").
		GroupBy("g.generation_id", "g.state", "g.created_at", "g.activated_at").
		OrderBy("g.created_at", "g.generation_id").
		ToSql()
}

func liveGenerationQuery() (string, []any, error) {
	return psql.
		Select("generation_id").
		From("newsdesk.generations").
		Where(sq.Eq{"state": string(store.StateLive)}).
		Limit(1).
		ToSql()
}

// similarityExpr compares through the indexed cast when dimensions are known.
func similarityExpr(dimensions int) string {
	if dimensions > 0 {
		return fmt.Sprintf("embedding::vector(%d) <=> ?", dimensions)
	}
	return "embedding <=> ?"
}

func searchStoriesQuery(generationID string, vector []float32, k, dimensions int) (string, []any, error) {
	queryVector := pgvector.NewVector(vector)
	distance := similarityExpr(dimensions)
	return psql.
		Select("story_id").
		Column(sq.Expr("1 - ("+distance+") AS score", queryVector)).
		From("newsdesk.stories").
		Where(sq.Eq{"generation_id": generationID}).
		Where(sq.NotEq{"embedding": nil}).
		OrderByClause(distance, queryVector).
		OrderBy("seq").
		Limit(uint64(k)).
		ToSql()
}

func listRunsQuery(limit int) (string, []any, error) {
	return psql.
		Select("run_id", "started_at", "finished_at", "status", "generation_id", "counters", "error_message").
		From("newsdesk.runs").
		OrderBy("started_at DESC", "run_id DESC").
		Limit(uint64(limit)).
		ToSql()
}
