package pgvector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingokit/lingokit/pkg/vectorstore"
)

func TestEncodeDecodeVector(t *testing.T) {
	original := []float32{0.1, -0.25, 3, 0}

	encoded := encodeVector(original)
	assert.Equal(t, "[0.1,-0.25,3,0]", encoded)

	decoded, err := decodeVector(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeVector_WithSpaces(t *testing.T) {
	decoded, err := decodeVector(" [0.5, 1.5, -2] ")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 1.5, -2}, decoded)
}

func TestDecodeVector_Empty(t *testing.T) {
	decoded, err := decodeVector("[]")
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestDecodeVector_Invalid(t *testing.T) {
	_, err := decodeVector("[1,abc,3]")
	assert.Error(t, err)
}

func TestDistanceOperator(t *testing.T) {
	assert.Equal(t, "<=>", distanceOperator(vectorstore.DistanceMetricCosine))
	assert.Equal(t, "<=>", distanceOperator(""))
	assert.Equal(t, "<->", distanceOperator(vectorstore.DistanceMetricEuclidean))
	assert.Equal(t, "<#>", distanceOperator(vectorstore.DistanceMetricDotProduct))
}

func TestScoreFromDistance(t *testing.T) {
	// Cosine distance 0.2 means similarity 0.8.
	assert.InDelta(t, 0.8, scoreFromDistance(0.2, vectorstore.DistanceMetricCosine), 1e-6)
	// Euclidean distance 1 maps to 0.5.
	assert.InDelta(t, 0.5, scoreFromDistance(1, vectorstore.DistanceMetricEuclidean), 1e-6)
	// <#> negates the inner product.
	assert.InDelta(t, 4.0, scoreFromDistance(-4, vectorstore.DistanceMetricDotProduct), 1e-6)
}

func TestBuildFilterClause(t *testing.T) {
	t.Run("nil filter", func(t *testing.T) {
		where, args, err := buildFilterClause(nil)
		require.NoError(t, err)
		assert.Empty(t, where)
		assert.Empty(t, args)
	})

	t.Run("must condition", func(t *testing.T) {
		where, args, err := buildFilterClause(vectorstore.DifficultyFilter("beginner"))
		require.NoError(t, err)
		assert.Equal(t, " WHERE metadata @> ?::jsonb", where)
		require.Len(t, args, 1)
		assert.JSONEq(t, `{"difficulty_level":"beginner"}`, args[0].(string))
	})

	t.Run("must not condition", func(t *testing.T) {
		where, args, err := buildFilterClause(&vectorstore.MetadataFilter{
			MustNot: map[string]any{"topic": "vocabulary"},
		})
		require.NoError(t, err)
		assert.Equal(t, " WHERE NOT metadata @> ?::jsonb", where)
		require.Len(t, args, 1)
		assert.JSONEq(t, `{"topic":"vocabulary"}`, args[0].(string))
	})

	t.Run("should conditions are grouped", func(t *testing.T) {
		where, args, err := buildFilterClause(&vectorstore.MetadataFilter{
			Should: map[string]any{"topic": "grammar"},
		})
		require.NoError(t, err)
		assert.Equal(t, " WHERE (metadata @> ?::jsonb)", where)
		assert.Len(t, args, 1)
	})

	t.Run("invalid key rejected", func(t *testing.T) {
		_, _, err := buildFilterClause(&vectorstore.MetadataFilter{
			Must: map[string]any{"a.b": "x"},
		})
		assert.Error(t, err)
	})
}

func TestNewFromDB_RejectsBadTableName(t *testing.T) {
	_, err := NewFromDB(nil, "documents; DROP TABLE users", 1536)
	assert.Error(t, err)
}
