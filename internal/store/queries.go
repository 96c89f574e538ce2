package store

import (
	"fmt"
	"strconv"
	"strings"
)

// setTables maps each dataset to its tables. Table names only ever come
// from this map.
var setTables = map[Set]struct{ matches, features string }{
	Training: {matches: "matches", features: "feature_vectors"},
	Live:     {matches: "upcoming_matches", features: "live_feature_vectors"},
}

type setQueries struct {
	matchSummary    string
	featureCount    string
	firstFeatureRow string
	vectors         string
	vectorsByModel  string
}

type queries struct {
	listModels      string
	modelByName     string
	scoredRecords   string
	upcomingMatches string
	sets            map[Set]setQueries
}

func (q queries) forSet(set Set) (setQueries, error) {
	sq, ok := q.sets[set]
	if !ok {
		return setQueries{}, fmt.Errorf("%w: %q", ErrUnknownSet, set)
	}
	return sq, nil
}

// mysqlQueries uses '?' placeholders; rebind converts them for Postgres.
var mysqlQueries = buildQueries()

func buildQueries() queries {
	q := queries{
		listModels: `SELECT model_id, model_name FROM model ORDER BY model_name`,

		modelByName: `
			SELECT model_id, model_name, t_pos, t_neg, f_pos, f_neg
			FROM model
			WHERE model_name = ?
			LIMIT 1`,

		scoredRecords: `
			SELECT mp.prediction, um.actual_outcome, mp.confidence
			FROM upcoming_matches um
			JOIN match_predictions mp ON um.match_id = mp.match_id
			WHERE um.actual_outcome IS NOT NULL AND mp.model_id = ?`,

		upcomingMatches: `
			SELECT
				um.match_id, um.team_a, um.team_b, um.date,
				um.tournament_name, um.tournament_type, um.best_of, um.actual_outcome,
				mp.prediction, mp.confidence, mp.model_id
			FROM upcoming_matches um
			LEFT JOIN match_predictions mp ON um.match_id = mp.match_id
			WHERE mp.model_id = ? OR mp.model_id IS NULL
			ORDER BY um.date DESC`,

		sets: make(map[Set]setQueries, len(setTables)),
	}

	for set, t := range setTables {
		q.sets[set] = setQueries{
			matchSummary:    fmt.Sprintf(`SELECT COUNT(*), MIN(date), MAX(date) FROM %s`, t.matches),
			featureCount:    fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE model_id = ?`, t.features),
			firstFeatureRow: fmt.Sprintf(`SELECT * FROM %s WHERE model_id = ? LIMIT 1`, t.features),
			vectors:         fmt.Sprintf(`SELECT * FROM %s`, t.features),
			vectorsByModel:  fmt.Sprintf(`SELECT * FROM %s WHERE model_id = ?`, t.features),
		}
	}
	return q
}

func (q queries) rebind() queries {
	out := queries{
		listModels:      rebind(q.listModels),
		modelByName:     rebind(q.modelByName),
		scoredRecords:   rebind(q.scoredRecords),
		upcomingMatches: rebind(q.upcomingMatches),
		sets:            make(map[Set]setQueries, len(q.sets)),
	}
	for set, sq := range q.sets {
		out.sets[set] = setQueries{
			matchSummary:    rebind(sq.matchSummary),
			featureCount:    rebind(sq.featureCount),
			firstFeatureRow: rebind(sq.firstFeatureRow),
			vectors:         rebind(sq.vectors),
			vectorsByModel:  rebind(sq.vectorsByModel),
		}
	}
	return out
}

// rebind rewrites '?' placeholders to Postgres-style $1, $2, ...
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
