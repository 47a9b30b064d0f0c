package shareindex

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// Search runs query against the filenames FTS index and, as a safety net,
// additionally rejects any result whose masked filename contains any
// exclusion as a case-insensitive substring — per spec.md §4.1/§6, because
// FTS tokenization alone can't be trusted to catch every substring match a
// peer's exclusion implies. A query with no terms lists every file (still
// subject to the exclusion substring filter) rather than matching nothing.
// Search never returns an error: on any failure it logs and returns an
// empty slice, since search sits on the hot serving path (spec.md §4.1
// "Failure semantics").
func (r *Repository) Search(query SearchQuery) []FileRow {
	var rows interface {
		Next() bool
		Scan(dest ...any) error
		Close() error
		Err() error
	}

	if len(query.Terms) == 0 {
		sqlRows, err := r.db.Query(
			"SELECT maskedFilename, originalFilename, size, touchedAt, code, extension, attributeJson, timestamp FROM files ORDER BY maskedFilename ASC",
		)
		if err != nil {
			log.Debug().Err(err).Msg("shareindex: search (no terms) failed")
			return nil
		}
		rows = sqlRows
	} else {
		matchExpr := buildMatchExpression(query)
		sqlRows, err := r.db.Query(`
			SELECT f.maskedFilename, f.originalFilename, f.size, f.touchedAt, f.code, f.extension, f.attributeJson, f.timestamp
			FROM files f
			JOIN filenames ON filenames.rowid = f.rowid
			WHERE filenames MATCH ?
			ORDER BY f.maskedFilename ASC
		`, matchExpr)
		if err != nil {
			log.Debug().Err(err).Str("match", matchExpr).Msg("shareindex: search failed")
			return nil
		}
		rows = sqlRows
	}
	defer rows.Close()

	var out []FileRow
	for rows.Next() {
		var f FileRow
		if err := rows.Scan(&f.MaskedFilename, &f.OriginalFilename, &f.Size, &f.TouchedAt, &f.Code, &f.Extension, &f.AttributeJSON, &f.Timestamp); err != nil {
			continue
		}
		if containsAnyFold(f.MaskedFilename, query.Exclusions) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// buildMatchExpression renders query as an FTS5 MATCH expression:
// (term1 AND term2 AND …) [NOT (excl1 OR excl2 OR …)], per spec.md §6.
func buildMatchExpression(query SearchQuery) string {
	quotedTerms := make([]string, len(query.Terms))
	for i, t := range query.Terms {
		quotedTerms[i] = quoteFTSToken(t)
	}
	expr := strings.Join(quotedTerms, " AND ")

	if len(query.Exclusions) > 0 {
		quotedExclusions := make([]string, len(query.Exclusions))
		for i, e := range query.Exclusions {
			quotedExclusions[i] = quoteFTSToken(e)
		}
		expr = "(" + expr + ") NOT (" + strings.Join(quotedExclusions, " OR ") + ")"
	}
	return expr
}

// quoteFTSToken wraps token in double quotes for use as an FTS5 string
// literal, doubling any embedded double quote so the literal can't be
// broken out of.
func quoteFTSToken(token string) string {
	return `"` + strings.ReplaceAll(token, `"`, `""`) + `"`
}

// containsAnyFold reports whether s contains any of substrs, case-insensitive.
func containsAnyFold(s string, substrs []string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if sub == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// NormalizeSearchToken applies the wire-level token normalization spec.md
// §6 describes for the transport's parsed query: '/', '\', ':', '"' become
// spaces, and an embedded single quote is escaped by doubling. Exposed here
// so the transport collaborator and tests share one implementation.
func NormalizeSearchToken(token string) string {
	replacer := strings.NewReplacer("/", " ", `\`, " ", ":", " ", `"`, " ", "'", "''")
	return replacer.Replace(token)
}
