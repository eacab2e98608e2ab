package filemaker

import (
	"github.com/fmsync/fmsync/internal/config"
	"github.com/fmsync/fmsync/internal/core"
)

// FindQuery is one find-payload: AND-combined field criteria in FileMaker
// find syntax. Multiple payloads are OR-combined by the pager.
type FindQuery map[string]string

// BuildFindPayloads translates declarative query groups into Data API find
// payloads. The optional incremental filter is appended to every group so
// the watermark bound applies uniformly across all OR-branches; a group
// that already constrains the incremental field would constrain it twice.
//
// Empty groups with no incremental filter yield nil, meaning "list all
// records". Pure transformation, no side effects.
func BuildFindPayloads(groups []config.QueryGroup, incremental *config.QueryCriterion) ([]FindQuery, error) {
	if len(groups) == 0 {
		if incremental == nil {
			return nil, nil
		}
		return []FindQuery{{incremental.FieldName: incremental.FindCriteria}}, nil
	}

	payloads := make([]FindQuery, 0, len(groups))
	for gi, group := range groups {
		payload := make(FindQuery, len(group)+1)
		for _, crit := range group {
			if _, dup := payload[crit.FieldName]; dup {
				return nil, core.ConfigErrorf("query group %d: duplicate field %q", gi, crit.FieldName)
			}
			payload[crit.FieldName] = crit.FindCriteria
		}
		if incremental != nil {
			payload[incremental.FieldName] = incremental.FindCriteria
		}
		payloads = append(payloads, payload)
	}
	return payloads, nil
}
