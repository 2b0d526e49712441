package filter

import "log/slog"

// ApplyBasic handles the remaining keys against the main table. Columns are
// always table-qualified, joins or not.
func ApplyBasic(c *Context, search SearchSchema, filters Filters) error {
	for _, key := range sortedKeys(filters) {
		def, ok := search[key]
		if !ok {
			if _, done := c.handled[key]; !done {
				c.Stats.Skipped++
				c.logger.Debug("filter key has no search definition", slog.String("key", key))
			}
			continue
		}
		if !c.claim(key, def, StrategyBasic) {
			continue
		}
		group := newGroup(c.Query, true)
		if err := applyComparison(group, key, def, group.Column, filters[key]); err != nil {
			return err
		}
		c.where(group)
		c.Stats.Basic++
	}
	return nil
}
